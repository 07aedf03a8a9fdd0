package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
)

// ListResult is one page of a list endpoint.
type ListResult[T any] struct {
	Items      []T
	TotalCount int
}

// HasMore reports whether items remain past this page.
func (r ListResult[T]) HasMore(offset int) bool {
	return r.TotalCount > 0 && offset+len(r.Items) < r.TotalCount
}

// ListConfig defines how a list command behaves
type ListConfig[T any] struct {
	Use          string
	Short        string
	Long         string
	Example      string
	Fetch        func(ctx context.Context, client *api.Client, limit, offset int) (ListResult[T], error)
	Headers      []string
	RowFunc      func(T) []string
	EmptyMessage string
	// DisablePagination fetches everything in one request (limit -1).
	DisablePagination bool
	// DefaultLimit overrides the default --limit value (defaults to 50).
	DefaultLimit int
	// DefaultMaxPages overrides the default --max-pages value (defaults to 100).
	DefaultMaxPages int
}

// NewListCommand creates a cobra command from ListConfig.
func NewListCommand[T any](cfg ListConfig[T], getClient func(context.Context) (*api.Client, error)) *cobra.Command {
	var limit int
	var offset int
	var all bool
	var maxPages int

	defaultLimit := cfg.DefaultLimit
	if defaultLimit == 0 {
		defaultLimit = 50
	}
	defaultMaxPages := cfg.DefaultMaxPages
	if defaultMaxPages == 0 {
		defaultMaxPages = 100
	}

	cmd := &cobra.Command{
		Use:     cfg.Use,
		Short:   cfg.Short,
		Long:    cfg.Long,
		Example: cfg.Example,
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			if cfg.DisablePagination {
				limit, offset, all = -1, -1, false
			} else {
				if limit < 1 {
					return fmt.Errorf("limit must be >= 1")
				}
				if offset < 0 {
					return fmt.Errorf("offset must be >= 0")
				}
				if all && maxPages < 1 {
					return fmt.Errorf("max-pages must be >= 1")
				}
			}

			ctx := cmd.Context()
			client, err := getClient(ctx)
			if err != nil {
				return err
			}
			defer client.Dispose()

			items := make([]T, 0)
			total := 0
			hasMore := false
			pagesFetched := 0
			current := offset

			for {
				if all && pagesFetched >= maxPages {
					return fmt.Errorf("safety limit reached: fetched %d pages (%d items). Use --max-pages to increase the limit", maxPages, len(items))
				}
				if all && pagesFetched > 0 && !isJSON(cmd) && !flags.Quiet && !flags.Silent {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Fetching offset %d...\n", current)
				}

				result, err := cfg.Fetch(ctx, client, limit, current)
				if err != nil {
					return err
				}
				pagesFetched++
				items = append(items, result.Items...)
				total = result.TotalCount
				hasMore = !cfg.DisablePagination && result.HasMore(current)

				if !all || !hasMore || len(result.Items) == 0 {
					break
				}
				current += len(result.Items)
			}

			if isJSON(cmd) {
				payload := map[string]any{
					"items":       items,
					"total_count": total,
				}
				if !cfg.DisablePagination {
					payload["has_more"] = hasMore && !all
					payload["meta"] = map[string]any{
						"limit":         limit,
						"offset":        offset,
						"pages_fetched": pagesFetched,
						"all":           all,
					}
				}
				return newFormatter(cmd).Output(payload)
			}

			f := newFormatter(cmd)
			if len(items) == 0 {
				if cfg.EmptyMessage != "" {
					f.Empty(cfg.EmptyMessage)
				}
				return nil
			}

			f.StartTable(cfg.Headers)
			for _, item := range items {
				f.Row(cfg.RowFunc(item)...)
			}
			if err := f.EndTable(); err != nil {
				return err
			}
			if hasMore && !all && !flags.Quiet {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# Showing %d of %d. Use --offset %d or --all for more\n", len(items), total, offset+len(items))
			}
			return nil
		}),
	}

	if !cfg.DisablePagination {
		cmd.Flags().IntVarP(&limit, "limit", "l", defaultLimit, "Max results per request")
		cmd.Flags().IntVar(&offset, "offset", 0, "Number of items to skip")
		flagAlias(cmd.Flags(), "offset", "off")
		cmd.Flags().BoolVarP(&all, "all", "a", false, "Fetch all pages")
		cmd.Flags().IntVarP(&maxPages, "max-pages", "M", defaultMaxPages, "Maximum number of pages to fetch when using --all")
		flagAlias(cmd.Flags(), "max-pages", "mp")
	}
	return cmd
}

// listClient adapts getClient to the NewListCommand signature.
func listClient(context.Context) (*api.Client, error) {
	return getClient()
}
