package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/cache"
	"github.com/fmeflow/fmeflow-cli/internal/resolve"
)

func newWorkspacesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspaces",
		Aliases: []string{"workspace", "ws"},
		Short:   "Browse workspaces in a repository",
		Long: `List workspaces and inspect their published parameters.

Workspace names are matched fuzzily when the exact name is not found, so
"clip" resolves to "clip_data.fmw" when that is the only close match.`,
	}
	cmd.AddCommand(newWorkspacesListCmd())
	cmd.AddCommand(newWorkspacesShowCmd())
	cmd.AddCommand(newWorkspacesParamsCmd())
	return cmd
}

func newWorkspacesListCmd() *cobra.Command {
	var itemType string

	cfg := ListConfig[api.RepositoryItem]{
		Use:          "list",
		Short:        "List workspaces in the repository",
		EmptyMessage: "No workspaces found",
		Example: `  fmeflow workspaces list
  fmeflow workspaces list --repo Samples --all`,
		Fetch: func(ctx context.Context, client *api.Client, limit, offset int) (ListResult[api.RepositoryItem], error) {
			resp, err := client.GetRepositoryItems(ctx, repositoryFor(client), itemType, limit, offset)
			if err != nil {
				return ListResult[api.RepositoryItem]{}, err
			}
			return ListResult[api.RepositoryItem]{Items: resp.Data.Items, TotalCount: resp.Data.TotalCount}, nil
		},
		Headers: []string{"NAME", "TITLE", "TYPE", "LAST SAVED"},
		RowFunc: func(item api.RepositoryItem) []string {
			return []string{item.Name, truncate(item.Title, 40), item.Type, item.LastSaveDate}
		},
	}

	cmd := NewListCommand(cfg, listClient)
	cmd.Aliases = []string{"ls"}
	cmd.Flags().StringVar(&itemType, "type", "WORKSPACE", "Repository item type filter (empty for all)")
	flagAlias(cmd.Flags(), "type", "ty")
	return cmd
}

func newWorkspacesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <workspace>",
		Aliases: []string{"get", "g"},
		Short:   "Show a workspace with its services and parameters",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			ctx := cmd.Context()
			repo := repositoryFor(client)
			resp, err := withWorkspace(ctx, client, repo, args[0], func(name string) (api.Response[api.WorkspaceItem], error) {
				return client.GetWorkspaceItem(ctx, name, repo)
			})
			if err != nil {
				return err
			}
			ws := resp.Data

			if isJSON(cmd) {
				return printJSON(cmd, ws)
			}

			f := newFormatter(cmd)
			services := make([]string, 0, len(ws.Services))
			for _, s := range ws.Services {
				services = append(services, s.Name)
			}
			if err := f.KeyValues(
				"Name", ws.Name,
				"Title", ws.Title,
				"Repository", repo,
				"Type", ws.Type,
				"Build", strconv.Itoa(ws.BuildNumber),
				"Last Saved", ws.LastSaveDate,
				"Services", strings.Join(services, ", "),
			); err != nil {
				return err
			}
			if ws.Description != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", ws.Description)
			}
			if len(ws.Parameters) > 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout())
				return writeParamTable(cmd, ws.Parameters)
			}
			return nil
		}),
	}
}

func newWorkspacesParamsCmd() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:     "params <workspace>",
		Aliases: []string{"parameters", "p"},
		Short:   "List a workspace's published parameters",
		Long: `List published parameters. Definitions are cached for five minutes in
~/.fmeflow/cache, or in Redis when FMEFLOW_REDIS_URL is set.`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			ctx := cmd.Context()
			repo := repositoryFor(client)
			name := args[0]

			store, closeStore := paramsCache(ctx, client.Config().ServerURL, repo, name)
			defer closeStore()

			var params []api.WorkspaceParameter
			if noCache || !store.Get(ctx, &params) {
				resp, err := withWorkspace(ctx, client, repo, name, func(ws string) (api.Response[[]api.WorkspaceParameter], error) {
					return client.GetWorkspaceParameters(ctx, ws, repo)
				})
				if err != nil {
					return err
				}
				params = resp.Data
				if params == nil {
					params = []api.WorkspaceParameter{}
				}
				store.Put(ctx, params)
			}

			if isJSON(cmd) {
				return printJSON(cmd, params)
			}
			if len(params) == 0 {
				newFormatter(cmd).Empty("No published parameters")
				return nil
			}
			return writeParamTable(cmd, params)
		}),
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the parameter cache")
	flagAlias(cmd.Flags(), "no-cache", "nc")
	return cmd
}

func writeParamTable(cmd *cobra.Command, params []api.WorkspaceParameter) error {
	f := newFormatter(cmd)
	f.StartTable([]string{"NAME", "TYPE", "OPTIONAL", "DEFAULT", "DESCRIPTION"})
	for _, p := range params {
		def := ""
		if p.DefaultValue != nil {
			def = fmt.Sprint(p.DefaultValue)
		}
		f.Row(p.Name, p.Type, strconv.FormatBool(p.Optional), truncate(def, 30), truncate(p.Description, 50))
	}
	return f.EndTable()
}

// withWorkspace calls fetch with the workspace name as given. On a 404 it
// fuzzy-matches the name against the repository's workspaces and retries once
// with the match.
func withWorkspace[T any](ctx context.Context, client *api.Client, repo, name string, fetch func(string) (api.Response[T], error)) (api.Response[T], error) {
	resp, err := fetch(name)
	if err == nil || !api.IsNotFoundError(err) {
		return resp, err
	}

	items, listErr := client.GetRepositoryItems(ctx, repo, "WORKSPACE", -1, -1)
	if listErr != nil {
		return resp, err
	}
	named := make([]resolve.Named, 0, len(items.Data.Items))
	for _, item := range items.Data.Items {
		named = append(named, resolve.Named{Name: item.Name, Title: item.Title})
	}
	match, matchErr := resolve.FuzzyMatch(name, named)
	if matchErr != nil {
		return resp, matchErr
	}
	if match == name {
		return resp, err
	}
	slog.Debug("resolved workspace", "query", name, "match", match)
	return fetch(match)
}

// paramsCache picks the Redis store when FMEFLOW_REDIS_URL is set and
// reachable, else the file store.
func paramsCache(ctx context.Context, serverURL, repo, workspace string) (cache.Cache, func()) {
	if redisURL := os.Getenv(cache.EnvRedisURL); redisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, redisURL)
		if err == nil {
			return cache.NewRedisStore(rdb, "params", serverURL, repo, workspace), func() { _ = rdb.Close() }
		}
		slog.Debug("redis cache unavailable, using file cache", "error", err)
	}
	return cache.NewStore(resolveCacheDir(), "params", serverURL, repo, workspace), func() {}
}
