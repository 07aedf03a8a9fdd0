package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
)

func newReposCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repos",
		Aliases: []string{"repositories", "repo"},
		Short:   "Browse repositories",
	}
	cmd.AddCommand(newReposListCmd())
	return cmd
}

func newReposListCmd() *cobra.Command {
	cfg := ListConfig[api.Repository]{
		Use:               "list",
		Short:             "List repositories visible to the token",
		DisablePagination: true,
		EmptyMessage:      "No repositories found",
		Example: `  fmeflow repos list
  fmeflow repos list --output json --query '.items[].name'`,
		Fetch: func(ctx context.Context, client *api.Client, _, _ int) (ListResult[api.Repository], error) {
			resp, err := client.GetRepositories(ctx)
			if err != nil {
				return ListResult[api.Repository]{}, err
			}
			return ListResult[api.Repository]{Items: resp.Data.Items, TotalCount: resp.Data.TotalCount}, nil
		},
		Headers: []string{"NAME", "OWNER", "DESCRIPTION"},
		RowFunc: func(r api.Repository) []string {
			return []string{r.Name, r.Owner, truncate(r.Description, 60)}
		},
	}

	cmd := NewListCommand(cfg, listClient)
	cmd.Aliases = []string{"ls"}
	return cmd
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}
