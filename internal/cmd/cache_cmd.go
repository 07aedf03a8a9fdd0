package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/cache"
	"github.com/fmeflow/fmeflow-cli/internal/debug"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		Aliases: []string{"ch"},
		Short:   "Manage the workspace parameter cache",
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())
	return cmd
}

// CacheEntry is a file in the cache directory.
type CacheEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cached data (file cache and Redis when configured)",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := resolveCacheDir()
			if dir == "" {
				return fmt.Errorf("could not determine cache directory")
			}
			cache.ClearAll(dir)

			result := map[string]any{"dir": dir, "cleared": true}
			if redisURL := os.Getenv(cache.EnvRedisURL); redisURL != "" {
				ctx := cmd.Context()
				rdb, err := cache.NewRedisClient(ctx, redisURL)
				if err != nil {
					return fmt.Errorf("redis cache: %w", err)
				}
				defer func() { _ = rdb.Close() }()
				if err := cache.ClearAllRedis(ctx, rdb); err != nil {
					return fmt.Errorf("redis cache: %w", err)
				}
				result["redis"] = debug.RedactURL(redisURL)
			}

			if isJSON(cmd) {
				return printJSON(cmd, result)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", dir)
			if r, ok := result["redis"]; ok {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Redis cache cleared: %s\n", r)
			}
			return nil
		}),
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the cache directory and its entries",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := resolveCacheDir()
			if dir == "" {
				return fmt.Errorf("could not determine cache directory")
			}

			entries := []CacheEntry{}
			if dirEntries, err := os.ReadDir(dir); err == nil {
				for _, e := range dirEntries {
					if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
						continue
					}
					info, err := e.Info()
					if err != nil {
						continue
					}
					entries = append(entries, CacheEntry{Name: e.Name(), Size: info.Size()})
				}
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"dir": dir, "entries": entries})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), dir)
			for _, e := range entries {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s (%d bytes)\n", e.Name, e.Size)
			}
			return nil
		}),
	}
}
