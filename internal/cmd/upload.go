package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/dryrun"
)

func newUploadCmd() *cobra.Command {
	var subfolder string
	var name string

	cmd := &cobra.Command{
		Use:     "upload <file>",
		Aliases: []string{"up"},
		Short:   "Upload a file to the temporary shared resource",
		Long: `Upload a file to FME_SHAREDRESOURCE_TEMP so a workspace can read it.

The printed path can be passed as a workspace parameter. Without
--subfolder a random one is created.`,
		Example: `  fmeflow upload parcels.zip
  fmeflow upload - --name input.csv --subfolder batch-7 < input.csv`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			var r io.Reader
			fileName := name
			if args[0] == "-" {
				if fileName == "" {
					return fmt.Errorf("--name is required when reading stdin")
				}
				r = cmd.InOrStdin()
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open file: %w", err)
				}
				defer func() { _ = f.Close() }()
				r = f
				if fileName == "" {
					fileName = filepath.Base(args[0])
				}
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			segments := []string{"v3", "resources", "connections", api.TempResource, "filesys"}
			if subfolder != "" {
				segments = append(segments, subfolder)
			}
			target, _ := api.BuildServiceURL(client.Config().ServerURL, "fmerest", segments...)
			preview := dryrun.NewPreview("upload", "file")
			preview.Method = http.MethodPost
			preview.URL = target
			preview.Details = map[string]any{"name": fileName, "subfolder": subfolder}
			if handled, err := maybeDryRun(cmd, preview); handled {
				return err
			}

			ctx := cmd.Context()
			resp, err := client.UploadToTemp(ctx, fileName, r, api.UploadOptions{Subfolder: subfolder})
			if err != nil {
				return err
			}
			if resp.Aborted() {
				return abortErr(ctx)
			}
			if isJSON(cmd) {
				return printJSON(cmd, resp.Data)
			}
			printAction(cmd, "Uploaded", "file", resp.Data.Name, resp.Data.Path)
			return nil
		}),
	}

	cmd.Flags().StringVar(&subfolder, "subfolder", "", "Subfolder under the temp resource (random when empty)")
	flagAlias(cmd.Flags(), "subfolder", "sub")
	cmd.Flags().StringVarP(&name, "name", "n", "", "File name on the server (defaults to the local name)")
	return cmd
}
