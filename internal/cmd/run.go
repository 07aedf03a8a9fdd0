package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/dryrun"
)

var runServices = []string{string(api.ServiceDownload), string(api.ServiceStreaming), string(api.ServiceSchedule)}

func parseService(s string) (api.Service, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "download", "datadownload":
		return api.ServiceDownload, nil
	case "streaming", "datastreaming", "stream":
		return api.ServiceStreaming, nil
	case "schedule", "submit", "job":
		return api.ServiceSchedule, nil
	default:
		return "", api.NewValidationError("service", s, runServices)
	}
}

func newRunCmd() *cobra.Command {
	var (
		rawParams  []string
		paramsFile string
		service    string
		aoiPath    string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "run <workspace>",
		Short: "Run a workspace through a webhook service",
		Long: `Run a workspace through the data download or data streaming webhook,
or submit it as a job.

Data download returns a status with a result URL. Data streaming returns the
workspace output; write it with --output-file (use '-' for stdout). Parameters that
request schedule mode always go through job submission.`,
		Example: `  fmeflow run clip.fmw --aoi area.geojson -p FORMAT=SHAPE
  fmeflow run export.fmw --service streaming --output-file result.zip
  fmeflow run report.fmw -p opt_servicemode=schedule -p start="2026-01-01 02:00:00" -p name=nightly -p category=reports -p trigger=basic`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			svc, err := parseService(service)
			if err != nil {
				return err
			}
			params, err := parseParams(rawParams, paramsFile)
			if err != nil {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			ctx := cmd.Context()
			repo := repositoryFor(client)
			workspace := args[0]

			if aoiPath != "" {
				g, err := loadAOI(aoiPath)
				if err != nil {
					return err
				}
				derived, err := api.AOIParams(ctx, g, client.Engines())
				if err != nil {
					return err
				}
				params = api.MergeAOIParams(derived, params)
			}

			if api.IsScheduleMode(params) {
				svc = api.ServiceSchedule
			}
			preview := dryrun.NewPreview("run", "workspace")
			preview.Method = http.MethodPost
			preview.Details = map[string]any{
				"repository": repo,
				"workspace":  workspace,
				"service":    string(svc),
				"parameters": len(params),
			}
			switch svc {
			case api.ServiceDownload:
				preview.URL, _ = api.BuildWebhookURL(client.Config().ServerURL, "fmedatadownload", repo, workspace)
				preview.Method = http.MethodGet
			case api.ServiceStreaming:
				preview.URL, _ = api.BuildWebhookURL(client.Config().ServerURL, "fmedatastreaming", repo, workspace)
			default:
				preview.URL, _ = api.BuildServiceURL(client.Config().ServerURL, "fmerest", "v3", "transformations", "submit", repo, workspace)
			}
			if handled, err := maybeDryRun(cmd, preview); handled {
				return err
			}

			resp, err := client.RunWorkspace(ctx, workspace, params, repo, svc)
			if err != nil {
				return err
			}
			if resp.Aborted() {
				return abortErr(ctx)
			}
			return writeRunResult(cmd, resp.Data, outPath)
		}),
	}

	cmd.Flags().StringArrayVarP(&rawParams, "param", "p", nil, "Workspace parameter KEY=value (repeatable)")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "JSON object of parameters ('-' for stdin)")
	flagAlias(cmd.Flags(), "params-file", "pfile")
	cmd.Flags().StringVarP(&service, "service", "s", "download", "Service: download, streaming or schedule")
	flagAlias(cmd.Flags(), "service", "svc")
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "Area of interest file (GeoJSON or Esri JSON, '-' for stdin)")
	cmd.Flags().StringVar(&outPath, "output-file", "", "Write streamed output to this file ('-' for stdout)")
	flagAlias(cmd.Flags(), "output-file", "of")
	return cmd
}

func writeRunResult(cmd *cobra.Command, res api.RunResult, outPath string) error {
	switch {
	case res.Stream != nil:
		stream := res.Stream
		if outPath == "-" {
			_, err := cmd.OutOrStdout().Write(stream.Data)
			return err
		}
		if outPath == "" && stream.FileName != "" && !isJSON(cmd) {
			outPath = stream.FileName
		}
		if outPath != "" {
			if err := os.WriteFile(outPath, stream.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		if isJSON(cmd) {
			payload := map[string]any{"service": res.Service, "stream": stream}
			if outPath != "" {
				payload["path"] = outPath
			}
			return printJSON(cmd, payload)
		}
		if outPath == "" {
			_, err := cmd.OutOrStdout().Write(stream.Data)
			return err
		}
		printAction(cmd, "Wrote", "output", outPath, fmt.Sprintf("%d bytes, %s", stream.Size, stream.ContentType))
		return nil

	case res.Download != nil:
		dl := res.Download
		if isJSON(cmd) {
			if err := printJSON(cmd, res); err != nil {
				return err
			}
		} else {
			info := dl.ServiceResponse.StatusInfo
			pairs := []string{"Status", statusColor(strings.ToUpper(info.Status))}
			if dl.ServiceResponse.JobID != 0 {
				pairs = append(pairs, "Job", strconv.Itoa(dl.ServiceResponse.JobID))
			}
			if dl.ServiceResponse.URL != "" {
				pairs = append(pairs, "Download", dl.ServiceResponse.URL)
			}
			if info.Message != "" {
				pairs = append(pairs, "Message", info.Message)
			}
			if err := newFormatter(cmd).KeyValues(pairs...); err != nil {
				return err
			}
		}
		if !dl.Succeeded() {
			msg := dl.ServiceResponse.StatusInfo.Message
			if msg == "" {
				msg = dl.ServiceResponse.StatusInfo.Status
			}
			return fmt.Errorf("workspace run failed: %s", msg)
		}
		return nil

	case res.Submit != nil:
		if isJSON(cmd) {
			return printJSON(cmd, res)
		}
		printAction(cmd, "Submitted", "job", res.Submit.ID, "")
		return nil
	}
	return nil
}
