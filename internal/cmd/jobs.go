package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/dryrun"
)

// errAborted is returned when a request was dropped because the command's
// context ended.
var errAborted = errors.New("request aborted")

// abortErr turns an aborted response into an error.
func abortErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errAborted
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job", "j"},
		Short:   "Submit and track jobs",
	}
	cmd.AddCommand(newJobsSubmitCmd())
	cmd.AddCommand(newJobsStatusCmd())
	cmd.AddCommand(newJobsCancelCmd())
	return cmd
}

func newJobsSubmitCmd() *cobra.Command {
	var (
		rawParams  []string
		paramsFile string
		sync       bool
		aoiPath    string
	)

	cmd := &cobra.Command{
		Use:     "submit <workspace>",
		Aliases: []string{"s"},
		Short:   "Submit a workspace job",
		Long: `Submit a workspace to the job queue.

Parameters come from --params-file (a JSON object) and then -p KEY=value,
later values winning. Keys starting with tm_ become job directives
(tm_ttc, tm_ttl, tm_tag, tm_description, tm_rtc). With
opt_servicemode=schedule the start, name, category, trigger and description
parameters schedule the job instead of running it now.

With --aoi the polygon in the file (GeoJSON or Esri JSON) is reprojected to
WGS84, validated and turned into MINX/MINY/MAXX/MAXY, AREA, AreaOfInterest
and ExtentGeoJson parameters. Explicit -p values win over derived ones.`,
		Example: `  fmeflow jobs submit clip.fmw -p FORMAT=SHAPE
  fmeflow jobs submit clip.fmw --aoi area.geojson --sync
  fmeflow jobs submit report.fmw -p tm_tag=nightly --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(rawParams, paramsFile)
			if err != nil {
				return err
			}
			if sync && api.IsScheduleMode(params) {
				return fmt.Errorf("--sync cannot be combined with schedule parameters")
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

			endpoint := "submit"
			if sync {
				endpoint = "transact"
			}
			target, _ := api.BuildServiceURL(client.Config().ServerURL, "fmerest", "v3", "transformations", endpoint, repo, workspace)
			preview := dryrun.NewPreview("submit", "job")
			preview.Method = http.MethodPost
			preview.URL = target
			preview.Details = map[string]any{
				"repository": repo,
				"workspace":  workspace,
				"request":    api.FormatJobParams(params),
			}
			if api.IsScheduleMode(params) {
				preview.Warn("parameters request schedule mode")
			}
			if handled, err := maybeDryRun(cmd, preview); handled {
				return err
			}

			if sync {
				resp, err := client.SubmitSyncJob(ctx, workspace, params, repo)
				if err != nil {
					return err
				}
				if resp.Aborted() {
					return abortErr(ctx)
				}
				if isJSON(cmd) {
					return printJSON(cmd, resp.Data)
				}
				return newFormatter(cmd).KeyValues(
					"Job", strconv.Itoa(resp.Data.ID),
					"Status", statusColor(resp.Data.Status),
					"Message", resp.Data.StatusMessage,
					"Features", strconv.Itoa(resp.Data.NumFeaturesOutput),
				)
			}

			resp, err := client.SubmitJob(ctx, workspace, params, repo)
			if err != nil {
				return err
			}
			if resp.Aborted() {
				return abortErr(ctx)
			}
			if isJSON(cmd) {
				return printJSON(cmd, resp.Data)
			}
			printAction(cmd, "Submitted", "job", resp.Data.ID, workspace)
			return nil
		}),
	}

	cmd.Flags().StringArrayVarP(&rawParams, "param", "p", nil, "Job parameter KEY=value (repeatable)")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "JSON object of parameters ('-' for stdin)")
	flagAlias(cmd.Flags(), "params-file", "pfile")
	cmd.Flags().BoolVar(&sync, "sync", false, "Wait for the job to finish (transact endpoint)")
	flagAlias(cmd.Flags(), "sync", "wait")
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "Area of interest file (GeoJSON or Esri JSON, '-' for stdin)")
	return cmd
}

func newJobsStatusCmd() *cobra.Command {
	var concurrency int
	var noProgress bool

	cmd := &cobra.Command{
		Use:     "status <id>...",
		Aliases: []string{"get", "g"},
		Short:   "Show job status",
		Example: `  fmeflow jobs status 42
  fmeflow jobs status 42,43 44 --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			ctx := cmd.Context()
			if len(ids) == 1 {
				resp, err := client.GetJobStatus(ctx, ids[0])
				if err != nil {
					return err
				}
				if resp.Aborted() {
					return abortErr(ctx)
				}
				if isJSON(cmd) {
					return printJSON(cmd, resp.Data)
				}
				return writeJob(cmd, resp.Data)
			}

			results := runBulkOperation(ctx, ids, int64(concurrency), bulkProgressEnabled(cmd, noProgress), cmd.ErrOrStderr(),
				func(ctx context.Context, id int) (api.Job, error) {
					resp, err := client.GetJobStatus(ctx, id)
					if err == nil && resp.Aborted() {
						err = abortErr(ctx)
					}
					return resp.Data, err
				})

			if !isJSON(cmd) {
				f := newFormatter(cmd)
				f.StartTable([]string{"ID", "STATUS", "ENGINE", "DETAIL"})
				for _, r := range results {
					if !r.Success {
						f.Row(strconv.Itoa(r.ID), red("ERROR"), "", r.Message)
						continue
					}
					job := r.Data.(api.Job)
					detail := ""
					if job.Result != nil {
						detail = job.Result.StatusMessage
					}
					f.Row(strconv.Itoa(job.ID), statusColor(job.Status), job.EngineName, truncate(detail, 50))
				}
				if err := f.EndTable(); err != nil {
					return err
				}
			}
			return writeBulkResult(cmd, "Fetched", results)
		}),
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", DefaultConcurrency, "Parallel requests for multiple IDs")
	flagAlias(cmd.Flags(), "concurrency", "cc")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide progress output")
	flagAlias(cmd.Flags(), "no-progress", "np")
	return cmd
}

func newJobsCancelCmd() *cobra.Command {
	var concurrency int
	var noProgress bool

	cmd := &cobra.Command{
		Use:     "cancel <id>...",
		Aliases: []string{"abort"},
		Short:   "Cancel queued or running jobs",
		Args:    cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}

			preview := dryrun.NewPreview("cancel", "jobs")
			preview.Method = http.MethodPost
			preview.Details = map[string]any{"ids": ids}
			if handled, err := maybeDryRun(cmd, preview); handled {
				return err
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			defer client.Dispose()

			ctx := cmd.Context()
			if len(ids) == 1 {
				resp, err := client.CancelJob(ctx, ids[0])
				if err != nil {
					return err
				}
				if resp.Aborted() {
					return abortErr(ctx)
				}
				if isJSON(cmd) {
					return printJSON(cmd, map[string]any{"id": ids[0], "cancelled": true})
				}
				printAction(cmd, "Cancelled", "job", ids[0], "")
				return nil
			}

			results := runBulkOperation(ctx, ids, int64(concurrency), bulkProgressEnabled(cmd, noProgress), cmd.ErrOrStderr(),
				func(ctx context.Context, id int) (any, error) {
					resp, err := client.CancelJob(ctx, id)
					if err == nil && resp.Aborted() {
						err = abortErr(ctx)
					}
					return nil, err
				})
			if !isJSON(cmd) {
				for _, r := range results {
					if !r.Success {
						_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "job %d: %s\n", r.ID, r.Message)
					}
				}
			}
			return writeBulkResult(cmd, "Cancelled", results)
		}),
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", DefaultConcurrency, "Parallel requests")
	flagAlias(cmd.Flags(), "concurrency", "cc")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide progress output")
	flagAlias(cmd.Flags(), "no-progress", "np")
	return cmd
}

// writeBulkResult prints the summary of a bulk run and fails when any
// operation failed.
func writeBulkResult(cmd *cobra.Command, action string, results []BulkResult) error {
	successCount, failCount := countResults(results)
	if isJSON(cmd) {
		if err := printJSON(cmd, map[string]any{
			"success_count": successCount,
			"fail_count":    failCount,
			"results":       results,
		}); err != nil {
			return err
		}
	} else if !flags.Quiet {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d jobs (%d failed)\n", action, successCount, failCount)
	}
	if failCount > 0 {
		return fmt.Errorf("%d of %d jobs failed", failCount, len(results))
	}
	return nil
}

func writeJob(cmd *cobra.Command, job api.Job) error {
	pairs := []string{
		"Job", strconv.Itoa(job.ID),
		"Status", statusColor(job.Status),
		"Engine", job.EngineName,
		"Host", job.EngineHost,
		"Delivered", job.TimeDelivered,
	}
	if r := job.Result; r != nil {
		pairs = append(pairs,
			"Message", r.StatusMessage,
			"Features", strconv.Itoa(r.NumFeaturesOutput),
			"Started", r.TimeStarted,
			"Finished", r.TimeFinished,
		)
	}
	return newFormatter(cmd).KeyValues(pairs...)
}

func statusColor(status string) string {
	switch status {
	case "SUCCESS":
		return green(status)
	case "FME_FAILURE", "JOB_FAILURE", "ABORTED", "CANCELLED":
		return red(status)
	case "":
		return ""
	default:
		return yellow(status)
	}
}
