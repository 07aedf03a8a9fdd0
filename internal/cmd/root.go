package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/debug"
	"github.com/fmeflow/fmeflow-cli/internal/dryrun"
	"github.com/fmeflow/fmeflow-cli/internal/outfmt"
	"github.com/fmeflow/fmeflow-cli/internal/validation"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	Output       string
	Color        string
	Debug        bool
	DryRun       bool
	Quiet        bool
	Silent       bool
	JSON         bool
	AllowPrivate bool
	Query        string
	QueryFile    string
	Template     string
	Compact      bool
	Timeout      time.Duration

	Profile            string
	ServerURL          string
	Token              string
	Repository         string
	GeometryServiceURL string

	MaxRateLimitRetries     int
	Max5xxRetries           int
	RateLimitDelay          time.Duration
	ServerErrorDelay        time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerResetTime time.Duration

	TimeoutSet                 bool
	MaxRateLimitRetriesSet     bool
	Max5xxRetriesSet           bool
	RateLimitDelaySet          bool
	ServerErrorDelaySet        bool
	CircuitBreakerThresholdSet bool
	CircuitBreakerResetTimeSet bool
}

// flags holds the global command flags. It is reset at the start of every
// Execute() call; code reading flags outside a command's RunE sees the
// previous invocation.
var flags = defaultFlags()

func defaultFlags() rootFlags {
	return rootFlags{
		Output:       defaultOutput(),
		Color:        "auto",
		AllowPrivate: parseBoolEnv("FMEFLOW_ALLOW_PRIVATE"),
		Timeout:      api.DefaultTimeout,
	}
}

func defaultOutput() string {
	value := strings.TrimSpace(os.Getenv("FMEFLOW_OUTPUT"))
	if value != "" {
		return normalizeOutputFormat(value)
	}
	return "text"
}

func parseBoolEnv(key string) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		switch strings.ToLower(value) {
		case "yes", "y", "on":
			return true
		}
		return false
	}
	return b
}

func normalizeOutputFormat(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "ndjson" {
		return "jsonl"
	}
	return value
}

func loadQueryFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("--query-file requires a file path")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read query from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read --query-file %q: %w", path, err)
		}
	}

	query := strings.TrimSpace(string(data))
	if query == "" {
		return "", fmt.Errorf("--query-file %q is empty", path)
	}
	return query, nil
}

func loadTemplate(value string) (string, error) {
	if strings.HasPrefix(value, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return "", fmt.Errorf("failed to read template file: %w", err)
		}
		return string(data), nil
	}
	return value, nil
}

//go:embed help.txt
var helpText string

// loadDotEnv loads ~/.fmeflow/.env when present. Variables already exported
// are kept.
func loadDotEnv() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".fmeflow", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	// Runs before the flag reset so env-driven defaults see the file.
	loadDotEnv()

	flags = defaultFlags()

	root := &cobra.Command{
		Use:                "fmeflow",
		Short:              "CLI for FME Flow workspaces, jobs and areas of interest",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true,
		PersistentPreRunE:  persistentPreRun,
	}

	root.SetContext(ctx)
	root.SetArgs(args)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd.Name() == root.Name() && !cmd.HasParent() {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), helpText)
			return
		}
		defaultHelp(cmd, args)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.Output, "output", "o", flags.Output, "Output format: text|json|jsonl|ndjson (env FMEFLOW_OUTPUT)")
	pf.BoolVarP(&flags.JSON, "json", "j", false, "Shorthand for --output json")
	pf.StringVarP(&flags.Query, "query", "q", "", "JQ expression to filter JSON output")
	pf.StringVar(&flags.QueryFile, "query-file", "", "Read JQ expression from file ('-' for stdin)")
	pf.StringVar(&flags.Template, "template", "", "Go template string (or @path) to render JSON output")
	pf.BoolVar(&flags.Compact, "compact-json", false, "Compact JSON output (no indentation)")
	pf.StringVar(&flags.Color, "color", flags.Color, "Color output: auto|always|never")
	pf.BoolVar(&flags.AllowPrivate, "allow-private", flags.AllowPrivate, "Allow private/localhost server URLs (env FMEFLOW_ALLOW_PRIVATE)")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Preview job submissions without sending them")
	pf.BoolVarP(&flags.Quiet, "quiet", "Q", false, "Suppress non-essential output")
	pf.BoolVar(&flags.Silent, "silent", false, "Suppress non-error output to stderr")
	pf.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "HTTP request timeout (e.g., 30s, 2m); also bounds webhook calls")
	pf.StringVar(&flags.Profile, "profile", "", "Credential profile to use (env FMEFLOW_PROFILE)")
	pf.StringVar(&flags.ServerURL, "server-url", "", "FME Flow server URL (overrides profile and env)")
	pf.StringVar(&flags.Token, "token", "", "FME Flow API token (overrides profile and env)")
	pf.StringVarP(&flags.Repository, "repo", "r", "", "Repository (overrides profile and env)")
	pf.StringVar(&flags.GeometryServiceURL, "geometry-service-url", "", "ArcGIS geometry service used for area fallbacks")
	pf.IntVar(&flags.MaxRateLimitRetries, "max-rate-limit-retries", 0, "Max retries for 429 responses (overrides env)")
	pf.IntVar(&flags.Max5xxRetries, "max-5xx-retries", 0, "Max retries for 5xx responses (overrides env)")
	pf.DurationVar(&flags.RateLimitDelay, "rate-limit-delay", 0, "Base delay for 429 retries (overrides env)")
	pf.DurationVar(&flags.ServerErrorDelay, "server-error-delay", 0, "Delay between 5xx retries (overrides env)")
	pf.IntVar(&flags.CircuitBreakerThreshold, "circuit-breaker-threshold", 0, "Failures before circuit opens (overrides env)")
	pf.DurationVar(&flags.CircuitBreakerResetTime, "circuit-breaker-reset-time", 0, "Circuit breaker reset time (overrides env)")

	flagAlias(pf, "output", "out")
	flagAlias(pf, "query", "jq")
	flagAlias(pf, "query-file", "qf")
	flagAlias(pf, "template", "tpl")
	flagAlias(pf, "compact-json", "cj")
	flagAlias(pf, "allow-private", "ap")
	flagAlias(pf, "dry-run", "dr")
	flagAlias(pf, "debug", "dbg")
	flagAlias(pf, "silent", "sil")
	flagAlias(pf, "timeout", "to")
	flagAlias(pf, "profile", "pf")
	flagAlias(pf, "repo", "repository")
	flagAlias(pf, "max-5xx-retries", "m5x")
	flagAlias(pf, "circuit-breaker-threshold", "cbt")
	flagAlias(pf, "circuit-breaker-reset-time", "cbr")

	root.AddCommand(newAuthCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newReposCmd())
	root.AddCommand(newWorkspacesCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newUploadCmd())
	root.AddCommand(newAOICmd())
	root.AddCommand(newAPICmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), enhanceUnknownError(err, root, targetCmd))
		}
		return err
	}
	return nil
}

func persistentPreRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	flags.Output = normalizeOutputFormat(flags.Output)
	if flags.QueryFile != "" {
		if flags.Query != "" {
			return fmt.Errorf("--query-file cannot be used with --query")
		}
		query, err := loadQueryFile(flags.QueryFile)
		if err != nil {
			return err
		}
		flags.Query = query
	}

	if flags.JSON {
		if flagOrAliasChanged(cmd, "output") && flags.Output != "json" {
			return fmt.Errorf("--json conflicts with --output %s", flags.Output)
		}
		flags.Output = "json"
	}
	if (flags.Query != "" || flags.Template != "") && flags.Output == "text" {
		if flagOrAliasChanged(cmd, "output") {
			return fmt.Errorf("--query/--query-file/--template require --output json or jsonl (or --json)")
		}
		flags.Output = "json"
	}

	mode, err := outfmt.Parse(flags.Output)
	if err != nil {
		return err
	}
	ctx = outfmt.WithMode(ctx, mode)
	ctx = outfmt.WithCompact(ctx, flags.Compact)
	if flags.Query != "" {
		ctx = outfmt.WithQuery(ctx, flags.Query)
	}
	if flags.Template != "" {
		tmpl, err := loadTemplate(flags.Template)
		if err != nil {
			return err
		}
		ctx = outfmt.WithTemplate(ctx, tmpl)
	}

	if flags.Silent || flags.Quiet {
		cmd.SetErr(io.Discard)
	}
	if flags.Quiet && mode == outfmt.Text {
		cmd.SetOut(io.Discard)
	}

	allowPrivate := parseBoolEnv("FMEFLOW_ALLOW_PRIVATE") || flags.AllowPrivate
	validation.SetAllowPrivate(allowPrivate)
	if allowPrivate && !flags.Silent && !flags.Quiet {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Warning: allowing private/localhost URLs (use only with trusted targets).")
	}

	debug.SetupLogger(flags.Debug)
	ctx = debug.WithDebug(ctx, flags.Debug)
	ctx = dryrun.WithDryRun(ctx, flags.DryRun)

	fs := cmd.Flags()
	flags.TimeoutSet = flagOrAliasChanged(cmd, "timeout")
	flags.MaxRateLimitRetriesSet = fs.Changed("max-rate-limit-retries")
	flags.Max5xxRetriesSet = flagOrAliasChanged(cmd, "max-5xx-retries")
	flags.RateLimitDelaySet = fs.Changed("rate-limit-delay")
	flags.ServerErrorDelaySet = fs.Changed("server-error-delay")
	flags.CircuitBreakerThresholdSet = flagOrAliasChanged(cmd, "circuit-breaker-threshold")
	flags.CircuitBreakerResetTimeSet = flagOrAliasChanged(cmd, "circuit-breaker-reset-time")

	if flags.TimeoutSet && flags.Timeout < 0 {
		return fmt.Errorf("--timeout must be >= 0")
	}
	if flags.MaxRateLimitRetriesSet && flags.MaxRateLimitRetries < 0 {
		return fmt.Errorf("--max-rate-limit-retries must be >= 0")
	}
	if flags.Max5xxRetriesSet && flags.Max5xxRetries < 0 {
		return fmt.Errorf("--max-5xx-retries must be >= 0")
	}
	if flags.RateLimitDelaySet && flags.RateLimitDelay < 0 {
		return fmt.Errorf("--rate-limit-delay must be >= 0")
	}
	if flags.ServerErrorDelaySet && flags.ServerErrorDelay < 0 {
		return fmt.Errorf("--server-error-delay must be >= 0")
	}
	if flags.CircuitBreakerThresholdSet && flags.CircuitBreakerThreshold < 0 {
		return fmt.Errorf("--circuit-breaker-threshold must be >= 0")
	}
	if flags.CircuitBreakerResetTimeSet && flags.CircuitBreakerResetTime < 0 {
		return fmt.Errorf("--circuit-breaker-reset-time must be >= 0")
	}

	cmd.SetContext(ctx)
	return nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command/flag errors.
// targetCmd is the command Cobra resolved before the error (may be root itself).
func enhanceUnknownError(err error, root *cobra.Command, targetCmd *cobra.Command) string {
	msg := err.Error()

	if strings.Contains(msg, "unknown command") {
		if unknown := extractQuoted(msg); unknown != "" {
			parent := root
			if targetCmd != nil {
				parent = targetCmd
			}
			var names []string
			for _, c := range parent.Commands() {
				if c.IsAvailableCommand() || c.Name() == "help" {
					names = append(names, c.Name())
					names = append(names, c.Aliases...)
				}
			}
			if suggestion := suggestCommand(unknown, names); suggestion != "" {
				return fmt.Sprintf("%s\n\nDid you mean %q?", msg, suggestion)
			}
		}
	}

	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand flag") {
		unknown := extractFlag(msg)
		if unknown == "" {
			return msg
		}
		seen := make(map[string]bool)
		var flagNames []string
		addFlags := func(fs *pflag.FlagSet) {
			fs.VisitAll(func(f *pflag.Flag) {
				for _, name := range []string{"--" + f.Name, shorthandName(f)} {
					if name != "" && !seen[name] {
						seen[name] = true
						flagNames = append(flagNames, name)
					}
				}
			})
		}
		helpCmd := "fmeflow --help"
		if targetCmd != nil {
			addFlags(targetCmd.Flags())
			addFlags(targetCmd.InheritedFlags())
			helpCmd = targetCmd.CommandPath() + " --help"
		} else {
			addFlags(root.PersistentFlags())
		}
		if suggestion := suggestFlag(unknown, flagNames); suggestion != "" {
			return fmt.Sprintf("%s\n\nDid you mean %q?\nRun %q to see supported flags.", msg, suggestion, helpCmd)
		}
		return fmt.Sprintf("%s\n\nRun %q to see supported flags.", msg, helpCmd)
	}

	return msg
}

func shorthandName(f *pflag.Flag) string {
	if f.Shorthand == "" {
		return ""
	}
	return "-" + f.Shorthand
}

// extractQuoted extracts the first double-quoted substring from s.
func extractQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}

// extractFlag extracts a flag name (e.g., "--foo" or "-x") from an error message.
func extractFlag(s string) string {
	idx := strings.Index(s, "--")
	if idx < 0 {
		// "unknown shorthand flag: 'a' in -a"
		idx = strings.LastIndex(s, " -")
		if idx < 0 {
			return ""
		}
		idx++
	}
	rest := s[idx:]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimRight(rest, ".,;:!?\"'")
	if len(rest) < 2 {
		return ""
	}
	return rest
}
