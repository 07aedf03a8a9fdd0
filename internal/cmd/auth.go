package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/config"
	"github.com/fmeflow/fmeflow-cli/internal/validation"
)

// newAuthCmd returns the auth command with subcommands
func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"au"},
		Short:   "Manage FME Flow credentials",
		Long:    "Configure FME Flow server URL, token and repository, stored in your OS keychain.",
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthProfilesCmd())
	cmd.AddCommand(newAuthUseCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		timeoutMs  int
		envFile    string
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save credentials to the keychain",
		Long: strings.TrimSpace(`
Save FME Flow connection details to your OS keychain.

You'll need:
- Server URL: e.g. https://fme.example.com
- Token: generate one under User Settings > Manage Tokens in FME Flow
- Repository: the default repository for workspace commands

The token is checked against /fmerest/v3/info before it is saved unless
--skip-verify is given.
`),
		Example: strings.TrimSpace(`
  # Save the default profile
  fmeflow auth login --server-url https://fme.example.com --token TOKEN --repo Samples

  # Save a named profile with a 30s webhook timeout
  fmeflow auth login --profile staging --server-url https://fme-stg.example.com --token TOKEN --repo Samples --timeout-ms 30000

  # Load FMEFLOW_* values from a .env file
  fmeflow auth login --env-file .env
`),
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			p := config.Profile{
				ServerURL:          strings.TrimSpace(flags.ServerURL),
				Token:              strings.TrimSpace(flags.Token),
				Repository:         strings.TrimSpace(flags.Repository),
				TimeoutMs:          timeoutMs,
				GeometryServiceURL: strings.TrimSpace(flags.GeometryServiceURL),
			}
			profile := strings.TrimSpace(flags.Profile)

			if envFile != "" {
				envVars, err := loadAuthEnvFile(envFile)
				if err != nil {
					return err
				}
				applyAuthEnvFileRuntimeVars(envVars)
				if err := fillProfileFromEnv(&p, envVars); err != nil {
					return fmt.Errorf("%s: %w", envFile, err)
				}
				if profile == "" {
					profile = strings.TrimSpace(envVars[config.EnvProfile])
				}
			}
			if profile == "" {
				profile = "default"
			}

			if p.ServerURL == "" {
				return fmt.Errorf("--server-url is required")
			}
			if p.Token == "" {
				return fmt.Errorf("--token is required")
			}
			if p.Repository == "" {
				return fmt.Errorf("--repo is required")
			}
			if p.TimeoutMs < 0 {
				return fmt.Errorf("--timeout-ms must be >= 0")
			}
			if err := validation.ValidateServerURL(p.ServerURL); err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}
			if err := validation.ValidateName("repository", p.Repository); err != nil {
				return err
			}
			if p.GeometryServiceURL != "" {
				if err := validation.ValidateServiceURL(p.GeometryServiceURL); err != nil {
					return fmt.Errorf("invalid geometry service URL: %w", err)
				}
			}

			var info *api.ServerInfo
			if !skipVerify {
				client, err := api.NewClient(api.ClientConfig{
					ServerURL:  p.ServerURL,
					Token:      p.Token,
					Repository: p.Repository,
					TimeoutMs:  p.TimeoutMs,
				}, api.WithTransport(newVerifyTransport()))
				if err != nil {
					return err
				}
				defer client.Dispose()
				resp, err := client.TestConnection(cmd.Context())
				if err != nil {
					return fmt.Errorf("credentials rejected: %w", err)
				}
				info = &resp.Data
			}

			if err := config.SaveProfile(profile, p); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			if isJSON(cmd) {
				payload := map[string]any{
					"saved":      true,
					"profile":    profile,
					"server_url": strings.TrimSuffix(p.ServerURL, "/"),
					"repository": p.Repository,
				}
				if info != nil {
					payload["server_version"] = info.Version
					payload["server_build"] = info.Build
				}
				return printJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Credentials saved.")
			_, _ = fmt.Fprintf(out, "  Server: %s\n", strings.TrimSuffix(p.ServerURL, "/"))
			_, _ = fmt.Fprintf(out, "  Repository: %s\n", p.Repository)
			if profile != "default" {
				_, _ = fmt.Fprintf(out, "  Profile: %s\n", profile)
			}
			if info != nil {
				_, _ = fmt.Fprintf(out, "  FME Flow: %s\n", info.Build)
			}
			return nil
		}),
	}

	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "Timeout for webhook runs in milliseconds (0 = none)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load FMEFLOW_* (and FMEFLOW_KEYRING_*) values from a .env file")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Save without checking the token against the server")
	flagAlias(cmd.Flags(), "env-file", "env")
	flagAlias(cmd.Flags(), "skip-verify", "sv")

	return cmd
}

// newVerifyTransport builds the transport used to check new credentials.
func newVerifyTransport() *api.HTTPTransport {
	t := api.NewHTTPTransport(api.DefaultTokenRegistry().Config())
	if flags.Timeout > 0 {
		t.HTTP.Timeout = flags.Timeout
	}
	t.UserAgent = fmt.Sprintf("fmeflow-cli/%s", version)
	applyRetryOverrides(t)
	return t
}

func loadAuthEnvFile(path string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--env-file requires a file path")
	}
	envVars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read --env-file %q: %w", path, err)
	}
	return envVars, nil
}

// fillProfileFromEnv sets fields still empty in p from FMEFLOW_* entries.
func fillProfileFromEnv(p *config.Profile, env map[string]string) error {
	set := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(env[key])
		}
	}
	set(&p.ServerURL, config.EnvServerURL)
	set(&p.Token, config.EnvToken)
	set(&p.Repository, config.EnvRepository)
	set(&p.GeometryServiceURL, config.EnvGeometryServiceURL)
	if raw := strings.TrimSpace(env[config.EnvTimeoutMs]); raw != "" && p.TimeoutMs == 0 {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid %s: must be a non-negative integer", config.EnvTimeoutMs)
		}
		p.TimeoutMs = ms
	}
	return nil
}

// applyAuthEnvFileRuntimeVars copies keyring settings from --env-file into
// the process environment when they are not already exported.
func applyAuthEnvFileRuntimeVars(envVars map[string]string) {
	for _, key := range []string{"FMEFLOW_KEYRING_BACKEND", "FMEFLOW_KEYRING_PASSWORD", "FMEFLOW_CREDENTIALS_DIR"} {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if value := strings.TrimSpace(envVars[key]); value != "" {
			_ = os.Setenv(key, value)
		}
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved credentials",
		Long:  "Display the resolved connection details (token masked). Environment variables and flags override the stored profile.",
		Example: strings.TrimSpace(`
  fmeflow auth status
  fmeflow auth status --json
`),
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			p, err := newClientFactory().profile()
			if err != nil {
				if err == config.ErrNotConfigured {
					if isJSON(cmd) {
						return printJSON(cmd, map[string]any{
							"authenticated": false,
							"message":       "Not configured. Run 'fmeflow auth login'.",
						})
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Not configured.")
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Run 'fmeflow auth login' to save credentials.")
					return nil
				}
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			profile := strings.TrimSpace(flags.Profile)
			if profile == "" {
				profile, _ = config.CurrentProfile()
			}
			source := getConfigSource()

			if isJSON(cmd) {
				payload := map[string]any{
					"authenticated": true,
					"server_url":    p.ServerURL,
					"repository":    p.Repository,
					"token":         maskToken(p.Token),
					"source":        source,
				}
				if p.TimeoutMs > 0 {
					payload["timeout_ms"] = p.TimeoutMs
				}
				if p.GeometryServiceURL != "" {
					payload["geometry_service_url"] = p.GeometryServiceURL
				}
				if profile != "" {
					payload["profile"] = profile
				}
				return printJSON(cmd, payload)
			}

			f := newFormatter(cmd)
			pairs := []string{
				"Server", p.ServerURL,
				"Repository", p.Repository,
				"Token", maskToken(p.Token),
				"Source", source,
			}
			if profile != "" {
				pairs = append(pairs, "Profile", profile)
			}
			if p.TimeoutMs > 0 {
				pairs = append(pairs, "Webhook timeout", fmt.Sprintf("%dms", p.TimeoutMs))
			}
			if p.GeometryServiceURL != "" {
				pairs = append(pairs, "Geometry service", p.GeometryServiceURL)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Authenticated")
			return f.KeyValues(pairs...)
		}),
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove credentials from the keychain",
		Long:  "Delete the stored profile (the current one unless --profile is given).",
		Example: strings.TrimSpace(`
  fmeflow auth logout
  fmeflow auth logout --profile staging
`),
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			profile := strings.TrimSpace(flags.Profile)
			if profile == "" {
				current, err := config.CurrentProfile()
				if err == nil {
					profile = current
				}
			}
			if _, err := config.LoadProfile(profile); err != nil {
				if err == config.ErrNotConfigured {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No credentials found.")
					return nil
				}
				return err
			}

			if err := config.DeleteProfile(profile); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			printAction(cmd, "Removed", "profile", profile, "")
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"removed": true, "profile": profile})
			}
			return nil
		}),
	}
}

func newAuthProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"ls"},
		Short:   "List saved profiles",
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			profiles, err := config.ListProfiles()
			if err != nil {
				return err
			}
			current, _ := config.CurrentProfile()

			if isJSON(cmd) {
				items := make([]map[string]any, 0, len(profiles))
				for _, name := range profiles {
					items = append(items, map[string]any{"name": name, "current": name == current})
				}
				return printJSON(cmd, items)
			}

			f := newFormatter(cmd)
			if len(profiles) == 0 {
				f.Empty("No profiles saved. Run 'fmeflow auth login'.")
				return nil
			}
			for _, name := range profiles {
				marker := " "
				if name == current {
					marker = "*"
				}
				f.Row(marker, name)
			}
			return f.EndTable()
		}),
	}
}

func newAuthUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile>",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			profiles, err := config.ListProfiles()
			if err != nil {
				return err
			}
			found := false
			for _, p := range profiles {
				if p == name {
					found = true
					break
				}
			}
			if !found {
				if s := suggestCommand(name, profiles); s != "" {
					return fmt.Errorf("profile %q not found; did you mean %q?", name, s)
				}
				return fmt.Errorf("profile %q not found", name)
			}
			if err := config.SetCurrentProfile(name); err != nil {
				return err
			}
			printAction(cmd, "Switched to", "profile", name, "")
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"current": name})
			}
			return nil
		}),
	}
}

// getConfigSource reports where the connection details come from.
func getConfigSource() string {
	switch {
	case flags.ServerURL != "" || flags.Token != "":
		return "flags"
	case os.Getenv(config.EnvServerURL) != "" && os.Getenv(config.EnvToken) != "":
		return "environment"
	case os.Getenv(config.EnvProfile) != "":
		return "environment (profile)"
	default:
		return "keychain"
	}
}
