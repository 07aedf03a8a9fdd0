package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/config"
)

// MinServerVersion is the oldest FME Flow release the CLI is tested against.
const MinServerVersion = "2021.0.0"

// StatusInfo holds configuration and connection status information
type StatusInfo struct {
	Configured      bool   `json:"configured"`
	ServerURL       string `json:"server_url,omitempty"`
	Repository      string `json:"repository,omitempty"`
	TokenPreview    string `json:"token_preview,omitempty"`
	Profile         string `json:"profile,omitempty"`
	ConfigSource    string `json:"config_source,omitempty"`
	CLIVersion      string `json:"cli_version"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
	ServerReachable *bool  `json:"server_reachable,omitempty"`
	ServerBuild     string `json:"server_build,omitempty"`
	ServerRelease   string `json:"server_release,omitempty"`
	ServerSupported *bool  `json:"server_supported,omitempty"`
	ServerError     string `json:"server_error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var checkOnly bool
	var ping bool

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show configuration and server status",
		Long: `Display the resolved CLI configuration. With --ping the server is
contacted through /fmerest/v3/info and its release is compared against the
minimum supported version.`,
		Example: `  # Show current status
  fmeflow status

  # Contact the server
  fmeflow status --ping

  # Exit non-zero unless configured (and reachable with --ping)
  fmeflow status --check --ping`,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			info := StatusInfo{
				CLIVersion: version,
				GoVersion:  runtime.Version(),
				Platform:   runtime.GOOS + "/" + runtime.GOARCH,
			}

			factory := newClientFactory()
			p, err := factory.profile()
			if err == nil {
				info.Configured = true
				info.ServerURL = p.ServerURL
				info.Repository = p.Repository
				info.TokenPreview = maskToken(p.Token)
				info.ConfigSource = getConfigSource()
				if info.ConfigSource == "keychain" {
					if name, err := config.CurrentProfile(); err == nil {
						info.Profile = name
					}
				}
			}

			if ping && info.Configured {
				reachable := false
				client, clientErr := factory.client()
				if clientErr != nil {
					info.ServerError = clientErr.Error()
				} else {
					resp, err := client.TestConnection(cmd.Context())
					client.Dispose()
					if err != nil {
						info.ServerError = err.Error()
					} else {
						reachable = true
						info.ServerBuild = resp.Data.Build
						info.ServerRelease = resp.Data.Release()
						supported := resp.Data.AtLeast(MinServerVersion)
						info.ServerSupported = &supported
					}
				}
				info.ServerReachable = &reachable
			}

			if checkOnly {
				if !info.Configured {
					return config.ErrNotConfigured
				}
				if info.ServerReachable != nil && !*info.ServerReachable {
					return fmt.Errorf("server unreachable: %s", info.ServerError)
				}
				if isJSON(cmd) {
					return printJSON(cmd, info)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}

			if isJSON(cmd) {
				return printJSON(cmd, info)
			}

			f := newFormatter(cmd)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "CLI STATUS")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", 40))

			var pairs []string
			if info.Configured {
				pairs = append(pairs,
					"Configured", green("yes"),
					"Server", info.ServerURL,
					"Repository", info.Repository,
					"Token", info.TokenPreview,
					"Config Source", info.ConfigSource,
				)
				if info.Profile != "" {
					pairs = append(pairs, "Profile", info.Profile)
				}
				if info.ServerReachable != nil {
					if *info.ServerReachable {
						pairs = append(pairs, "Server Status", green("reachable"), "FME Flow", info.ServerBuild)
						if info.ServerSupported != nil && !*info.ServerSupported {
							pairs = append(pairs, "Warning", yellow("server older than "+MinServerVersion))
						}
					} else {
						pairs = append(pairs, "Server Status", red("unreachable"), "Reason", info.ServerError)
					}
				}
			} else {
				pairs = append(pairs, "Configured", red("no"), "Hint", "Run 'fmeflow auth login' to save credentials")
			}
			pairs = append(pairs,
				"CLI Version", info.CLIVersion,
				"Go Version", info.GoVersion,
				"Platform", info.Platform,
			)
			return f.KeyValues(pairs...)
		}),
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Exit non-zero if not configured or (with --ping) unreachable")
	flagAlias(cmd.Flags(), "check", "ck")
	cmd.Flags().BoolVar(&ping, "ping", false, "Contact the server and report its version")
	flagAlias(cmd.Flags(), "ping", "pg")

	return cmd
}
