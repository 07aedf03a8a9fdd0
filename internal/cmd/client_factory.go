package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fmeflow/fmeflow-cli/internal/aoi"
	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/config"
)

type clientFactory struct {
	timeout   time.Duration
	userAgent string
}

func newClientFactory() *clientFactory {
	return &clientFactory{
		timeout:   flags.Timeout,
		userAgent: fmt.Sprintf("fmeflow-cli/%s", version),
	}
}

// overrides collects the connection flags that win over env and profile.
func (f *clientFactory) overrides() config.Overrides {
	o := config.Overrides{
		Profile:            flags.Profile,
		ServerURL:          strings.TrimSpace(flags.ServerURL),
		Token:              strings.TrimSpace(flags.Token),
		Repository:         strings.TrimSpace(flags.Repository),
		GeometryServiceURL: strings.TrimSpace(flags.GeometryServiceURL),
	}
	if flags.TimeoutSet && f.timeout > 0 {
		o.TimeoutMs = int(f.timeout / time.Millisecond)
	}
	return o
}

func (f *clientFactory) profile() (config.Profile, error) {
	return config.Resolve(f.overrides())
}

// client resolves the active profile and builds a Client for it. Callers
// Dispose the client when done.
func (f *clientFactory) client() (*api.Client, error) {
	p, err := f.profile()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Repository) == "" {
		return nil, fmt.Errorf("repository is required: pass --repo, set %s or run 'fmeflow auth login --repo <name>'", config.EnvRepository)
	}

	transport := api.NewHTTPTransport(api.DefaultTokenRegistry().Config())
	if f.timeout > 0 {
		transport.HTTP.Timeout = f.timeout
	}
	transport.UserAgent = f.userAgent
	applyRetryOverrides(transport)

	return api.NewClient(api.ClientConfig{
		ServerURL:  p.ServerURL,
		Token:      p.Token,
		Repository: p.Repository,
		TimeoutMs:  p.TimeoutMs,
	},
		api.WithTransport(transport),
		api.WithEngines(aoi.DefaultEngines(p.GeometryServiceURL, transport.HTTP)),
	)
}

func applyRetryOverrides(t *api.HTTPTransport) {
	cfg := t.Retry

	if flags.MaxRateLimitRetriesSet {
		cfg.MaxRateLimitRetries = flags.MaxRateLimitRetries
	}
	if flags.Max5xxRetriesSet {
		cfg.Max5xxRetries = flags.Max5xxRetries
	}
	if flags.RateLimitDelaySet {
		cfg.RateLimitBaseDelay = flags.RateLimitDelay
	}
	if flags.ServerErrorDelaySet {
		cfg.ServerErrorRetryDelay = flags.ServerErrorDelay
	}
	if flags.CircuitBreakerThresholdSet {
		cfg.CircuitBreakerThreshold = flags.CircuitBreakerThreshold
	}
	if flags.CircuitBreakerResetTimeSet {
		cfg.CircuitBreakerResetTime = flags.CircuitBreakerResetTime
	}

	t.SetRetryConfig(cfg)
}

// getClient creates an API client from the resolved credentials
func getClient() (*api.Client, error) {
	return newClientFactory().client()
}
