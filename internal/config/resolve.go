package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by Resolve.
const (
	EnvServerURL          = "FMEFLOW_SERVER_URL"
	EnvToken              = "FMEFLOW_TOKEN"
	EnvRepository         = "FMEFLOW_REPOSITORY"
	EnvTimeoutMs          = "FMEFLOW_TIMEOUT_MS"
	EnvGeometryServiceURL = "FMEFLOW_GEOMETRY_SERVICE_URL"
	EnvProfile            = "FMEFLOW_PROFILE"
)

// Overrides are command-line values that win over the environment and the
// stored profile. Zero values are ignored.
type Overrides struct {
	Profile            string
	ServerURL          string
	Token              string
	Repository         string
	TimeoutMs          int
	GeometryServiceURL string
}

// Resolve merges, in increasing precedence, the stored profile, FMEFLOW_*
// environment variables and overrides.
func Resolve(o Overrides) (Profile, error) {
	name := strings.TrimSpace(o.Profile)
	if name == "" {
		current, err := CurrentProfile()
		if err == nil {
			name = current
		}
	}

	p, err := LoadProfile(name)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		// An unreadable keyring must not block env-only setups.
		p = Profile{}
	}

	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		p.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		p.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRepository)); v != "" {
		p.Repository = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGeometryServiceURL)); v != "" {
		p.GeometryServiceURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return Profile{}, fmt.Errorf("%s must be a non-negative integer", EnvTimeoutMs)
		}
		p.TimeoutMs = ms
	}

	if o.ServerURL != "" {
		p.ServerURL = o.ServerURL
	}
	if o.Token != "" {
		p.Token = o.Token
	}
	if o.Repository != "" {
		p.Repository = o.Repository
	}
	if o.TimeoutMs > 0 {
		p.TimeoutMs = o.TimeoutMs
	}
	if o.GeometryServiceURL != "" {
		p.GeometryServiceURL = o.GeometryServiceURL
	}

	p.ServerURL = strings.TrimSuffix(strings.TrimSpace(p.ServerURL), "/")
	if p.ServerURL == "" || p.Token == "" {
		return Profile{}, ErrNotConfigured
	}
	return p, nil
}
