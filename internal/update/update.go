// Package update checks GitHub for a newer fmeflow-cli release.
package update

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	DefaultReleasesURL = "https://api.github.com/repos/fmeflow/fmeflow-cli/releases/latest"
	CheckTimeout       = 5 * time.Second
	// EnvNoUpdateCheck disables the check when set.
	EnvNoUpdateCheck = "FMEFLOW_NO_UPDATE_CHECK"
)

// ReleasesURL is the endpoint queried by CheckForUpdate. Tests override it.
var ReleasesURL = DefaultReleasesURL

// Release is the subset of the GitHub release payload the check needs.
type Release struct {
	TagName    string `json:"tag_name"`
	HTMLURL    string `json:"html_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// CheckResult is the outcome of a successful check.
type CheckResult struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateURL       string `json:"update_url,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// CheckForUpdate asks GitHub for the latest release. It returns nil for dev
// builds, drafts, pre-releases and any failure; it never blocks longer than
// CheckTimeout.
func CheckForUpdate(ctx context.Context, client *http.Client, currentVersion string) *CheckResult {
	if currentVersion == "" || currentVersion == "dev" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ReleasesURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil || rel.Draft || rel.Prerelease {
		return nil
	}

	return &CheckResult{
		CurrentVersion:  currentVersion,
		LatestVersion:   strings.TrimPrefix(rel.TagName, "v"),
		UpdateURL:       rel.HTMLURL,
		UpdateAvailable: IsNewer(rel.TagName, currentVersion),
	}
}

// IsNewer reports whether candidate is a strictly later semver than current.
// Either side may omit the leading "v"; invalid versions are never newer.
func IsNewer(candidate, current string) bool {
	a, b := canonical(candidate), canonical(current)
	if a == "" || b == "" {
		return false
	}
	return semver.Compare(a, b) > 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
