package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultMaxURLLength is the webhook URL budget used when the transport
// configuration reports none.
const DefaultMaxURLLength = 4000

// Webhook services.
const (
	ServiceDataDownload  = "fmedatadownload"
	ServiceDataStreaming = "fmedatastreaming"
)

// restRoot is the REST API prefix appended to the normalized server URL.
const restRoot = "fmerest/v3"

// apiRootSuffixes are stripped from a configured server URL so both
// "https://host" and "https://host/fmerest/v3" work.
var apiRootSuffixes = []string{"/fmerest/v3", "/fmerest", "/fmeapiv4"}

// normalizeServerURL trims whitespace, trailing slashes and a trailing API root.
func normalizeServerURL(serverURL string) string {
	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	lower := strings.ToLower(base)
	for _, suffix := range apiRootSuffixes {
		if strings.HasSuffix(lower, suffix) {
			base = base[:len(base)-len(suffix)]
			break
		}
	}
	return strings.TrimRight(base, "/")
}

func escapeSegment(seg string) (string, error) {
	s := strings.TrimSpace(seg)
	if s == "" || s == "." || s == ".." {
		return "", newError(CodeInvalidPathSegment, 0, fmt.Sprintf("invalid path segment %q", seg), nil)
	}
	return url.PathEscape(s), nil
}

func joinURL(base string, segments ...string) (string, error) {
	var b strings.Builder
	b.WriteString(base)
	for _, seg := range segments {
		escaped, err := escapeSegment(seg)
		if err != nil {
			return "", err
		}
		b.WriteByte('/')
		b.WriteString(escaped)
	}
	return b.String(), nil
}

// BuildServiceURL returns serverURL/service/segment/... with every path
// segment escaped independently. Empty, "." and ".." segments are rejected
// with INVALID_PATH_SEGMENT.
func BuildServiceURL(serverURL, service string, segments ...string) (string, error) {
	return joinURL(normalizeServerURL(serverURL), append([]string{service}, segments...)...)
}

// BuildWebhookURL returns the webhook endpoint for a workspace.
func BuildWebhookURL(serverURL, service, repository, workspace string) (string, error) {
	return BuildServiceURL(serverURL, service, repository, workspace)
}

// buildRESTURL returns serverURL/fmerest/v3/segment/....
func buildRESTURL(serverURL string, segments ...string) (string, error) {
	return joinURL(normalizeServerURL(serverURL)+"/"+restRoot, segments...)
}

// File is implemented by values that stand for a local file, such as
// *os.File. Only the base name is ever sent.
type File interface {
	Name() string
}

// FileRef names a file already uploaded or known to the server.
type FileRef string

// Name implements File.
func (f FileRef) Name() string { return string(f) }

// formatParamValue renders a parameter value the way both webhook URLs and
// streaming forms carry it. ok is false for values that must be dropped.
func formatParamValue(v any) (s string, ok bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case File:
		return filepath.Base(val.Name()), true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case []string:
		return strings.Join(val, ","), true
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if p, ok := formatParamValue(item); ok {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, ","), true
	case json.RawMessage:
		return string(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val), true
		}
		return string(data), true
	}
}

// serviceMode returns "sync" only when the caller asked for it explicitly.
func serviceMode(params map[string]any) string {
	if s, ok := params["opt_servicemode"].(string); ok && strings.EqualFold(strings.TrimSpace(s), "sync") {
		return "sync"
	}
	return "async"
}

// BuildParams converts parameters to query values. Nil values and excluded
// keys are dropped, file values become their base name and lists are
// joined with commas. withWebhookDefaults adds the fixed response options
// and an explicit service mode.
func BuildParams(params map[string]any, exclude []string, withWebhookDefaults bool) url.Values {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}

	q := url.Values{}
	for key, value := range params {
		if skip[key] {
			continue
		}
		if s, ok := formatParamValue(value); ok {
			q.Set(key, s)
		}
	}

	if withWebhookDefaults {
		q.Set("opt_responseformat", "json")
		q.Set("opt_showresult", "true")
		q.Set("opt_servicemode", serviceMode(params))
	}
	return q
}

// webhookExcludeKeys never pass through from caller parameters.
var webhookExcludeKeys = []string{"token", "fmetoken"}

// webhookRequestURL is the exact URL RunDataDownload sends, token included.
func webhookRequestURL(serverURL, service, repository, workspace string, params map[string]any, token string) (string, error) {
	endpoint, err := BuildWebhookURL(serverURL, service, repository, workspace)
	if err != nil {
		return "", err
	}
	q := BuildParams(params, webhookExcludeKeys, true)
	if token != "" {
		q.Set("token", token)
	}
	return endpoint + "?" + q.Encode(), nil
}

// IsWebhookURLTooLong reports whether the data download URL for these
// parameters would exceed maxLen. maxLen <= 0 means DefaultMaxURLLength.
// Names that cannot form a URL report false; the request itself fails
// with INVALID_PATH_SEGMENT.
func IsWebhookURLTooLong(serverURL, repository, workspace string, params map[string]any, maxLen int, token string) bool {
	if maxLen <= 0 {
		maxLen = DefaultMaxURLLength
	}
	u, err := webhookRequestURL(serverURL, ServiceDataDownload, repository, workspace, params, token)
	if err != nil {
		return false
	}
	return len(u) > maxLen
}

// NamedValue is one published parameter.
type NamedValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// TMDirectives are Task Manager hints attached to a job.
type TMDirectives struct {
	TTC         *int   `json:"ttc,omitempty"`
	TTL         *int   `json:"ttl,omitempty"`
	Tag         string `json:"tag,omitempty"`
	Description string `json:"description,omitempty"`
	// RTC is only sent when the caller set tm_rtc.
	RTC *bool `json:"rtc,omitempty"`
}

func (d TMDirectives) empty() bool {
	return d.TTC == nil && d.TTL == nil && d.Tag == "" && d.Description == "" && d.RTC == nil
}

// ScheduleDirective asks the notification manager to run the job on a schedule.
type ScheduleDirective struct {
	Begin               string `json:"begin"`
	ScheduleName        string `json:"scheduleName"`
	ScheduleCategory    string `json:"scheduleCategory"`
	ScheduleTrigger     string `json:"scheduleTrigger"`
	ScheduleDescription string `json:"scheduleDescription,omitempty"`
}

// NMDirectives carries notification manager directives.
type NMDirectives struct {
	Directives []ScheduleDirective `json:"directives"`
}

// JobRequest is the REST body for submit and transact.
type JobRequest struct {
	PublishedParameters []NamedValue  `json:"publishedParameters"`
	TMDirectives        *TMDirectives `json:"TMDirectives,omitempty"`
	NMDirectives        *NMDirectives `json:"NMDirectives,omitempty"`
}

// scheduleKeys are the schedule inputs read by FormatJobParams.
var scheduleKeys = map[string]bool{
	"start":       true,
	"name":        true,
	"category":    true,
	"trigger":     true,
	"description": true,
}

func isControlKey(key string) bool {
	lower := strings.ToLower(key)
	return strings.HasPrefix(lower, "opt_") ||
		strings.HasPrefix(lower, "tm_") ||
		scheduleKeys[lower] ||
		lower == "token" || lower == "fmetoken"
}

// FormatJobParams splits caller parameters into published parameters and
// directives. Published parameters are sorted by name.
func FormatJobParams(params map[string]any) JobRequest {
	req := JobRequest{PublishedParameters: []NamedValue{}}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := params[k]
		if v == nil || isControlKey(k) {
			continue
		}
		if f, ok := v.(File); ok {
			v = filepath.Base(f.Name())
		}
		req.PublishedParameters = append(req.PublishedParameters, NamedValue{Name: k, Value: v})
	}

	tm := TMDirectives{
		TTC:         intParam(params, "tm_ttc"),
		TTL:         intParam(params, "tm_ttl"),
		Tag:         stringParam(params, "tm_tag"),
		Description: stringParam(params, "tm_description"),
		RTC:         boolParam(params, "tm_rtc"),
	}
	if !tm.empty() {
		req.TMDirectives = &tm
	}

	if sd, ok := scheduleDirective(params); ok {
		req.NMDirectives = &NMDirectives{Directives: []ScheduleDirective{sd}}
	}
	return req
}

// IsScheduleMode reports whether params request schedule service mode.
func IsScheduleMode(params map[string]any) bool {
	return stringParam(params, "opt_servicemode") == "schedule"
}

func scheduleDirective(params map[string]any) (ScheduleDirective, bool) {
	if !IsScheduleMode(params) {
		return ScheduleDirective{}, false
	}
	sd := ScheduleDirective{
		Begin:               stringParam(params, "start"),
		ScheduleName:        stringParam(params, "name"),
		ScheduleCategory:    stringParam(params, "category"),
		ScheduleTrigger:     stringParam(params, "trigger"),
		ScheduleDescription: stringParam(params, "description"),
	}
	if sd.Begin == "" || sd.ScheduleName == "" || sd.ScheduleCategory == "" {
		return ScheduleDirective{}, false
	}
	if sd.ScheduleTrigger == "" {
		sd.ScheduleTrigger = "runonce"
	}
	return sd, true
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := formatParamValue(v)
	return strings.TrimSpace(s)
}

func intParam(params map[string]any, key string) *int {
	s := stringParam(params, key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

func boolParam(params map[string]any, key string) *bool {
	s := stringParam(params, key)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}
