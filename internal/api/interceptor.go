package api

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Interceptor rewrites outgoing requests whose URL matches Pattern.
type Interceptor struct {
	Pattern *regexp.Regexp
	Before  func(req *Request)
}

// RequestConfig is the shared transport configuration: the webhook URL
// budget and the interceptor list. Clients sharing a RequestConfig share
// authentication for a host.
type RequestConfig struct {
	mu           sync.RWMutex
	maxURLLength int
	interceptors []*Interceptor
}

// NewRequestConfig returns an empty configuration with the default URL budget.
func NewRequestConfig() *RequestConfig {
	return &RequestConfig{maxURLLength: DefaultMaxURLLength}
}

// MaxURLLength returns the current webhook URL budget.
func (c *RequestConfig) MaxURLLength() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.maxURLLength <= 0 {
		return DefaultMaxURLLength
	}
	return c.maxURLLength
}

// SetMaxURLLength sets the budget reported by the platform.
func (c *RequestConfig) SetMaxURLLength(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxURLLength = n
}

// EnsureMaxURLLength raises the budget to at least floor.
func (c *RequestConfig) EnsureMaxURLLength(floor int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxURLLength < floor {
		c.maxURLLength = floor
	}
}

// hasInterceptor reports whether an interceptor with the same pattern source exists.
func (c *RequestConfig) hasInterceptor(pattern string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ic := range c.interceptors {
		if ic.Pattern.String() == pattern {
			return true
		}
	}
	return false
}

// AddInterceptor appends ic.
func (c *RequestConfig) AddInterceptor(ic *Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = append(c.interceptors, ic)
}

// RemoveInterceptors drops every interceptor whose pattern source equals
// pattern and returns how many were removed.
func (c *RequestConfig) RemoveInterceptors(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.interceptors[:0]
	removed := 0
	for _, ic := range c.interceptors {
		if ic.Pattern.String() == pattern {
			removed++
			continue
		}
		kept = append(kept, ic)
	}
	for i := len(kept); i < len(c.interceptors); i++ {
		c.interceptors[i] = nil
	}
	c.interceptors = kept
	return removed
}

// Interceptors returns a snapshot of the interceptor list.
func (c *RequestConfig) Interceptors() []*Interceptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Interceptor, len(c.interceptors))
	copy(out, c.interceptors)
	return out
}

// Apply runs every matching interceptor against req.
func (c *RequestConfig) Apply(req *Request) {
	for _, ic := range c.Interceptors() {
		if ic.Pattern.MatchString(req.URL) && ic.Before != nil {
			ic.Before(req)
		}
	}
}

// TokenRegistry maps server hosts to their current token and keeps one
// auth interceptor per host installed in a RequestConfig.
type TokenRegistry struct {
	cfg    *RequestConfig
	mu     sync.Mutex
	tokens map[string]string
}

// NewTokenRegistry returns a registry installing interceptors into cfg.
func NewTokenRegistry(cfg *RequestConfig) *TokenRegistry {
	return &TokenRegistry{cfg: cfg, tokens: map[string]string{}}
}

var (
	defaultRequestConfig = NewRequestConfig()
	defaultTokenRegistry = NewTokenRegistry(defaultRequestConfig)
)

// DefaultTokenRegistry returns the process-wide registry used when a client
// is built without WithTokenRegistry.
func DefaultTokenRegistry() *TokenRegistry {
	return defaultTokenRegistry
}

// Config returns the RequestConfig the registry installs into.
func (r *TokenRegistry) Config() *RequestConfig {
	return r.cfg
}

// HostOf returns the lower-cased hostname of serverURL.
func HostOf(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("server URL %q has no host", serverURL)
	}
	return host, nil
}

// HostPattern matches http(s) URLs on host with any port.
func HostPattern(host string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^https?://` + regexp.QuoteMeta(strings.ToLower(host)) + `(:\d+)?(/|$|\?)`)
}

// SetToken records token for the host of serverURL and installs the host's
// interceptor if missing. An empty token clears the host.
func (r *TokenRegistry) SetToken(serverURL, token string) error {
	host, err := HostOf(serverURL)
	if err != nil {
		return err
	}
	if token == "" {
		r.clearHost(host)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[host] = token
	pattern := HostPattern(host)
	if !r.cfg.hasInterceptor(pattern.String()) {
		r.cfg.AddInterceptor(&Interceptor{Pattern: pattern, Before: r.authorize(host)})
	}
	return nil
}

// authorize reads the live token at request time, so rotations reach
// requests already built.
func (r *TokenRegistry) authorize(host string) func(*Request) {
	return func(req *Request) {
		token := r.Token(host)
		if token == "" {
			return
		}
		if req.Header == nil {
			req.Header = make(map[string][]string)
		}
		req.Header.Set("Authorization", "fmetoken token="+token)
		if req.QueryAuth {
			if req.Query == nil {
				req.Query = url.Values{}
			}
			req.Query.Set("fmetoken", token)
		}
	}
}

// Token returns the current token for host, or "".
func (r *TokenRegistry) Token(host string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[strings.ToLower(host)]
}

// ClearToken forgets the token for the host of serverURL and removes its
// interceptor. Every client on that host loses authentication.
func (r *TokenRegistry) ClearToken(serverURL string) {
	host, err := HostOf(serverURL)
	if err != nil {
		return
	}
	r.clearHost(host)
}

// ReleaseToken clears the host only if token is still the one recorded,
// so a client releasing a token another client has since replaced leaves
// the newer one in place. It reports whether the host was cleared.
func (r *TokenRegistry) ReleaseToken(serverURL, token string) bool {
	host, err := HostOf(serverURL)
	if err != nil {
		return false
	}
	return r.clearHostIf(host, token)
}

func (r *TokenRegistry) clearHost(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[host]; !ok {
		return
	}
	delete(r.tokens, host)
	r.cfg.RemoveInterceptors(HostPattern(host).String())
}

func (r *TokenRegistry) clearHostIf(host, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.tokens[host]; !ok || current != token {
		return false
	}
	delete(r.tokens, host)
	r.cfg.RemoveInterceptors(HostPattern(host).String())
	return true
}
