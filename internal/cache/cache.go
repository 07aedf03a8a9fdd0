// Package cache stores API responses that rarely change, such as workspace
// parameter definitions.
//
// Entries are JSON, scoped per resource type and a scope tuple (server URL,
// repository, workspace). Default TTL is 5 minutes. Disable with
// FMEFLOW_NO_CACHE=1.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultTTL = 5 * time.Minute

// EnvNoCache disables every store when set.
const EnvNoCache = "FMEFLOW_NO_CACHE"

// Cache is a single-key cache of JSON-serialisable values.
type Cache interface {
	Get(ctx context.Context, dst any) bool
	Put(ctx context.Context, items any)
	Clear(ctx context.Context)
}

type entry struct {
	CachedAt time.Time       `json:"cached_at"`
	Items    json.RawMessage `json:"items"`
}

// Store is a file-backed Cache for one key.
type Store struct {
	path string
	ttl  time.Duration
}

var _ Cache = (*Store)(nil)

// NewStore creates a Store with the default 5-minute TTL.
// dir is the cache directory (typically from DefaultDir).
// resource is the resource type (e.g. "params").
// scope identifies the entry, e.g. server URL, repository and workspace.
func NewStore(dir, resource string, scope ...string) *Store {
	return NewStoreWithTTL(dir, resource, DefaultTTL, scope...)
}

// NewStoreWithTTL creates a Store with a custom TTL.
func NewStoreWithTTL(dir, resource string, ttl time.Duration, scope ...string) *Store {
	filename := fmt.Sprintf("%s_%s.json", sanitizeKey(resource), scopeHash(scope))
	return &Store{
		path: filepath.Join(dir, filename),
		ttl:  ttl,
	}
}

// Get loads cached items into dst. Returns false on miss (no file, expired, disabled).
func (s *Store) Get(_ context.Context, dst any) bool {
	if disabled() {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	return decodeEntry(data, s.ttl, dst)
}

// Put writes items to the cache. Silently no-ops on error or when disabled.
func (s *Store) Put(_ context.Context, items any) {
	if disabled() {
		return
	}
	data, err := encodeEntry(items)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return
	}

	// Atomic-ish write: write temp then rename.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return
	}
	_ = os.Rename(tmp, s.path)
}

// Clear removes this cache file.
func (s *Store) Clear(_ context.Context) {
	_ = os.Remove(s.path)
}

// ClearAll removes all cache files from the directory.
// For safety, it only removes files matching this project's cache filename scheme.
func ClearAll(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isCacheFilename(e.Name()) {
			continue
		}
		_ = os.Remove(filepath.Join(dir, e.Name()))
	}
}

// DefaultDir returns "$XDG_CACHE_HOME/fmeflow-cli" or the platform equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "fmeflow-cli"), nil
}

func encodeEntry(items any) ([]byte, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entry{CachedAt: time.Now(), Items: raw})
}

func decodeEntry(data []byte, ttl time.Duration, dst any) bool {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false
	}
	if time.Since(e.CachedAt) > ttl {
		return false
	}
	return json.Unmarshal(e.Items, dst) == nil
}

func disabled() bool {
	return os.Getenv(EnvNoCache) != ""
}

func scopeHash(scope []string) string {
	hash := sha1.Sum([]byte(strings.Join(scope, "\x00")))
	return hex.EncodeToString(hash[:6])
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "cache"
	}
	r := strings.NewReplacer("/", "-", "\\", "-", "_", "-")
	return r.Replace(key)
}

func isCacheFilename(name string) bool {
	// Expected: "<resource>_<12hex>.json"
	if filepath.Ext(name) != ".json" {
		return false
	}
	resource, hash, ok := strings.Cut(strings.TrimSuffix(name, ".json"), "_")
	if !ok || resource == "" || strings.Contains(hash, "_") {
		return false
	}
	return len(hash) == 12 && isHex(hash)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
