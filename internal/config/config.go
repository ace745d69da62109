// Package config holds the model route table: the mapping from client-facing
// aliases to provider model identifiers, credentials, and per-route defaults.
package config

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout = 120 // seconds
	DefaultRetries = 3

	envRefPrefix = "os.environ/"
)

// Defaults are global fallbacks applied when neither the client nor the
// route supplies a value.
type Defaults struct {
	Timeout    int
	NumRetries int
}

// Route is one alias entry from the config file. Pointer fields distinguish
// "unset" from zero. Extra captures every key the struct does not name and
// is passed through to the provider untouched.
type Route struct {
	Alias       string         `yaml:"alias"`
	Model       string         `yaml:"model"`
	APIKey      string         `yaml:"api_key"`
	Enabled     *bool          `yaml:"enabled"`
	Timeout     *int           `yaml:"timeout"`
	NumRetries  *int           `yaml:"num_retries"`
	Temperature *float64       `yaml:"temperature"`
	MaxTokens   *int           `yaml:"max_tokens"`
	Extra       map[string]any `yaml:",inline"`
}

// IsEnabled reports whether the route accepts traffic. Routes are enabled
// unless explicitly switched off.
func (r *Route) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// resolveAPIKey dereferences an os.environ/VAR indirection at call time, so
// rotated keys take effect without a reload. A literal value (no indirection)
// is returned as-is. Missing env vars resolve to empty; the provider will
// surface the authentication failure.
func (r *Route) resolveAPIKey() string {
	if v, ok := strings.CutPrefix(r.APIKey, envRefPrefix); ok {
		return os.Getenv(v)
	}
	return r.APIKey
}

type fileConfig struct {
	Routes []*Route `yaml:"routes"`
}

type snapshot struct {
	routes map[string]*Route
}

// Table is the live route table. Reload swaps the whole snapshot atomically,
// so in-flight resolutions keep the table they started with and readers
// never observe a partially loaded file.
type Table struct {
	path     string
	defaults Defaults
	current  atomic.Pointer[snapshot]
}

// Load reads the route file at path. A missing or unparsable file is not
// fatal: the server starts with an empty table and a logged warning, matching
// how a proxy should behave when its config is being edited underneath it.
func Load(path string, defaults Defaults) *Table {
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultTimeout
	}
	if defaults.NumRetries < 0 {
		defaults.NumRetries = DefaultRetries
	}
	t := &Table{path: path, defaults: defaults}
	if _, err := t.Reload(); err != nil {
		log.Printf("⚠️ %v", err)
		log.Printf("⚠️ Server starting with no model routes configured")
	}
	return t
}

// Reload re-reads the route file and swaps in the new table, returning the
// number of routes loaded. On error the previous snapshot stays in service.
func (t *Table) Reload() (int, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		t.current.CompareAndSwap(nil, &snapshot{routes: map[string]*Route{}})
		return 0, fmt.Errorf("read config %s: %w", t.path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		t.current.CompareAndSwap(nil, &snapshot{routes: map[string]*Route{}})
		return 0, fmt.Errorf("parse config %s: %w", t.path, err)
	}

	routes := make(map[string]*Route, len(fc.Routes))
	for _, r := range fc.Routes {
		if err := validateRoute(r); err != nil {
			log.Printf("⚠️ Skipping route: %v", err)
			continue
		}
		if _, dup := routes[r.Alias]; dup {
			log.Printf("⚠️ Skipping duplicate route alias %q", r.Alias)
			continue
		}
		warnMissingEnv(r)
		routes[r.Alias] = r
	}

	t.current.Store(&snapshot{routes: routes})
	if len(routes) > 0 {
		log.Printf("✓ Loaded %d model route(s) from %s", len(routes), t.path)
	}
	return len(routes), nil
}

func validateRoute(r *Route) error {
	if r == nil {
		return fmt.Errorf("empty route entry")
	}
	if r.Alias == "" {
		return fmt.Errorf("route missing alias")
	}
	if r.Model == "" {
		return fmt.Errorf("route %q missing model", r.Alias)
	}
	if r.APIKey != "" && !strings.HasPrefix(r.APIKey, envRefPrefix) {
		return fmt.Errorf("route %q: api_key must use %sVAR_NAME indirection", r.Alias, envRefPrefix)
	}
	if r.Timeout != nil && *r.Timeout <= 0 {
		return fmt.Errorf("route %q: timeout must be positive, got %d", r.Alias, *r.Timeout)
	}
	if r.NumRetries != nil && *r.NumRetries < 0 {
		return fmt.Errorf("route %q: num_retries must be non-negative, got %d", r.Alias, *r.NumRetries)
	}
	return nil
}

func warnMissingEnv(r *Route) {
	v, ok := strings.CutPrefix(r.APIKey, envRefPrefix)
	if !ok {
		return
	}
	if _, set := os.LookupEnv(v); !set {
		log.Printf("⚠️ Environment variable %s not set; requests for %q will fail authentication", v, r.Alias)
	}
}

// Routes returns the current routes sorted by alias.
func (t *Table) Routes() []*Route {
	snap := t.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]*Route, 0, len(snap.routes))
	for _, r := range snap.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// Len reports the number of configured routes.
func (t *Table) Len() int {
	snap := t.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.routes)
}
