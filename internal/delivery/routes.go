// Package delivery sends outbound messages through named channel routes with
// bounded, jittered retry. A route names a messaging gateway: base URL,
// bearer credential, request timeout, and per-message-kind endpoint paths.
// Routes load from a YAML file and hot-reload when the file changes.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

// ErrRouteNotFound is returned when a route name has no configuration.
// It is a permanent failure: no retry will make the route appear.
var ErrRouteNotFound = errors.New("route not found in configuration")

// Route is one named outbound channel configuration.
type Route struct {
	BaseURL        string            `yaml:"base_url"`
	Token          string            `yaml:"token"`
	TimeoutSeconds int               `yaml:"timeout"`
	Endpoints      map[string]string `yaml:"endpoints"`
}

// Timeout returns the per-request timeout, defaulting to 10s.
func (r Route) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Endpoint returns the path for a message kind, falling back to the text
// endpoint the way the gateway API expects.
func (r Route) Endpoint(kind string) string {
	if p, ok := r.Endpoints[kind]; ok && p != "" {
		return p
	}
	return "messages/text"
}

// Table is a concurrency-safe, reloadable route table.
type Table struct {
	mu     sync.RWMutex
	routes map[string]Route
	path   string
}

// LoadTable reads the route table from a YAML file.
func LoadTable(path string) (*Table, error) {
	t := &Table{path: path}
	if err := t.reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewStaticTable builds a table from in-memory routes (used in tests and in
// deployments without a config file).
func NewStaticTable(routes map[string]Route) *Table {
	return &Table{routes: routes}
}

func (t *Table) reload() error {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		return err
	}
	var routes map[string]Route
	if err := yaml.Unmarshal(raw, &routes); err != nil {
		return fmt.Errorf("parse routes %s: %w", t.path, err)
	}
	for name, r := range routes {
		if r.BaseURL == "" {
			return fmt.Errorf("route %q has no base_url", name)
		}
	}
	t.mu.Lock()
	t.routes = routes
	t.mu.Unlock()
	return nil
}

// Get returns the route for name, or ErrRouteNotFound.
func (t *Table) Get(name string) (Route, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[name]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	return r, nil
}

// Names returns the configured route names (for diagnostics).
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.routes))
	for name := range t.routes {
		out = append(out, name)
	}
	return out
}

// Watch reloads the table whenever the backing file changes, until ctx is
// cancelled. A reload failure keeps the previous table and logs the error;
// a broken edit must not take messaging down.
func (t *Table) Watch(ctx context.Context) error {
	if t.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(t.path); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := t.reload(); err != nil {
					log.Error().Err(err).Str("path", t.path).Msg("route table reload failed; keeping previous routes")
					continue
				}
				log.Info().Str("path", t.path).Msg("route table reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("route table watcher error")
			}
		}
	}()
	return nil
}
