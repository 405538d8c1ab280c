// Package plugins provides a registry of message source plugins.
package plugins

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/ArionMiles/cardtracker/pkg/api"
)

// ReaderPlugin defines the interface for message source plugins.
type ReaderPlugin interface {
	// Name returns the plugin name (e.g., "gmail", "mbox").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin. Empty means no OAuth client is needed.
	RequiredScopes() []string
	// NewReader creates a new reader instance with the given config.
	NewReader(httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Reader, error)
}

// Registry manages available reader plugins.
type Registry struct {
	readers map[string]ReaderPlugin
}

// NewRegistry creates a registry holding plugins.
func NewRegistry(plugins ...ReaderPlugin) (*Registry, error) {
	r := &Registry{readers: make(map[string]ReaderPlugin)}
	for _, p := range plugins {
		if err := r.RegisterReader(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterReader registers a reader plugin.
func (r *Registry) RegisterReader(plugin ReaderPlugin) error {
	name := plugin.Name()
	if _, exists := r.readers[name]; exists {
		return fmt.Errorf("reader plugin %q already registered", name)
	}
	r.readers[name] = plugin
	return nil
}

// GetReader returns a reader plugin by name.
func (r *Registry) GetReader(name string) (ReaderPlugin, error) {
	plugin, exists := r.readers[name]
	if !exists {
		return nil, fmt.Errorf("reader plugin %q not found", name)
	}
	return plugin, nil
}

// ListReaders returns all registered reader plugins sorted by name.
func (r *Registry) ListReaders() []ReaderPlugin {
	plugins := make([]ReaderPlugin, 0, len(r.readers))
	for _, plugin := range r.readers {
		plugins = append(plugins, plugin)
	}
	slices.SortFunc(plugins, func(a, b ReaderPlugin) int {
		if a.Name() < b.Name() {
			return -1
		}
		if a.Name() > b.Name() {
			return 1
		}
		return 0
	})
	return plugins
}

// Scopes returns the OAuth scopes required by the named reader.
func (r *Registry) Scopes(name string) ([]string, error) {
	plugin, err := r.GetReader(name)
	if err != nil {
		return nil, err
	}
	return plugin.RequiredScopes(), nil
}

// CreateReader creates a reader instance from a plugin.
func (r *Registry) CreateReader(name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	plugin, err := r.GetReader(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewReader(httpClient, config, logger)
}
