// Package mbox provides a plugin wrapper for the mbox reader.
package mbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/cardtracker/pkg/api"
	mboxreader "github.com/ArionMiles/cardtracker/pkg/reader/mbox"
)

// Plugin implements the ReaderPlugin interface for mbox archives.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "mbox"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Import card usage notifications from an mbox archive"
}

// RequiredScopes returns nil; mbox files need no authorization.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// Config represents the mbox reader configuration.
type Config struct {
	Path string `json:"path"`
}

// NewReader creates a new mbox reader instance.
func (p *Plugin) NewReader(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling mbox config: %w", err)
	}
	return mboxreader.New(mboxreader.Config{Path: cfg.Path}, logger)
}
