// Package gmail provides a plugin wrapper for the Gmail reader.
package gmail

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/cardtracker/pkg/api"
	gmailreader "github.com/ArionMiles/cardtracker/pkg/reader/gmail"
)

// Plugin implements the ReaderPlugin interface for Gmail.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "gmail"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read card usage notifications from a Gmail mailbox"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{gmailapi.GmailModifyScope}
}

// Config represents the Gmail reader configuration.
type Config struct {
	Query         string `json:"query"`
	MaxResults    int64  `json:"maxResults,omitempty"`
	Interval      int    `json:"interval,omitempty"` // in seconds, 0 for a single pass
	RetryAttempts uint   `json:"retryAttempts,omitempty"`
	MarkRead      bool   `json:"markRead"`
}

// NewReader creates a new Gmail reader instance.
func (p *Plugin) NewReader(httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling gmail config: %w", err)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("gmail reader requires an authorized HTTP client")
	}

	return gmailreader.New(httpClient, gmailreader.Config{
		Query:         cfg.Query,
		MaxResults:    cfg.MaxResults,
		Interval:      time.Duration(cfg.Interval) * time.Second,
		RetryAttempts: cfg.RetryAttempts,
		MarkRead:      cfg.MarkRead,
	}, logger)
}
