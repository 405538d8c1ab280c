package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"token ya29.a0AfH6SMBx-yz_12", "token ya29.***"},
		{"Authorization: Bearer abc.def-ghi", "Authorization: Bearer ***"},
		{"dial: password=hunter2 host=db", "dial: password=*** host=db"},
		{"https://x.test/?api_key=abc123&q=1", "https://x.test/?api_key=***&q=1"},
		{"nothing to hide", "nothing to hide"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewMasksAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Output: &buf})

	logger.Info("connecting",
		"password", "hunter2",
		"url", "postgres://u@h/db?password=hunter2",
		"error", errors.New("oauth2: token ya29.secretvalue expired"),
		"issuer", "JCB",
	)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "secretvalue") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "issuer=JCB") {
		t.Errorf("plain attribute altered: %s", out)
	}
}

func TestNewJSON(t *testing.T) {
	cfg := NewConfig("warn", "JSON")
	if !cfg.JSON || cfg.Level != slog.LevelWarn {
		t.Fatalf("NewConfig: got %+v", cfg)
	}
	var buf bytes.Buffer
	cfg.Output = &buf
	logger := New(cfg)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"msg":"kept"`) {
		t.Errorf("expected JSON output, got %s", out)
	}
}
