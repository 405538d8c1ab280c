package diag

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMulti(t *testing.T) {
	var a, b Recorder
	sink := Multi(&a, nil, &b)

	sink.Observe(Event{Kind: FallbackPattern, Issuer: "JCB", Field: "amount"})
	sink.Observe(Event{Kind: FutureTimestamp, Issuer: "SMBC", Field: "datetime"})

	for name, r := range map[string]*Recorder{"a": &a, "b": &b} {
		if got := len(r.Events()); got != 2 {
			t.Errorf("%s: got %d events, want 2", name, got)
		}
		if got := r.Count(FallbackPattern); got != 1 {
			t.Errorf("%s: fallback count: got %d, want 1", name, got)
		}
	}

	a.Reset()
	if got := len(a.Events()); got != 0 {
		t.Errorf("after reset: got %d events, want 0", got)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLogSink(logger).Observe(Event{Kind: MerchantTruncated, Issuer: "AMEX", Field: "merchant", Detail: "1500 runes"})

	out := buf.String()
	for _, want := range []string{"level=WARN", "kind=merchant_truncated", "issuer=AMEX", "field=merchant"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	// A second instance must not collide with the first.
	_ = NewMetrics()

	m.Observe(Event{Kind: AmountOverflow, Issuer: "SMBC"})
	m.Observe(Event{Kind: AmountOverflow, Issuer: "SMBC"})
	m.IncrMessage("saved")

	if got := testutil.ToFloat64(m.events.WithLabelValues("amount_overflow", "SMBC")); got != 2 {
		t.Errorf("events: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("saved")); got != 1 {
		t.Errorf("messages: got %v, want 1", got)
	}
}
