// Package diag carries data-quality events raised while parsing messages.
// Events never change a parse result; they only make unusual input visible.
package diag

import (
	"context"
	"log/slog"
	"sync"
)

// Kind classifies a data-quality event.
type Kind string

const (
	// FallbackPattern: a generic pattern produced the value instead of an issuer rule.
	FallbackPattern Kind = "fallback_pattern"
	// AmountOverflow: the amount exceeded the safety ceiling and was rejected.
	AmountOverflow Kind = "amount_overflow"
	// AmountInvalid: the amount text matched but was not a plain non-negative number.
	AmountInvalid Kind = "amount_invalid"
	// InvalidDate: the date text matched but is not a real calendar date and time.
	InvalidDate Kind = "invalid_date"
	// FutureTimestamp: the transaction time is later than the processing time.
	FutureTimestamp Kind = "future_timestamp"
	// MerchantTruncated: the merchant name was cut to the length ceiling.
	MerchantTruncated Kind = "merchant_truncated"
	// AmbiguousIssuer: the subject named more than one issuer.
	AmbiguousIssuer Kind = "ambiguous_issuer"
)

// Event is a single data-quality observation.
type Event struct {
	Kind   Kind
	Issuer string
	// Field is the extracted field the event concerns: amount, datetime, merchant or issuer.
	Field  string
	Detail string
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Observe(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Observe(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Observe(e Event) {
	for _, s := range m {
		s.Observe(e)
	}
}

// Multi fans an event out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// LogSink writes events as warnings.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging to logger, or slog.Default() when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Observe(e Event) {
	level := slog.LevelWarn
	if e.Kind == FallbackPattern {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, "data quality event",
		"kind", e.Kind,
		"issuer", e.Issuer,
		"field", e.Field,
		"detail", e.Detail,
	)
}

// Recorder keeps every observed event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
