// Package ingest drives messages from a Reader through the parser into a store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/parser"
	"github.com/ArionMiles/cardtracker/pkg/store"
)

const (
	outcomeSaved     = "saved"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// Config holds configuration for the Runner.
type Config struct {
	// Workers is the number of messages parsed and stored in parallel. Defaults to 4.
	Workers int
	// RetryAttempts bounds attempts for a failing insert. Defaults to 3.
	RetryAttempts uint
	// RetryDelay is the initial backoff between insert attempts. Defaults to 500ms.
	RetryDelay time.Duration
	// Metrics receives per-message outcomes and store timings. Optional.
	Metrics *diag.Metrics
}

// Stats summarizes one run.
type Stats struct {
	RunID     string
	Received  int
	Saved     int
	Duplicate int
	Failed    int
	// Skipped counts messages that produced no transaction, by parser outcome.
	Skipped map[string]int
}

// SkippedTotal returns the number of skipped messages.
func (s Stats) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Runner connects a Reader, a Parser and a Store.
type Runner struct {
	parser *parser.Parser
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// New creates a new Runner.
func New(p *parser.Parser, st store.Store, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Runner{parser: p, store: st, cfg: cfg, logger: logger}
}

// Run reads messages until the reader closes its output channel. Each message
// is isolated: a parse failure or store error is counted and the run goes on.
// Messages that were stored, or were already stored, are acknowledged to the
// reader. Cancellation of ctx ends the run without an error.
func (r *Runner) Run(ctx context.Context, reader api.Reader) (Stats, error) {
	stats := Stats{RunID: uuid.NewString(), Skipped: make(map[string]int)}
	logger := r.logger.With("run_id", stats.RunID)
	logger.Info("sync started", "workers", r.cfg.Workers)

	msgs := make(chan *api.Message, 100)
	acks := make(chan string, 100)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- reader.Read(ctx, msgs, acks)
	}()

	var mu sync.Mutex
	record := func(msg *api.Message, outcome string) {
		mu.Lock()
		defer mu.Unlock()
		stats.Received++
		switch outcome {
		case outcomeSaved:
			stats.Saved++
		case outcomeDuplicate:
			stats.Duplicate++
		case outcomeFailed:
			stats.Failed++
		default:
			stats.Skipped[outcome]++
		}
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.IncrMessage(outcome)
		}
		logger.Debug("message processed", "message_id", msg.ID, "outcome", outcome)
	}

	var g errgroup.Group
	for range r.cfg.Workers {
		g.Go(func() error {
			for msg := range msgs {
				outcome := r.process(ctx, logger, msg)
				record(msg, outcome)
				if outcome == outcomeSaved || outcome == outcomeDuplicate {
					select {
					case acks <- msg.ID:
					case <-ctx.Done():
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(acks)

	err := <-readerDone
	logger.Info("sync finished",
		"received", stats.Received,
		"saved", stats.Saved,
		"duplicate", stats.Duplicate,
		"skipped", stats.SkippedTotal(),
		"failed", stats.Failed,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return stats, fmt.Errorf("reading messages: %w", err)
	}
	return stats, nil
}

// process handles one message and returns its outcome.
func (r *Runner) process(ctx context.Context, logger *slog.Logger, msg *api.Message) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while processing message", "message_id", msg.ID, "panic", rec)
			outcome = outcomeFailed
		}
	}()

	candidate, result := r.parser.Parse(*msg)
	if result != parser.Parsed {
		logger.Info("message skipped", "message_id", msg.ID, "reason", result.String(), "subject", msg.Subject)
		return result.String()
	}

	rec, inserted, err := r.insert(ctx, logger, candidate)
	if err != nil {
		logger.Error("failed to store transaction", "message_id", msg.ID, "error", err)
		return outcomeFailed
	}
	if !inserted {
		logger.Info("duplicate message", "message_id", msg.ID)
		return outcomeDuplicate
	}
	logger.Info("transaction saved",
		"id", rec.ID,
		"issuer", rec.Issuer,
		"amount", rec.Amount,
		"trusted", rec.Trusted,
	)
	return outcomeSaved
}

// insert stores c, retrying transient failures with exponential backoff.
func (r *Runner) insert(ctx context.Context, logger *slog.Logger, c api.CandidateTransaction) (api.Record, bool, error) {
	var (
		rec      api.Record
		inserted bool
	)
	err := retry.Do(
		func() error {
			start := time.Now()
			var err error
			rec, inserted, err = r.store.Insert(ctx, c)
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.RecordStoreDuration("insert", time.Since(start))
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.RetryAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("insert failed, will retry", "message_id", c.MessageID, "attempt", n+1, "error", err)
		}),
	)
	return rec, inserted, err
}

func retryable(err error) bool {
	return !errors.Is(err, store.ErrInvalidRecord) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
