// Package mbox implements a Reader over an mbox export, such as Google Takeout mail archives.
package mbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/emersion/go-mbox"
	"github.com/google/uuid"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/mailtext"
)

// maxMessageBytes bounds how much of a single message is read.
const maxMessageBytes = 10 << 20

// Reader reads messages from an mbox file.
type Reader struct {
	path   string
	logger *slog.Logger
}

// Config holds configuration for the mbox reader.
type Config struct {
	// Path is the mbox file to read.
	Path string
}

// New creates a new mbox reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("mbox path is required")
	}
	return &Reader{path: cfg.Path, logger: logger}, nil
}

// Read sends every message in the file to out, then closes it. An mbox file
// has no read state, so acknowledgments are only drained.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Message, ackChan <-chan string) error {
	acksDone := make(chan struct{})
	go func() {
		defer close(acksDone)
		drain(ctx, ackChan)
	}()

	err := r.produce(ctx, out)
	<-acksDone
	return err
}

func drain(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ackChan:
			if !ok {
				return
			}
		}
	}
}

func (r *Reader) produce(ctx context.Context, out chan<- *api.Message) error {
	defer close(out)

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	mr := mbox.NewReader(f)
	count := 0
	for {
		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			r.logger.Info("mbox read complete", "path", r.path, "messages", count)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading mbox: %w", err)
		}

		data, err := io.ReadAll(io.LimitReader(raw, maxMessageBytes))
		if err != nil {
			return fmt.Errorf("reading mbox message %d: %w", count+1, err)
		}
		count++

		msg, err := toMessage(data)
		if err != nil {
			r.logger.Warn("skipping unparseable message", "index", count, "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- msg:
		}
	}
}

// toMessage parses a raw message. Messages without a Message-Id get a
// stable name-based UUID derived from their content, so re-importing the
// same archive deduplicates.
func toMessage(data []byte) (*api.Message, error) {
	p, err := mailtext.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	id := p.MessageID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, data).String()
	}
	return &api.Message{
		ID:         id,
		Subject:    p.Subject,
		From:       p.From,
		Body:       p.Body,
		ReceivedAt: p.Date,
	}, nil
}
