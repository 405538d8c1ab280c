// Package gmail implements a Reader that fetches card notification mail from Gmail.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/mailtext"
)

const (
	defaultMaxResults = 100
	baseRetryDelay    = 2 * time.Second
	maxRetryDelay     = 60 * time.Second
)

// Reader reads card notification messages from a Gmail mailbox.
type Reader struct {
	client     *gmail.Service
	query      string
	maxResults int64
	interval   time.Duration
	attempts   uint
	retryDelay time.Duration
	markRead   bool
	logger     *slog.Logger
}

// Config holds configuration for the Gmail reader.
type Config struct {
	// Query is the Gmail search query selecting notification mail.
	Query string
	// MaxResults is the page size for message listing. Defaults to 100.
	MaxResults int64
	// Interval between mailbox polls. Zero reads a single pass and stops.
	Interval time.Duration
	// RetryAttempts bounds attempts for rate-limited or failing API calls. Defaults to 5.
	RetryAttempts uint
	// MarkRead removes the UNREAD label from acknowledged messages.
	MarkRead bool
	// Endpoint overrides the API endpoint.
	Endpoint string
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Query == "" {
		return nil, errors.New("gmail query is required")
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := gmail.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 5
	}

	return &Reader{
		client:     client,
		query:      cfg.Query,
		maxResults: maxResults,
		interval:   cfg.Interval,
		attempts:   attempts,
		retryDelay: baseRetryDelay,
		markRead:   cfg.MarkRead,
		logger:     logger,
	}, nil
}

// BuildQuery returns a search query for unread mail from any of domains.
func BuildQuery(domains []string) string {
	from := make([]string, len(domains))
	for i, d := range domains {
		from[i] = "@" + d
	}
	return fmt.Sprintf("is:unread from:(%s)", strings.Join(from, " OR "))
}

// Read sends matching messages to out and closes it after a single pass, or
// when the context is canceled if an interval is configured. Messages are
// marked read only after their ID arrives on ackChan.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Message, ackChan <-chan string) error {
	acksDone := make(chan struct{})
	go func() {
		defer close(acksDone)
		r.handleAcknowledgments(ctx, ackChan)
	}()

	err := r.produce(ctx, out)
	<-acksDone
	return err
}

func (r *Reader) produce(ctx context.Context, out chan<- *api.Message) error {
	defer close(out)

	if err := r.poll(ctx, out); err != nil {
		return err
	}
	if r.interval == 0 {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := r.poll(ctx, out); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("poll failed", "error", err)
			}
		}
	}
}

// handleAcknowledgments marks emails as read once they are stored.
func (r *Reader) handleAcknowledgments(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-ackChan:
			if !ok {
				r.logger.Debug("acknowledgment channel closed")
				return
			}
			if r.markRead {
				r.markAsRead(ctx, msgID)
			}
		}
	}
}

func (r *Reader) markAsRead(ctx context.Context, msgID string) {
	err := r.withRetry(ctx, func() error {
		_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
		return
	}
	r.logger.Debug("marked message as read", "message_id", msgID)
}

// poll lists every page of matching messages and sends each one to out.
// A message that cannot be fetched is logged and skipped.
func (r *Reader) poll(ctx context.Context, out chan<- *api.Message) error {
	ids, err := r.listMessageIDs(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("found messages", "count", len(ids))

	for _, id := range ids {
		msg, err := r.fetch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("failed to fetch message", "message_id", id, "error", err)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- msg:
		}
	}
	return nil
}

func (r *Reader) listMessageIDs(ctx context.Context) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for {
		var resp *gmail.ListMessagesResponse
		err := r.withRetry(ctx, func() error {
			call := r.client.Users.Messages.List("me").Q(r.query).MaxResults(r.maxResults).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (r *Reader) fetch(ctx context.Context, id string) (*api.Message, error) {
	var msg *gmail.Message
	err := r.withRetry(ctx, func() error {
		var err error
		msg, err = r.client.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return toMessage(msg), nil
}

// withRetry retries rate-limited and server-side failures with exponential backoff.
func (r *Reader) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("gmail request failed, will retry", "attempt", n+1, "error", err)
		}),
	)
}

func retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}

func toMessage(msg *gmail.Message) *api.Message {
	m := &api.Message{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		return m
	}
	for _, h := range msg.Payload.Headers {
		switch {
		case strings.EqualFold(h.Name, "Subject"):
			m.Subject = mailtext.DecodeHeader(h.Value)
		case strings.EqualFold(h.Name, "From"):
			m.From = mailtext.SenderAddress(h.Value)
		}
	}
	plain, html := extractBody(msg.Payload)
	m.Body = plain
	if m.Body == "" {
		m.Body = html
	}
	return m
}

// extractBody walks the part tree and returns the first text/plain and
// text/html bodies, charset-decoded, with HTML flattened to text.
func extractBody(part *gmail.MessagePart) (plain, html string) {
	if part == nil {
		return "", ""
	}
	if strings.HasPrefix(part.MimeType, "multipart/") {
		for _, p := range part.Parts {
			pl, h := extractBody(p)
			if plain == "" {
				plain = pl
			}
			if html == "" {
				html = h
			}
		}
		return plain, html
	}
	if part.Body == nil || part.Body.Data == "" {
		return "", ""
	}
	if part.MimeType != "text/plain" && part.MimeType != "text/html" {
		return "", ""
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
	if err != nil {
		return "", ""
	}
	text := mailtext.DecodeCharset(partCharset(part), data)
	if part.MimeType == "text/html" {
		return "", mailtext.HTMLToText(text)
	}
	return text, ""
}

func partCharset(part *gmail.MessagePart) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			if _, params, err := mime.ParseMediaType(h.Value); err == nil {
				return params["charset"]
			}
		}
	}
	return ""
}
