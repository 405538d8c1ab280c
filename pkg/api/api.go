// Package api defines the core interfaces and data structures for cardtracker.
package api

import (
	"context"
	"time"
)

// Message is a raw notification email as supplied by a message source.
type Message struct {
	// ID is the source's opaque message identifier and the deduplication key.
	ID      string
	Subject string
	// From is the bare sender address (no display name).
	From string
	// Body is the decoded text body. HTML bodies are already flattened to text.
	Body       string
	ReceivedAt time.Time
}

// CandidateTransaction is a card transaction parsed from one message,
// not yet confirmed as uniquely stored.
type CandidateTransaction struct {
	Issuer string `json:"issuer"`
	// Amount is in whole currency units.
	Amount        int64     `json:"amount"`
	TransactionAt time.Time `json:"transaction_at"`
	// Merchant is empty when the message carried no merchant label.
	Merchant string `json:"merchant,omitempty"`
	// Trusted reports whether the sender domain matched the issuer's whitelist.
	Trusted bool `json:"trusted"`
	// Refund marks a returned purchase; Amount stays non-negative.
	Refund    bool   `json:"refund"`
	MessageID string `json:"message_id"`
	Subject   string `json:"email_subject"`
	Sender    string `json:"email_from"`
}

// Record is a persisted CandidateTransaction.
type Record struct {
	ID int64 `json:"id"`
	CandidateTransaction
	CreatedAt time.Time `json:"created_at"`
}

// Reader reads messages from a source and sends them to the provided channel.
// Implementations close the channel when the source is exhausted or the context is canceled.
// IDs of messages that were stored (or recognized as duplicates) arrive on ackChan;
// Read returns once ackChan is closed or the context is canceled.
type Reader interface {
	Read(ctx context.Context, out chan<- *Message, ackChan <-chan string) error
}
