// Package parser turns card usage notification mail into candidate transactions.
//
// A Parser is stateless between calls and safe for concurrent use. Extraction
// never fails with an error: a field either yields a value or reports no match,
// and unusual input is surfaced through a diag.Sink instead.
package parser

import (
	"strings"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/issuer"
	"github.com/ArionMiles/cardtracker/pkg/mailtext"
)

const (
	// MaxAmount is a safety bound for corrupted input, not a business limit.
	MaxAmount = 2147483647
	// MaxMerchantRunes is the merchant name length ceiling.
	MaxMerchantRunes = 1000
)

// DefaultLocation is the time zone issuer notifications are written in.
var DefaultLocation = time.FixedZone("JST", 9*60*60)

// Outcome is the result of parsing one message.
type Outcome int

const (
	Parsed Outcome = iota
	NoIssuer
	NoAmount
	NoDateTime
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case NoIssuer:
		return "no_issuer"
	case NoAmount:
		return "no_amount"
	case NoDateTime:
		return "no_datetime"
	}
	return "unknown"
}

// Parser extracts transactions using an issuer rule table.
type Parser struct {
	table *issuer.Table
	sink  diag.Sink
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithSink sets the data-quality event sink.
func WithSink(s diag.Sink) Option {
	return func(p *Parser) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithLocation sets the time zone used to interpret extracted dates.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock sets the processing-time source used for future timestamp checks.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Parser. A nil table uses issuer.Default().
func New(table *issuer.Table, opts ...Option) *Parser {
	if table == nil {
		table = issuer.Default()
	}
	p := &Parser{
		table: table,
		sink:  diag.Discard,
		loc:   DefaultLocation,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Table returns the rule table the parser uses.
func (p *Parser) Table() *issuer.Table {
	return p.table
}

// Parse runs classification, trust verification and extraction in order,
// stopping at the first missing required field. Untrusted senders still
// produce a candidate, flagged with Trusted=false.
func (p *Parser) Parse(msg api.Message) (api.CandidateTransaction, Outcome) {
	name, ok := p.table.Detect(msg.Subject)
	if !ok {
		return api.CandidateTransaction{}, NoIssuer
	}
	if all := p.table.Matches(msg.Subject); len(all) > 1 {
		names := make([]string, len(all))
		for i, n := range all {
			names[i] = string(n)
		}
		p.observe(diag.AmbiguousIssuer, string(name), "issuer", strings.Join(names, ","))
	}

	cand := api.CandidateTransaction{
		Issuer:    string(name),
		Trusted:   p.table.IsTrusted(msg.From, string(name)),
		MessageID: msg.ID,
		Subject:   msg.Subject,
		Sender:    msg.From,
	}

	text := mailtext.Fold(msg.Body)

	if cand.Amount, ok = p.amount(text, string(name)); !ok {
		return api.CandidateTransaction{}, NoAmount
	}
	if cand.TransactionAt, ok = p.dateTime(text, string(name)); !ok {
		return api.CandidateTransaction{}, NoDateTime
	}
	cand.Merchant, _ = p.merchant(text, string(name))
	cand.Refund = p.refund(text, name)

	return cand, Parsed
}

func (p *Parser) refund(text string, name issuer.Name) bool {
	prof, ok := p.table.Profile(name)
	if !ok {
		return false
	}
	for _, re := range prof.Refund {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (p *Parser) profile(name string) *issuer.Profile {
	prof, ok := p.table.Profile(issuer.Name(name))
	if !ok {
		return nil
	}
	return prof
}

func (p *Parser) observe(kind diag.Kind, name, field, detail string) {
	p.sink.Observe(diag.Event{Kind: kind, Issuer: name, Field: field, Detail: detail})
}
