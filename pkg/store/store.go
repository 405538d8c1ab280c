// Package store defines duplicate-safe transaction storage and its aggregations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
)

var (
	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRecord marks a record the store rejected on content. Retrying cannot succeed.
	ErrInvalidRecord = errors.New("invalid record")
)

// Store persists candidate transactions at most once per message ID.
//
// Insert is atomic with respect to the message ID: of any number of
// concurrent inserts for one ID exactly one reports inserted=true, the rest
// report inserted=false with a nil error. A duplicate never affects other
// inserts. Aggregations only count trusted records.
type Store interface {
	Insert(ctx context.Context, c api.CandidateTransaction) (rec api.Record, inserted bool, err error)
	Get(ctx context.Context, id int64) (api.Record, error)
	List(ctx context.Context, f Filter) ([]api.Record, error)
	// SetTrusted records the outcome of a manual review.
	SetTrusted(ctx context.Context, id int64, trusted bool) error
	Delete(ctx context.Context, id int64) error

	// Summary totals trusted records in p, optionally for one issuer.
	Summary(ctx context.Context, p Period, issuer string) (Summary, error)
	// SummaryByIssuer totals trusted records in p per issuer, ordered by issuer.
	SummaryByIssuer(ctx context.Context, p Period) ([]Summary, error)
	// AllTimeByIssuer totals every trusted record per issuer, ordered by issuer.
	AllTimeByIssuer(ctx context.Context) ([]Summary, error)

	Close()
}

// Period is the half-open interval [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside p.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// MonthPeriod returns the calendar month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) Period {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{From: from, To: from.AddDate(0, 1, 0)}
}

// ParseMonth parses a "YYYY-MM" month in loc.
func ParseMonth(s string, loc *time.Location) (Period, error) {
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return Period{}, fmt.Errorf("invalid month %q, want YYYY-MM: %w", s, err)
	}
	return MonthPeriod(t.Year(), t.Month(), loc), nil
}

// Filter selects records for List. Zero fields do not filter.
type Filter struct {
	Period  *Period
	Issuer  string
	Trusted *bool
	// Limit caps the number of records returned; 0 means no limit.
	Limit int
}

// Summary aggregates trusted records. Average is truncated to whole yen.
type Summary struct {
	Issuer  string `json:"issuer,omitempty"`
	Total   int64  `json:"total"`
	Count   int64  `json:"count"`
	Average int64  `json:"average"`
}

// GrandTotal sums per-issuer summaries.
func GrandTotal(rows []Summary) Summary {
	var s Summary
	for _, r := range rows {
		s.Total += r.Total
		s.Count += r.Count
	}
	if s.Count > 0 {
		s.Average = s.Total / s.Count
	}
	return s
}
