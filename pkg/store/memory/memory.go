// Package memory provides an in-process Store, used for dry runs and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/store"
)

// Store keeps records in memory. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	records   map[int64]api.Record
	byMessage map[string]int64
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		records:   make(map[int64]api.Record),
		byMessage: make(map[string]int64),
		now:       time.Now,
	}
}

func (s *Store) Insert(ctx context.Context, c api.CandidateTransaction) (api.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return api.Record{}, false, err
	}
	if c.MessageID == "" {
		return api.Record{}, false, fmt.Errorf("%w: empty message id", store.ErrInvalidRecord)
	}
	if c.Amount < 0 {
		return api.Record{}, false, fmt.Errorf("%w: negative amount", store.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byMessage[c.MessageID]; dup {
		return api.Record{}, false, nil
	}
	s.nextID++
	rec := api.Record{ID: s.nextID, CandidateTransaction: c, CreatedAt: s.now()}
	s.records[rec.ID] = rec
	s.byMessage[c.MessageID] = rec.ID
	return rec, true, nil
}

func (s *Store) Get(_ context.Context, id int64) (api.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return api.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) List(_ context.Context, f store.Filter) ([]api.Record, error) {
	s.mu.RLock()
	out := make([]api.Record, 0, len(s.records))
	for _, rec := range s.records {
		if matches(rec, f) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b api.Record) int {
		if c := b.TransactionAt.Compare(a.TransactionAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(rec api.Record, f store.Filter) bool {
	if f.Period != nil && !f.Period.Contains(rec.TransactionAt) {
		return false
	}
	if f.Issuer != "" && rec.Issuer != f.Issuer {
		return false
	}
	if f.Trusted != nil && rec.Trusted != *f.Trusted {
		return false
	}
	return true
}

func (s *Store) SetTrusted(_ context.Context, id int64, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Trusted = trusted
	s.records[id] = rec
	return nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.records, id)
	delete(s.byMessage, rec.MessageID)
	return nil
}

func (s *Store) Summary(_ context.Context, p store.Period, issuer string) (store.Summary, error) {
	rows := s.aggregate(&p)
	if issuer != "" {
		for _, r := range rows {
			if r.Issuer == issuer {
				r.Issuer = ""
				return r, nil
			}
		}
		return store.Summary{}, nil
	}
	return store.GrandTotal(rows), nil
}

func (s *Store) SummaryByIssuer(_ context.Context, p store.Period) ([]store.Summary, error) {
	return s.aggregate(&p), nil
}

func (s *Store) AllTimeByIssuer(context.Context) ([]store.Summary, error) {
	return s.aggregate(nil), nil
}

func (s *Store) aggregate(p *store.Period) []store.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byIssuer := make(map[string]*store.Summary)
	for _, rec := range s.records {
		if !rec.Trusted || (p != nil && !p.Contains(rec.TransactionAt)) {
			continue
		}
		sum, ok := byIssuer[rec.Issuer]
		if !ok {
			sum = &store.Summary{Issuer: rec.Issuer}
			byIssuer[rec.Issuer] = sum
		}
		sum.Total += rec.Amount
		sum.Count++
	}

	out := make([]store.Summary, 0, len(byIssuer))
	for _, sum := range byIssuer {
		sum.Average = sum.Total / sum.Count
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b store.Summary) int { return cmp.Compare(a.Issuer, b.Issuer) })
	return out
}

func (s *Store) Close() {}
