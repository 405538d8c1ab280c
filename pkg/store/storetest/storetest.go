// Package storetest holds behavior tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/store"
)

var jst = time.FixedZone("JST", 9*60*60)

// Candidate returns a trusted candidate for tests.
func Candidate(id, issuer string, amount int64, at time.Time) api.CandidateTransaction {
	return api.CandidateTransaction{
		Issuer:        issuer,
		Amount:        amount,
		TransactionAt: at,
		Merchant:      "テスト店舗",
		Trusted:       true,
		MessageID:     id,
		Subject:       issuer + " ご利用のお知らせ",
		Sender:        "info@example.jp",
	}
}

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("InsertAndDuplicate", func(t *testing.T) { testInsertAndDuplicate(t, newStore(t)) })
	t.Run("ConcurrentDuplicates", func(t *testing.T) { testConcurrentDuplicates(t, newStore(t)) })
	t.Run("DuplicateIsolation", func(t *testing.T) { testDuplicateIsolation(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("SetTrustedAndDelete", func(t *testing.T) { testSetTrustedAndDelete(t, newStore(t)) })
	t.Run("Summaries", func(t *testing.T) { testSummaries(t, newStore(t)) })
}

func testInsertAndDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Candidate("msg-1", "JCB", 3500, time.Date(2026, 2, 25, 10, 30, 0, 0, jst))
	c.Refund = true

	rec, inserted, err := s.Insert(ctx, c)
	if err != nil || !inserted {
		t.Fatalf("first insert: got (%v, %v), want (true, nil)", inserted, err)
	}
	if rec.ID == 0 || rec.CreatedAt.IsZero() {
		t.Errorf("record missing id or created_at: %+v", rec)
	}

	_, inserted, err = s.Insert(ctx, c)
	if err != nil {
		t.Fatalf("duplicate insert returned error: %v", err)
	}
	if inserted {
		t.Fatal("duplicate insert reported inserted")
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 3500 || got.Issuer != "JCB" || got.Merchant != "テスト店舗" || !got.Trusted || !got.Refund {
		t.Errorf("stored record mismatch: %+v", got)
	}
	if !got.TransactionAt.Equal(c.TransactionAt) {
		t.Errorf("transaction_at: got %v, want %v", got.TransactionAt, c.TransactionAt)
	}

	all, err := s.List(ctx, store.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("records: got %d, want 1", len(all))
	}

	noMerchant := Candidate("msg-2", "JCB", 100, c.TransactionAt)
	noMerchant.Merchant = ""
	rec, _, err = s.Insert(ctx, noMerchant)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, rec.ID); got.Merchant != "" {
		t.Errorf("absent merchant: got %q", got.Merchant)
	}
}

func testConcurrentDuplicates(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Candidate("same-id", "SMBC", 1000, time.Date(2026, 1, 1, 9, 0, 0, 0, jst))

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		errs     []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Insert(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				inserted++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("duplicate inserts returned errors: %v", errs)
	}
	if inserted != 1 {
		t.Errorf("inserted: got %d, want exactly 1", inserted)
	}
	all, _ := s.List(ctx, store.Filter{})
	if len(all) != 1 {
		t.Errorf("records: got %d, want 1", len(all))
	}
}

func testDuplicateIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, jst)

	for _, id := range []string{"a", "a", "b", "a", "c"} {
		if _, _, err := s.Insert(ctx, Candidate(id, "AMEX", 10, at)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	all, err := s.List(ctx, store.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("records: got %d, want 3", len(all))
	}
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	feb := store.MonthPeriod(2026, time.February, jst)

	seed := []api.CandidateTransaction{
		Candidate("1", "SMBC", 100, time.Date(2026, 2, 1, 0, 0, 0, 0, jst)),
		Candidate("2", "JCB", 200, time.Date(2026, 2, 15, 12, 0, 0, 0, jst)),
		Candidate("3", "SMBC", 300, time.Date(2026, 2, 28, 23, 59, 0, 0, jst)),
		Candidate("4", "SMBC", 400, time.Date(2026, 3, 1, 0, 0, 0, 0, jst)),
		Candidate("5", "SMBC", 500, time.Date(2026, 1, 31, 23, 59, 0, 0, jst)),
	}
	seed[1].Trusted = false
	for _, c := range seed {
		if _, _, err := s.Insert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	trusted := false
	tests := []struct {
		name string
		f    store.Filter
		want []string
	}{
		{"all newest first", store.Filter{}, []string{"4", "3", "2", "1", "5"}},
		{"month bounds", store.Filter{Period: &feb}, []string{"3", "2", "1"}},
		{"issuer", store.Filter{Period: &feb, Issuer: "SMBC"}, []string{"3", "1"}},
		{"untrusted only", store.Filter{Trusted: &trusted}, []string{"2"}},
		{"limit", store.Filter{Limit: 2}, []string{"4", "3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recs, err := s.List(ctx, tc.f)
			if err != nil {
				t.Fatal(err)
			}
			got := make([]string, len(recs))
			for i, r := range recs {
				got[i] = r.MessageID
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func testSetTrustedAndDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	c := Candidate("x", "Saison", 98000, time.Date(2026, 2, 1, 3, 14, 0, 0, jst))
	c.Trusted = false
	rec, _, err := s.Insert(ctx, c)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetTrusted(ctx, rec.ID, true); err != nil {
		t.Fatalf("set trusted: %v", err)
	}
	got, _ := s.Get(ctx, rec.ID)
	if !got.Trusted {
		t.Error("trust flag not updated")
	}

	if err := s.SetTrusted(ctx, rec.ID+1000, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("set trusted on missing id: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}

	// A deleted message may be stored again.
	if _, inserted, err := s.Insert(ctx, c); err != nil || !inserted {
		t.Errorf("reinsert after delete: got (%v, %v)", inserted, err)
	}
}

func testSummaries(t *testing.T, s store.Store) {
	ctx := context.Background()
	feb := store.MonthPeriod(2026, time.February, jst)

	seed := []api.CandidateTransaction{
		Candidate("s1", "SMBC", 1000, time.Date(2026, 2, 1, 10, 0, 0, 0, jst)),
		Candidate("s2", "SMBC", 1001, time.Date(2026, 2, 2, 10, 0, 0, 0, jst)),
		Candidate("s3", "SMBC", 1001, time.Date(2026, 2, 3, 10, 0, 0, 0, jst)),
		Candidate("j1", "JCB", 3000, time.Date(2026, 2, 10, 10, 0, 0, 0, jst)),
		Candidate("j2", "JCB", 500, time.Date(2026, 3, 10, 10, 0, 0, 0, jst)),
		Candidate("u1", "JCB", 99999, time.Date(2026, 2, 11, 10, 0, 0, 0, jst)),
	}
	seed[5].Trusted = false
	for _, c := range seed {
		if _, _, err := s.Insert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	sum, err := s.Summary(ctx, feb, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := (store.Summary{Total: 6002, Count: 4, Average: 1500}); sum != want {
		t.Errorf("february: got %+v, want %+v", sum, want)
	}

	sum, err = s.Summary(ctx, feb, "SMBC")
	if err != nil {
		t.Fatal(err)
	}
	if want := (store.Summary{Total: 3002, Count: 3, Average: 1000}); sum != want {
		t.Errorf("february SMBC: got %+v, want %+v", sum, want)
	}

	sum, err = s.Summary(ctx, store.MonthPeriod(2025, time.December, jst), "")
	if err != nil {
		t.Fatal(err)
	}
	if sum != (store.Summary{}) {
		t.Errorf("empty month: got %+v, want zero", sum)
	}

	rows, err := s.SummaryByIssuer(ctx, feb)
	if err != nil {
		t.Fatal(err)
	}
	want := []store.Summary{
		{Issuer: "JCB", Total: 3000, Count: 1, Average: 3000},
		{Issuer: "SMBC", Total: 3002, Count: 3, Average: 1000},
	}
	if fmt.Sprint(rows) != fmt.Sprint(want) {
		t.Errorf("by issuer: got %+v, want %+v", rows, want)
	}

	rows, err = s.AllTimeByIssuer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want = []store.Summary{
		{Issuer: "JCB", Total: 3500, Count: 2, Average: 1750},
		{Issuer: "SMBC", Total: 3002, Count: 3, Average: 1000},
	}
	if fmt.Sprint(rows) != fmt.Sprint(want) {
		t.Errorf("all time: got %+v, want %+v", rows, want)
	}
	if g := store.GrandTotal(rows); g.Total != 6502 || g.Count != 5 || g.Average != 1300 {
		t.Errorf("grand total: got %+v", g)
	}
}
