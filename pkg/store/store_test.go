package store

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)

	p, err := ParseMonth("2024-02", jst)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 2, 1, 0, 0, 0, 0, jst); !p.From.Equal(want) {
		t.Errorf("from: got %v, want %v", p.From, want)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, jst); !p.To.Equal(want) {
		t.Errorf("to: got %v, want %v", p.To, want)
	}
	if !p.Contains(time.Date(2024, 2, 29, 23, 59, 0, 0, jst)) {
		t.Error("leap day not contained")
	}
	if p.Contains(p.To) {
		t.Error("period end must be exclusive")
	}

	dec, _ := ParseMonth("2025-12", jst)
	if want := time.Date(2026, 1, 1, 0, 0, 0, 0, jst); !dec.To.Equal(want) {
		t.Errorf("december end: got %v, want %v", dec.To, want)
	}

	for _, bad := range []string{"2024-13", "2024/02", "202402", "", "2024-2x"} {
		if _, err := ParseMonth(bad, jst); err == nil {
			t.Errorf("ParseMonth(%q): expected error", bad)
		}
	}
}

func TestGrandTotal(t *testing.T) {
	got := GrandTotal([]Summary{{Issuer: "A", Total: 10, Count: 3}, {Issuer: "B", Total: 5, Count: 1}})
	if got != (Summary{Total: 15, Count: 4, Average: 3}) {
		t.Errorf("got %+v", got)
	}
	if got := GrandTotal(nil); got != (Summary{}) {
		t.Errorf("empty: got %+v", got)
	}
}
