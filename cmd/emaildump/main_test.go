package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SMBC_2026-02-25_ご利用のお知らせ", "SMBC_2026-02-25_ご利用のお知らせ"},
		{`JCB_a/b\c:d*e?`, "JCB_a_b_c_d_e"},
		{"AMEX__  spaced  subject__", "AMEX_spaced_subject"},
		{strings.Repeat("あ", 150), strings.Repeat("あ", 100)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fixedReader struct{ msgs []*api.Message }

func (f fixedReader) Read(ctx context.Context, out chan<- *api.Message, _ <-chan string) error {
	defer close(out)
	for _, m := range f.msgs {
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func TestDumpIssuer(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 2, 25, 10, 30, 0, 0, time.UTC)
	reader := fixedReader{msgs: []*api.Message{
		{ID: "1", Subject: "ご利用のお知らせ", Body: "利用金額: 100円", ReceivedAt: at},
		{ID: "2", Subject: "empty", ReceivedAt: at},
		{ID: "3", Subject: "second", Body: "利用金額: 200円", ReceivedAt: at.Add(time.Minute)},
		{ID: "4", Subject: "over limit", Body: "x", ReceivedAt: at},
	}}

	count, err := dumpIssuer(context.Background(), reader, "JCB", dir, 2, nil)
	if err != nil {
		t.Fatalf("dumpIssuer: %v", err)
	}
	if count != 2 {
		t.Errorf("count: got %d, want 2", count)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("files: got %d, want 2", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, "JCB_2026-02-25_103000_ご利用のお知らせ.txt"))
	if err != nil || string(data) != "利用金額: 100円" {
		t.Errorf("dumped body: got (%q, %v)", data, err)
	}
}
