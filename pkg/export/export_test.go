package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
)

var jst = time.FixedZone("JST", 9*60*60)

func sampleRecords() []api.Record {
	return []api.Record{
		{
			ID: 1,
			CandidateTransaction: api.CandidateTransaction{
				Issuer:        "SMBC",
				Amount:        3500,
				TransactionAt: time.Date(2026, 2, 25, 1, 30, 0, 0, time.UTC),
				Merchant:      "セブン-イレブン, 新宿店",
				Trusted:       true,
				MessageID:     "m1",
				Subject:       "ご利用のお知らせ【三井住友カード】",
				Sender:        "info@contact.vpass.ne.jp",
			},
			CreatedAt: time.Date(2026, 2, 25, 2, 0, 0, 0, time.UTC),
		},
		{
			ID: 2,
			CandidateTransaction: api.CandidateTransaction{
				Issuer:        "Saison",
				Amount:        99800,
				TransactionAt: time.Date(2026, 2, 26, 3, 0, 0, 0, time.UTC),
				MessageID:     "m2",
			},
			CreatedAt: time.Date(2026, 2, 26, 3, 5, 0, 0, time.UTC),
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "json"} {
		if f, err := ParseFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseFormat(%q): got (%q, %v)", s, f, err)
		}
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Error("ParseFormat(xlsx): expected error")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sampleRecords(), jst); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3", len(rows))
	}
	if rows[0][0] != "ID" || len(rows[0]) != len(rows[1]) {
		t.Errorf("header: got %v", rows[0])
	}

	first := rows[1]
	if first[1] != "2026-02-25T10:30:00+09:00" {
		t.Errorf("transaction_at: got %q", first[1])
	}
	if first[3] != "3500" || first[4] != "セブン-イレブン, 新宿店" || first[5] != "true" {
		t.Errorf("row: got %v", first)
	}
	if rows[2][4] != "" || rows[2][5] != "false" {
		t.Errorf("untrusted row: got %v", rows[2])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleRecords(), jst); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding json: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2", len(got))
	}
	if got[0]["transaction_at"] != "2026-02-25T10:30:00+09:00" {
		t.Errorf("transaction_at: got %v", got[0]["transaction_at"])
	}
	if got[0]["amount"] != float64(3500) || got[0]["trusted"] != true {
		t.Errorf("record: got %v", got[0])
	}
	if _, ok := got[1]["merchant"]; ok {
		t.Errorf("absent merchant should be omitted: %v", got[1])
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path, []byte("stale content\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, FormatCSV, sampleRecords()[:1], nil); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "stale") {
		t.Error("existing file not truncated")
	}
	if !strings.Contains(string(data), "2026-02-25T01:30:00Z") {
		t.Errorf("expected UTC timestamps without a location: %s", data)
	}

	if err := WriteFile(filepath.Join(t.TempDir(), "no", "such", "dir.csv"), FormatCSV, nil, nil); err == nil {
		t.Error("expected error for missing directory")
	}
}
