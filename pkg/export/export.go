// Package export writes stored transactions to CSV and JSON files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/api"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want csv or json)", s)
}

var csvHeaders = []string{
	"ID", "Transaction At", "Issuer", "Amount", "Merchant", "Trusted", "Refund",
	"Message ID", "Subject", "From", "Created At",
}

// Write encodes records to w in format. Timestamps are rendered in loc.
func Write(w io.Writer, format Format, records []api.Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	switch format {
	case FormatCSV:
		return writeCSV(w, records, loc)
	case FormatJSON:
		return writeJSON(w, records, loc)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteFile writes records to a new file at path, replacing any existing file.
func WriteFile(path string, format Format, records []api.Record, loc *time.Location) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing export file: %w", closeErr)
		}
	}()
	return Write(f, format, records, loc)
}

func writeCSV(w io.Writer, records []api.Record, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return fmt.Errorf("writing csv headers: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.TransactionAt.In(loc).Format(time.RFC3339),
			r.Issuer,
			strconv.FormatInt(r.Amount, 10),
			r.Merchant,
			strconv.FormatBool(r.Trusted),
			strconv.FormatBool(r.Refund),
			r.MessageID,
			r.Subject,
			r.Sender,
			r.CreatedAt.In(loc).Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, records []api.Record, loc *time.Location) error {
	out := make([]api.Record, len(records))
	for i, r := range records {
		r.TransactionAt = r.TransactionAt.In(loc)
		r.CreatedAt = r.CreatedAt.In(loc)
		out[i] = r
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}
