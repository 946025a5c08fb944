// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
convert.go - Import/Export Format Conversion

Two interchange formats:

  - JSON: the full snapshot document, losslessly round-trippable. An
    exported JSON file re-imports to identical state.
  - CSV: subscriptions only, one row per subscription, for spreadsheet
    interoperability. Settings and cache do not survive a CSV round
    trip; an imported CSV yields a snapshot with empty settings and
    cache payloads.

CSV parse failures carry one-based line numbers (header is line 1) so a
user can locate the offending row in their editor.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/subtrackd/subtrackd/internal/model"
)

// Format identifies an interchange format for export and import.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// csvHeader is the fixed CSV column set, in export order.
var csvHeader = []string{
	"name", "category", "amount", "currency",
	"billing_cycle", "next_payment_date", "status", "notes",
}

// csvDateLayout is the date-only format used for next_payment_date.
const csvDateLayout = "2006-01-02"

// Converter translates snapshots to and from interchange formats.
type Converter struct{}

// NewConverter creates a format converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Export renders the snapshot in the requested format.
func (cv *Converter) Export(snapshot *Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return cv.exportJSON(snapshot)
	case FormatCSV:
		return cv.exportCSV(snapshot)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Import parses external bytes in the given format into a snapshot ready
// for restore.
func (cv *Converter) Import(data []byte, format Format) (*Snapshot, error) {
	switch format {
	case FormatJSON:
		return cv.importJSON(data)
	case FormatCSV:
		return cv.importCSV(data)
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
}

// exportJSON renders the snapshot as an indented JSON document.
func (cv *Converter) exportJSON(snapshot *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// importJSON parses a previously exported JSON document.
func (cv *Converter) importJSON(data []byte) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, &ImportFormatError{Line: 0, Reason: fmt.Sprintf("not a valid snapshot document: %v", err)}
	}
	if err := snapshot.Validate(); err != nil {
		return nil, &ImportFormatError{Line: 0, Reason: err.Error()}
	}
	return &snapshot, nil
}

// exportCSV renders the snapshot's subscriptions as CSV rows.
func (cv *Converter) exportCSV(snapshot *Snapshot) ([]byte, error) {
	var subs []*model.Subscription
	if err := json.Unmarshal(snapshot.Payload.Subscriptions, &subs); err != nil {
		return nil, errInvalidSnapshot(fmt.Sprintf("subscriptions payload undecodable: %v", err))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, sub := range subs {
		row := []string{
			sub.Name,
			sub.Category,
			strconv.FormatFloat(sub.Amount, 'f', 2, 64),
			sub.Currency,
			string(sub.BillingCycle),
			sub.NextPaymentDate.Format(csvDateLayout),
			string(sub.Status),
			sub.Notes,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// importCSV parses CSV rows into subscriptions and wraps them in a fresh
// snapshot. Field identity is supplied by new UUIDs since CSV carries
// none.
func (cv *Converter) importCSV(data []byte) (*Snapshot, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(csvHeader)
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &ImportFormatError{Line: parseErr.Line, Reason: parseErr.Err.Error()}
		}
		return nil, &ImportFormatError{Line: 0, Reason: err.Error()}
	}
	if len(rows) == 0 {
		return nil, &ImportFormatError{Line: 0, Reason: "empty file"}
	}
	if !equalHeader(rows[0]) {
		return nil, &ImportFormatError{Line: 1, Reason: fmt.Sprintf("expected header %q", strings.Join(csvHeader, ","))}
	}

	now := time.Now().UTC()
	subs := make([]*model.Subscription, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2 // one-based, after the header row
		sub, err := parseCSVRow(row, now)
		if err != nil {
			return nil, &ImportFormatError{Line: line, Reason: err.Error()}
		}
		subs = append(subs, sub)
	}

	subsJSON, err := json.Marshal(subs)
	if err != nil {
		return nil, fmt.Errorf("encode imported subscriptions: %w", err)
	}

	return &Snapshot{
		Version:   SchemaVersion,
		CreatedAt: now,
		Device:    currentDevice(),
		Payload: SnapshotPayload{
			Subscriptions: subsJSON,
		},
	}, nil
}

// parseCSVRow converts one data row into a subscription.
func parseCSVRow(row []string, now time.Time) (*model.Subscription, error) {
	name := strings.TrimSpace(row[0])
	if name == "" {
		return nil, errors.New("name is required")
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", row[2])
	}
	if amount < 0 {
		return nil, fmt.Errorf("negative amount %q", row[2])
	}

	cycle := model.BillingCycle(strings.TrimSpace(row[4]))
	if !cycle.Valid() {
		return nil, fmt.Errorf("invalid billing_cycle %q", row[4])
	}

	nextPayment, err := time.Parse(csvDateLayout, strings.TrimSpace(row[5]))
	if err != nil {
		return nil, fmt.Errorf("invalid next_payment_date %q, want YYYY-MM-DD", row[5])
	}

	status := model.SubscriptionStatus(strings.TrimSpace(row[6]))
	if status == "" {
		status = model.StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", row[6])
	}

	return &model.Subscription{
		Name:            name,
		Category:        strings.TrimSpace(row[1]),
		Amount:          amount,
		Currency:        strings.TrimSpace(row[3]),
		BillingCycle:    cycle,
		NextPaymentDate: nextPayment,
		Status:          status,
		Notes:           row[7],
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// equalHeader reports whether the parsed header row matches csvHeader.
func equalHeader(row []string) bool {
	if len(row) != len(csvHeader) {
		return false
	}
	for i, col := range row {
		if strings.TrimSpace(strings.ToLower(col)) != csvHeader[i] {
			return false
		}
	}
	return true
}
