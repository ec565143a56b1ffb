package usecase

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iho/pspledger/internal/domain"
)

// ExportFormat is the serialization of an audit export.
type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportJSONL ExportFormat = "jsonl"
)

// ParseExportFormat defaults to CSV.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportJSONL, "ndjson":
		return ExportJSONL, nil
	}
	return "", domain.NewValidationError("format", fmt.Errorf("unsupported export format %q", s))
}

// ContentType returns the HTTP content type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportJSONL {
		return "application/x-ndjson"
	}
	return "text/csv; charset=utf-8"
}

var auditCSVHeader = []string{
	"id", "kind", "date", "psp", "amount", "previous_amount", "created_at", "updated_at", "updated_by",
}

type auditEncoder interface {
	Begin() error
	Encode(e *domain.AuditEntry) error
	Flush() error
}

func newAuditEncoder(format ExportFormat, w io.Writer) (auditEncoder, error) {
	switch format {
	case ExportCSV:
		return &csvAuditEncoder{w: csv.NewWriter(w)}, nil
	case ExportJSONL:
		return &jsonlAuditEncoder{enc: json.NewEncoder(w)}, nil
	}
	return nil, domain.NewValidationError("format", fmt.Errorf("unsupported export format %q", format))
}

type csvAuditEncoder struct {
	w *csv.Writer
}

func (c *csvAuditEncoder) Begin() error {
	return c.w.Write(auditCSVHeader)
}

func (c *csvAuditEncoder) Encode(e *domain.AuditEntry) error {
	return c.w.Write([]string{
		e.ID,
		string(e.Kind),
		e.Date.String(),
		e.PSP,
		e.Amount.String(),
		e.PreviousAmount.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
		e.UpdatedBy,
	})
}

func (c *csvAuditEncoder) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

type jsonlAuditEncoder struct {
	enc *json.Encoder
}

type auditLine struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Date           string `json:"date"`
	PSP            string `json:"psp"`
	Amount         string `json:"amount"`
	PreviousAmount string `json:"previous_amount"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	UpdatedBy      string `json:"updated_by"`
}

func (j *jsonlAuditEncoder) Begin() error { return nil }

func (j *jsonlAuditEncoder) Encode(e *domain.AuditEntry) error {
	return j.enc.Encode(auditLine{
		ID:             e.ID,
		Kind:           string(e.Kind),
		Date:           e.Date.String(),
		PSP:            e.PSP,
		Amount:         e.Amount.String(),
		PreviousAmount: e.PreviousAmount.String(),
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      e.UpdatedAt.UTC().Format(time.RFC3339),
		UpdatedBy:      e.UpdatedBy,
	})
}

func (j *jsonlAuditEncoder) Flush() error { return nil }
