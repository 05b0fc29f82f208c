package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no archived document has the requested ID.
var ErrNotFound = errors.New("document not found")

// Record is one archived draft with its pipeline report.
type Record struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"requestId"`
	PatientName  string          `json:"patientName"`
	Diagnosis    string          `json:"diagnosis"`
	UsedFallback bool            `json:"usedFallback"`
	HasConflict  bool            `json:"hasConflict"`
	CreatedAt    time.Time       `json:"createdAt"`
	Document     json.RawMessage `json:"document,omitempty"`
	Report       json.RawMessage `json:"report,omitempty"`
}

// Archive persists generated drafts for audit.
type Archive interface {
	// SaveDocument upserts a record by ID.
	SaveDocument(ctx context.Context, rec *Record) error

	// GetDocument returns the full record or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*Record, error)

	// ListDocuments returns the newest records first, without bodies.
	ListDocuments(ctx context.Context, limit int) ([]Record, error)

	Close() error
}
