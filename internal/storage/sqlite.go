package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout has fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			request_id TEXT,
			patient_name TEXT,
			diagnosis TEXT,
			used_fallback INTEGER NOT NULL DEFAULT 0,
			has_conflict INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			document JSON,
			report JSON
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("document record needs an id")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, request_id, patient_name, diagnosis, used_fallback, has_conflict, created_at, document, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			request_id=excluded.request_id,
			patient_name=excluded.patient_name,
			diagnosis=excluded.diagnosis,
			used_fallback=excluded.used_fallback,
			has_conflict=excluded.has_conflict,
			created_at=excluded.created_at,
			document=excluded.document,
			report=excluded.report
	`, rec.ID, rec.RequestID, rec.PatientName, rec.Diagnosis, rec.UsedFallback, rec.HasConflict,
		created.UTC().Format(timeLayout), string(rec.Document), string(rec.Report))

	return err
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, patient_name, diagnosis, used_fallback, has_conflict, created_at, document, report
		FROM documents WHERE id = ?`, id)

	var (
		rec       Record
		created   string
		doc, repo sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.RequestID, &rec.PatientName, &rec.Diagnosis,
		&rec.UsedFallback, &rec.HasConflict, &created, &doc, &repo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	if doc.Valid && doc.String != "" {
		rec.Document = []byte(doc.String)
	}
	if repo.Valid && repo.String != "" {
		rec.Report = []byte(repo.String)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, patient_name, diagnosis, used_fallback, has_conflict, created_at
		FROM documents ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var created string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.PatientName, &rec.Diagnosis,
			&rec.UsedFallback, &rec.HasConflict, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
