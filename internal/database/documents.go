package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Document statuses recorded in the ledger.
const (
	StatusFulfilled = "fulfilled" // both identifiers found and the order marked shipped
	StatusExtracted = "extracted" // both identifiers found, fulfillment not attempted (dry run)
	StatusFailed    = "failed"    // at least one identifier missing
	StatusSkipped   = "skipped"
	StatusError     = "error" // OCR or fulfillment failure
)

// Document is one processed label file.
type Document struct {
	ID                 int64           `json:"id"`
	Path               string          `json:"path"`
	Filename           string          `json:"filename"`
	ContentHash        string          `json:"content_hash"`
	Status             string          `json:"status"`
	OrderNumber        string          `json:"order_number,omitempty"`
	OrderPattern       string          `json:"order_pattern,omitempty"`
	TrackingNumber     string          `json:"tracking_number,omitempty"`
	TrackingSource     string          `json:"tracking_source,omitempty"`
	Missing            []string        `json:"missing,omitempty"`
	Diagnostics        json.RawMessage `json:"diagnostics,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	RunID              string          `json:"run_id"`
	FulfillmentOrderID int64           `json:"fulfillment_order_id,omitempty"`
	Carrier            string          `json:"carrier,omitempty"`
	Pages              int             `json:"pages"`
	DurationMS         int64           `json:"duration_ms"`
	ProcessedAt        time.Time       `json:"processed_at"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DocumentStats summarizes the ledger.
type DocumentStats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	Fulfilled     int            `json:"fulfilled"`
	Extracted     int            `json:"extracted"`
	Failed        int            `json:"failed"`
	Skipped       int            `json:"skipped"`
	Errors        int            `json:"errors"`
	LastProcessed *time.Time     `json:"last_processed,omitempty"`
}

// DocumentStore handles database operations for processed documents
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore creates a new document store
func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const documentColumns = `id, path, filename, content_hash, status, order_number, order_pattern,
	tracking_number, tracking_source, missing, diagnostics, error_message, run_id,
	fulfillment_order_id, carrier, pages, duration_ms, processed_at, created_at, updated_at`

// IsProcessed reports whether this exact file content at this path already
// reached a final status. Dry-run extractions and errors are retried.
func (s *DocumentStore) IsProcessed(path, contentHash string) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM documents
		WHERE path = ? AND content_hash = ? AND status IN (?, ?, ?)
	`
	err := s.db.QueryRow(query, path, contentHash, StatusFulfilled, StatusFailed, StatusSkipped).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check if document is processed: %w", err)
	}
	return count > 0, nil
}

// Record inserts or replaces the ledger entry for (path, content hash).
func (s *DocumentStore) Record(doc *Document) error {
	if doc.Path == "" || doc.ContentHash == "" {
		return errors.New("document path and content hash are required")
	}

	missingJSON, err := json.Marshal(doc.Missing)
	if err != nil {
		return fmt.Errorf("failed to marshal missing identifiers: %w", err)
	}
	if doc.Missing == nil {
		missingJSON = []byte("[]")
	}
	diagnostics := string(doc.Diagnostics)
	if diagnostics == "" {
		diagnostics = "{}"
	}

	now := time.Now().UTC()
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = now
	}
	doc.ProcessedAt = doc.ProcessedAt.UTC()

	query := `
		INSERT INTO documents (
			path, filename, content_hash, status, order_number, order_pattern,
			tracking_number, tracking_source, missing, diagnostics, error_message, run_id,
			fulfillment_order_id, carrier, pages, duration_ms, processed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, content_hash) DO UPDATE SET
			filename = excluded.filename,
			status = excluded.status,
			order_number = excluded.order_number,
			order_pattern = excluded.order_pattern,
			tracking_number = excluded.tracking_number,
			tracking_source = excluded.tracking_source,
			missing = excluded.missing,
			diagnostics = excluded.diagnostics,
			error_message = excluded.error_message,
			run_id = excluded.run_id,
			fulfillment_order_id = excluded.fulfillment_order_id,
			carrier = excluded.carrier,
			pages = excluded.pages,
			duration_ms = excluded.duration_ms,
			processed_at = excluded.processed_at,
			updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query,
		doc.Path,
		doc.Filename,
		doc.ContentHash,
		doc.Status,
		doc.OrderNumber,
		doc.OrderPattern,
		doc.TrackingNumber,
		doc.TrackingSource,
		string(missingJSON),
		diagnostics,
		doc.ErrorMessage,
		doc.RunID,
		doc.FulfillmentOrderID,
		doc.Carrier,
		doc.Pages,
		doc.DurationMS,
		doc.ProcessedAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record document %s: %w", doc.Path, err)
	}

	return nil
}

// Get returns the latest entry for a path, or nil when there is none.
func (s *DocumentStore) Get(path string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE path = ? ORDER BY processed_at DESC, id DESC LIMIT 1`

	doc, err := scanDocument(s.db.QueryRow(query, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// Recent returns the most recently processed documents.
func (s *DocumentStore) Recent(limit int) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY processed_at DESC, id DESC LIMIT ?`
	return s.list(query, limit)
}

// Failures returns the most recent documents that did not yield both identifiers.
func (s *DocumentStore) Failures(limit int) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE status IN (?, ?)
		ORDER BY processed_at DESC, id DESC LIMIT ?`
	return s.list(query, StatusFailed, StatusError, limit)
}

// ByRun returns every document recorded by one batch run in path order.
func (s *DocumentStore) ByRun(runID string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE run_id = ? ORDER BY path`
	return s.list(query, runID)
}

func (s *DocumentStore) list(query string, args ...any) ([]Document, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var missingJSON, diagnostics string

	err := row.Scan(
		&doc.ID,
		&doc.Path,
		&doc.Filename,
		&doc.ContentHash,
		&doc.Status,
		&doc.OrderNumber,
		&doc.OrderPattern,
		&doc.TrackingNumber,
		&doc.TrackingSource,
		&missingJSON,
		&diagnostics,
		&doc.ErrorMessage,
		&doc.RunID,
		&doc.FulfillmentOrderID,
		&doc.Carrier,
		&doc.Pages,
		&doc.DurationMS,
		&doc.ProcessedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if missingJSON != "" {
		if err := json.Unmarshal([]byte(missingJSON), &doc.Missing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal missing identifiers: %w", err)
		}
	}
	if diagnostics != "" && diagnostics != "{}" {
		doc.Diagnostics = json.RawMessage(diagnostics)
	}

	return &doc, nil
}

// Stats returns counts by status and the last processing time.
func (s *DocumentStore) Stats() (*DocumentStats, error) {
	stats := &DocumentStats{ByStatus: make(map[string]int)}

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	stats.Fulfilled = stats.ByStatus[StatusFulfilled]
	stats.Extracted = stats.ByStatus[StatusExtracted]
	stats.Failed = stats.ByStatus[StatusFailed]
	stats.Skipped = stats.ByStatus[StatusSkipped]
	stats.Errors = stats.ByStatus[StatusError]

	// MAX() loses the column type, so read the newest row instead
	var last time.Time
	err = s.db.QueryRow("SELECT processed_at FROM documents ORDER BY processed_at DESC LIMIT 1").Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to get last processed time: %w", err)
	default:
		stats.LastProcessed = &last
	}

	return stats, nil
}

// Cleanup removes entries processed before olderThan and returns how many
// were removed.
func (s *DocumentStore) Cleanup(olderThan time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM documents WHERE processed_at < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old documents: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
