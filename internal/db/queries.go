package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/j-veylop/complyscan/internal/logger"
	"github.com/j-veylop/complyscan/internal/models"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertProject records a project by path, updating its name if it exists.
func (db *DB) UpsertProject(ctx context.Context, name, path string) (*models.Project, error) {
	if name == "" {
		name = filepath.Base(path)
	}

	query := `
		INSERT INTO projects (name, path, created_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET name = excluded.name
	`
	if _, err := db.ExecContext(ctx, query, name, path, formatTime(time.Now())); err != nil {
		return nil, fmt.Errorf("failed to upsert project: %w", err)
	}

	var p models.Project
	err := db.QueryRowContext(ctx,
		"SELECT id, name, path, created_at FROM projects WHERE path = ?", path,
	).Scan(&p.ID, &p.Name, &p.Path, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &p, nil
}

// CreateScan inserts a scan row in its starting state.
func (db *DB) CreateScan(ctx context.Context, scan models.Scan) error {
	if err := upsertScan(ctx, db, scan); err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

// FinishScan writes the terminal state of a scan.
func (db *DB) FinishScan(ctx context.Context, scan models.Scan) error {
	if err := upsertScan(ctx, db, scan); err != nil {
		return fmt.Errorf("failed to finish scan: %w", err)
	}
	return nil
}

func upsertScan(ctx context.Context, ex execer, scan models.Scan) error {
	query := `
		INSERT INTO scans (
			id, project_id, project_path, mode, status, abort_reason, error,
			cost_limit, files_total, files_scanned, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			abort_reason = excluded.abort_reason,
			error = excluded.error,
			files_total = excluded.files_total,
			files_scanned = excluded.files_scanned,
			finished_at = excluded.finished_at
	`

	startedAt := scan.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, query,
		scan.ID,
		nullInt64(scan.ProjectID),
		scan.ProjectPath,
		string(scan.Mode),
		string(scan.Status),
		string(scan.AbortReason),
		nullString(scan.Error),
		scan.CostLimit,
		scan.FilesTotal,
		scan.FilesScanned,
		formatTime(startedAt),
		nullTime(scan.FinishedAt),
	)
	return err
}

// UpsertScanCost records the running spend of a scan.
func (db *DB) UpsertScanCost(ctx context.Context, rec models.ScanCostRecord) error {
	if err := upsertScanCost(ctx, db, rec); err != nil {
		return fmt.Errorf("failed to upsert scan cost: %w", err)
	}
	return nil
}

func upsertScanCost(ctx context.Context, ex execer, rec models.ScanCostRecord) error {
	query := `
		INSERT INTO scan_costs (
			scan_id, files_analyzed, input_tokens, output_tokens,
			cache_read_tokens, cache_write_tokens, total_cost, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET
			files_analyzed = excluded.files_analyzed,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_read_tokens = excluded.cache_read_tokens,
			cache_write_tokens = excluded.cache_write_tokens,
			total_cost = excluded.total_cost,
			updated_at = excluded.updated_at
	`

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, query,
		rec.ScanID,
		rec.FilesAnalyzed,
		rec.Usage.InputTokens,
		rec.Usage.OutputTokens,
		rec.Usage.CacheReadTokens,
		rec.Usage.CacheWriteTokens,
		rec.TotalCost,
		formatTime(updatedAt),
	)
	return err
}

// SaveScanResults replaces the violations of a scan, stores its final cost
// and writes its terminal state, all in one transaction.
func (db *DB) SaveScanResults(ctx context.Context, scan models.Scan, violations []models.Violation, cost models.ScanCostRecord) error {
	for i := range violations {
		if err := violations[i].Validate(); err != nil {
			return fmt.Errorf("invalid violation %s:%d: %w", violations[i].FilePath, violations[i].Line, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Error("failed to roll back scan results", "scan_id", scan.ID, "error", err)
		}
	}()

	if err := upsertScan(ctx, tx, scan); err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM violations WHERE scan_id = ?", scan.ID); err != nil {
		return fmt.Errorf("failed to clear violations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO violations (
			scan_id, control_id, severity, description, file_path, line,
			code_snippet, detection_method, confidence, llm_reasoning,
			regex_reasoning, status, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare violation insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range violations {
		v := &violations[i]
		status := v.Status
		if status == "" {
			status = models.StatusPending
		}
		detectedAt := v.DetectedAt
		if detectedAt.IsZero() {
			detectedAt = time.Now()
		}

		result, err := stmt.ExecContext(ctx,
			scan.ID,
			v.ControlID,
			v.Severity.String(),
			v.Description,
			v.FilePath,
			v.Line,
			v.CodeSnippet,
			string(v.Method),
			nullInt(v.Confidence),
			nullString(v.LLMReasoning),
			nullString(v.RegexReasoning),
			string(status),
			formatTime(detectedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert violation: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			v.ID = id
		}
	}

	cost.ScanID = scan.ID
	if err := upsertScanCost(ctx, tx, cost); err != nil {
		return fmt.Errorf("failed to save scan cost: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan results: %w", err)
	}
	return nil
}

const scanColumns = `
	id, COALESCE(project_id, 0), project_path, mode, status, abort_reason, error,
	cost_limit, files_total, files_scanned, started_at, finished_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*models.Scan, error) {
	var s models.Scan
	var mode, status, reason string
	var errStr sql.NullString
	var finished sql.NullTime

	err := row.Scan(
		&s.ID,
		&s.ProjectID,
		&s.ProjectPath,
		&mode,
		&status,
		&reason,
		&errStr,
		&s.CostLimit,
		&s.FilesTotal,
		&s.FilesScanned,
		&s.StartedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}

	s.Mode = models.ScanMode(mode)
	s.Status = models.ScanStatus(status)
	s.AbortReason = models.AbortReason(reason)
	s.Error = errStr.String
	if finished.Valid {
		s.FinishedAt = finished.Time
	}
	return &s, nil
}

// GetScan returns a scan by id.
func (db *DB) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	row := db.QueryRowContext(ctx, "SELECT "+scanColumns+" FROM scans WHERE id = ?", id)
	s, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return s, nil
}

// ListScans returns the most recent scans, newest first.
func (db *DB) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+scanColumns+" FROM scans ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var scans []models.Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scans = append(scans, *s)
	}
	return scans, rows.Err()
}

// GetScanCost returns the recorded spend of a scan.
func (db *DB) GetScanCost(ctx context.Context, scanID string) (*models.ScanCostRecord, error) {
	query := `
		SELECT scan_id, files_analyzed, input_tokens, output_tokens,
			   cache_read_tokens, cache_write_tokens, total_cost, updated_at
		FROM scan_costs
		WHERE scan_id = ?
	`

	var rec models.ScanCostRecord
	err := db.QueryRowContext(ctx, query, scanID).Scan(
		&rec.ScanID,
		&rec.FilesAnalyzed,
		&rec.Usage.InputTokens,
		&rec.Usage.OutputTokens,
		&rec.Usage.CacheReadTokens,
		&rec.Usage.CacheWriteTokens,
		&rec.TotalCost,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cost for scan %s: %w", scanID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan cost: %w", err)
	}
	return &rec, nil
}

// GetViolations returns the violations of a scan in insertion order.
func (db *DB) GetViolations(ctx context.Context, scanID string) ([]models.Violation, error) {
	query := `
		SELECT id, scan_id, control_id, severity, description, file_path, line,
			   code_snippet, detection_method, confidence, llm_reasoning,
			   regex_reasoning, status, detected_at
		FROM violations
		WHERE scan_id = ?
		ORDER BY id
	`

	rows, err := db.QueryContext(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var out []models.Violation
	for rows.Next() {
		var v models.Violation
		var severity, method, status string
		var confidence sql.NullInt64
		var llmReason, regexReason sql.NullString

		err := rows.Scan(
			&v.ID,
			&v.ScanID,
			&v.ControlID,
			&severity,
			&v.Description,
			&v.FilePath,
			&v.Line,
			&v.CodeSnippet,
			&method,
			&confidence,
			&llmReason,
			&regexReason,
			&status,
			&v.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}

		if v.Severity, err = models.ParseSeverity(severity); err != nil {
			return nil, fmt.Errorf("violation %d: %w", v.ID, err)
		}
		v.Method = models.DetectionMethod(method)
		v.Status = models.ViolationStatus(status)
		v.LLMReasoning = llmReason.String
		v.RegexReasoning = regexReason.String
		if confidence.Valid {
			c := int(confidence.Int64)
			v.Confidence = &c
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateViolationStatus moves a pending violation to dismissed or fixed.
func (db *DB) UpdateViolationStatus(ctx context.Context, id int64, status models.ViolationStatus) error {
	if status != models.StatusDismissed && status != models.StatusFixed {
		return fmt.Errorf("invalid violation status transition to %q", status)
	}

	result, err := db.ExecContext(ctx,
		"UPDATE violations SET status = ? WHERE id = ? AND status = ?",
		string(status), id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update violation status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update violation status: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = db.QueryRowContext(ctx, "SELECT status FROM violations WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("violation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load violation: %w", err)
	}
	return fmt.Errorf("violation %d is %s, not pending", id, current)
}

// DeleteScan removes a scan together with its violations and cost.
func (db *DB) DeleteScan(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM scans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	return nil
}

// ViolationCounts returns the number of violations per severity for a scan.
func (db *DB) ViolationCounts(ctx context.Context, scanID string) (map[models.Severity]int, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM violations WHERE scan_id = ? GROUP BY severity", scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.Severity]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan violation count: %w", err)
		}
		sev, err := models.ParseSeverity(name)
		if err != nil {
			return nil, err
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
