package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Kavirubc/gh-triage/internal/compose"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// legacyComposer drafts responses for upgraded rows, which never stored any
var legacyComposer = compose.New("")

var (
	// ErrNotCached is returned when an issue has no current analysis
	ErrNotCached = errors.New("no analysis stored")

	// ErrCacheConflict is returned when another writer stored the current
	// analysis first
	ErrCacheConflict = errors.New("analysis already stored")
)

// timeLayout is fixed width so that text order is time order. RFC3339Nano
// drops trailing zeros and does not sort.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

const schema = `
	CREATE TABLE IF NOT EXISTS triage_analyses (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		issue_number INTEGER NOT NULL,
		schema_version INTEGER NOT NULL,
		decision TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT '',
		rule_matched TEXT,
		total_cost REAL NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		superseded_at TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_triage_current
		ON triage_analyses(project_id, issue_number) WHERE superseded_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_triage_project_created
		ON triage_analyses(project_id, created_at DESC);
`

// SQLiteStore is the durable analysis store. At most one row per issue is
// current (superseded_at IS NULL); the partial unique index enforces it.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open analysis cache: %w", err)
	}
	// One connection keeps the pragmas below in force and serialises writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Current returns the current analysis of an issue
func (s *SQLiteStore) Current(ctx context.Context, project string, number int) (*models.TriageAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schema_version, payload FROM triage_analyses
		WHERE project_id = ? AND issue_number = ? AND superseded_at IS NULL`,
		project, number)

	var (
		id      string
		version int
		payload string
	)
	if err := row.Scan(&id, &version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}
	return decode(id, version, payload)
}

// Insert stores a as the current analysis. It fails with ErrCacheConflict
// when a current row already exists.
func (s *SQLiteStore) Insert(ctx context.Context, a *models.TriageAnalysis) error {
	if err := insert(ctx, s.db, a); err != nil {
		if isUniqueConstraintError(err) {
			return ErrCacheConflict
		}
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

// Replace marks the current row superseded and inserts a, in one transaction
func (s *SQLiteStore) Replace(ctx context.Context, a *models.TriageAnalysis) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE triage_analyses SET superseded_at = ?
		WHERE project_id = ? AND issue_number = ? AND superseded_at IS NULL`,
		formatTime(a.CreatedAt), a.ProjectID, a.IssueNumber); err != nil {
		return fmt.Errorf("failed to supersede analysis: %w", err)
	}

	if err := insert(ctx, tx, a); err != nil {
		if isUniqueConstraintError(err) {
			return ErrCacheConflict
		}
		return fmt.Errorf("failed to store analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	return nil
}

// History returns every stored version of an issue, newest first
func (s *SQLiteStore) History(ctx context.Context, project string, number int) ([]*models.TriageAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema_version, payload FROM triage_analyses
		WHERE project_id = ? AND issue_number = ?
		ORDER BY created_at DESC, rowid DESC`,
		project, number)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []*models.TriageAnalysis
	for rows.Next() {
		var (
			id      string
			version int
			payload string
		)
		if err := rows.Scan(&id, &version, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		a, err := decode(id, version, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary is the per-row projection used for statistics
type Summary struct {
	IssueNumber int
	Decision    models.Decision
	Priority    models.PriorityCategory
	RuleMatched bool
	TotalCost   float64
	CreatedAt   time.Time
}

// CurrentSummaries lists the current row of every analyzed issue of a project
func (s *SQLiteStore) CurrentSummaries(ctx context.Context, project string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_number, decision, priority, rule_matched, total_cost, created_at
		FROM triage_analyses
		WHERE project_id = ? AND superseded_at IS NULL`,
		project)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			rule      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&sum.IssueNumber, &sum.Decision, &sum.Priority, &rule, &sum.TotalCost, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		sum.RuleMatched = rule.Valid
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at of issue #%d: %w", sum.IssueNumber, err)
		}
		sum.CreatedAt = created
		out = append(out, sum)
	}
	return out, rows.Err()
}

// InsertLegacy stores a record in the pre-taxonomy shape
func (s *SQLiteStore) InsertLegacy(ctx context.Context, id string, old models.LegacyAnalysis) error {
	payload, err := json.Marshal(old)
	if err != nil {
		return fmt.Errorf("failed to encode legacy analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triage_analyses (id, project_id, issue_number, schema_version, decision, priority, payload, created_at)
		VALUES (?, ?, ?, 1, '', ?, ?, ?)`,
		id, old.ProjectID, old.IssueNumber, old.PrimaryCategory, string(payload),
		formatTime(old.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCacheConflict
		}
		return fmt.Errorf("failed to store legacy analysis: %w", err)
	}
	return nil
}

// MigrateLegacy rewrites every legacy row into the current shape and
// returns how many were upgraded
func (s *SQLiteStore) MigrateLegacy(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema_version, payload FROM triage_analyses WHERE schema_version < ?`,
		models.SchemaVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to list legacy analyses: %w", err)
	}

	var upgraded []*models.TriageAnalysis
	for rows.Next() {
		var (
			id      string
			version int
			payload string
		)
		if err := rows.Scan(&id, &version, &payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan legacy analysis: %w", err)
		}
		a, err := decode(id, version, payload)
		if err != nil {
			rows.Close()
			return 0, err
		}
		upgraded = append(upgraded, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range upgraded {
		payload, err := json.Marshal(a)
		if err != nil {
			return 0, fmt.Errorf("failed to encode analysis: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE triage_analyses
			SET schema_version = ?, decision = ?, priority = ?, total_cost = ?, payload = ?
			WHERE id = ?`,
			a.SchemaVersion, string(a.Decision), string(a.Priority), a.Cost.TotalCost, string(payload), a.ID); err != nil {
			return 0, fmt.Errorf("failed to migrate analysis %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit migration: %w", err)
	}
	return len(upgraded), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, a *models.TriageAnalysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	var rule sql.NullString
	if a.RuleMatched != nil {
		rule = sql.NullString{String: *a.RuleMatched, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO triage_analyses
			(id, project_id, issue_number, schema_version, decision, priority, rule_matched, total_cost, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.IssueNumber, a.SchemaVersion, string(a.Decision), string(a.Priority),
		rule, a.Cost.TotalCost, string(payload), formatTime(a.CreatedAt))
	return err
}

// decode reads a payload, upgrading legacy rows on the fly
func decode(id string, version int, payload string) (*models.TriageAnalysis, error) {
	if version < models.SchemaVersion {
		var old models.LegacyAnalysis
		if err := json.Unmarshal([]byte(payload), &old); err != nil {
			return nil, fmt.Errorf("failed to decode legacy analysis %s: %w", id, err)
		}
		a := models.MigrateLegacy(old)
		a.ID = id
		a.SuggestedResponses = legacyComposer.Compose(&a)
		return &a, nil
	}

	var a models.TriageAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to decode analysis %s: %w", id, err)
	}
	return &a, nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
