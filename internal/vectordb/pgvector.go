package vectordb

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// embeddingRow is one vector point in Postgres
type embeddingRow struct {
	SourceID    string          `gorm:"primaryKey"`
	SourceKind  string          `gorm:"not null"`
	ProjectID   string          `gorm:"not null"`
	Embedding   pgvector.Vector `gorm:"column:embedding"`
	TitleOrPath string
	Number      int
	State       string
	URL         string `gorm:"column:url"`
	Line        int
	Excerpt     string
}

// scoredRow is a query result row; the vector column is not selected
type scoredRow struct {
	Row        embeddingRow `gorm:"embedded"`
	Similarity float64
}

// PGVectorStore is a Store on Postgres with the pgvector extension
type PGVectorStore struct {
	db    *gorm.DB
	table string
}

// NewPGVectorStore opens a gorm connection for the given table
func NewPGVectorStore(dsn, table string) (*PGVectorStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PGVectorStore{db: db, table: table}, nil
}

// EnsureCollection creates the extension, table and indexes if missing
func (s *PGVectorStore) EnsureCollection(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			source_id TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			project_id TEXT NOT NULL,
			embedding vector(%d),
			title_or_path TEXT,
			number INTEGER,
			state TEXT,
			url TEXT,
			line INTEGER,
			excerpt TEXT
		)`, s.table, dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_pool_idx ON %s (project_id, source_kind)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}

	db := s.db.WithContext(ctx)
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to prepare vector table: %w", err)
		}
	}
	return nil
}

// Query returns the K nearest rows by cosine distance
func (s *PGVectorStore) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if req.K <= 0 {
		return nil, nil
	}

	var results []scoredRow

	queryVector := pgvector.NewVector(req.Vector)
	q := s.db.WithContext(ctx).
		Table(s.table).
		Select("source_id, source_kind, project_id, title_or_path, number, state, url, line, excerpt, 1 - (embedding <=> ?) as similarity", queryVector)
	if req.ProjectID != "" {
		q = q.Where("project_id = ?", req.ProjectID)
	}
	if req.SourceKind != "" {
		q = q.Where("source_kind = ?", string(req.SourceKind))
	}

	err := q.Order(gorm.Expr("embedding <=> ?", queryVector)).
		Limit(req.K).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{Record: rowToRecord(&r.Row), Score: r.Similarity}
	}
	return matches, nil
}

// Upsert inserts or replaces rows keyed by source id
func (s *PGVectorStore) Upsert(ctx context.Context, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]embeddingRow, len(records))
	for i := range records {
		rows[i] = recordToRow(&records[i])
	}

	err := s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("batch upsert failed: %w", err)
	}
	return nil
}

// Delete removes rows by source id
func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Table(s.table).Where("source_id IN ?", ids).Delete(&embeddingRow{}).Error
	if err != nil {
		return fmt.Errorf("batch delete failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (s *PGVectorStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordToRow(r *models.EmbeddingRecord) embeddingRow {
	return embeddingRow{
		SourceID:    r.SourceID,
		SourceKind:  string(r.SourceKind),
		ProjectID:   r.ProjectID,
		Embedding:   pgvector.NewVector(r.Vector),
		TitleOrPath: r.TitleOrPath,
		Number:      r.Number,
		State:       r.State,
		URL:         r.URL,
		Line:        r.Line,
		Excerpt:     r.Excerpt,
	}
}

func rowToRecord(row *embeddingRow) models.EmbeddingRecord {
	return models.EmbeddingRecord{
		SourceID:    row.SourceID,
		SourceKind:  models.SourceKind(row.SourceKind),
		ProjectID:   row.ProjectID,
		TitleOrPath: row.TitleOrPath,
		Number:      row.Number,
		State:       row.State,
		URL:         row.URL,
		Line:        row.Line,
		Excerpt:     row.Excerpt,
	}
}
