package vectordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/qdrant/go-client/qdrant"
)

// QueryRequest is a top-k nearest neighbour query scoped to one pool
type QueryRequest struct {
	Vector     []float32
	K          int
	ProjectID  string
	SourceKind models.SourceKind
}

// Match is a stored record and its similarity to the query vector
type Match struct {
	Record models.EmbeddingRecord
	Score  float64
}

// Store is the vector similarity store consumed by the evidence gatherer
type Store interface {
	EnsureCollection(ctx context.Context, dims int) error
	Query(ctx context.Context, req QueryRequest) ([]Match, error)
	Upsert(ctx context.Context, records []models.EmbeddingRecord) error
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// NewStore creates the configured backend
func NewStore(cfg *config.VectorStoreConfig, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "qdrant":
		return NewQdrantStore(&cfg.Qdrant, cfg.Collection, log)
	case "pgvector":
		return NewPGVectorStore(cfg.Postgres.DSN, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.Backend)
	}
}

// QdrantStore keeps every pool of every project in one collection,
// separated by payload filters
type QdrantStore struct {
	qdrant     *qdrant.Client
	collection string
	log        logger.Logger
}

// NewQdrantStore creates a new Qdrant-backed store
func NewQdrantStore(cfg *config.QdrantConfig, collection string, log logger.Logger) (*QdrantStore, error) {
	if log == nil {
		log = logger.NewNop()
	}

	host, port := parseHostPort(cfg.URL)

	// Qdrant Cloud requires TLS
	useTLS := strings.Contains(host, "qdrant.io") || strings.Contains(host, "qdrant.cloud")

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	return &QdrantStore{qdrant: client, collection: collection, log: log}, nil
}

// parseHostPort extracts host and gRPC port from a URL string
func parseHostPort(url string) (string, int) {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimSuffix(url, "/")

	if idx := strings.LastIndex(url, ":"); idx != -1 {
		host := url[:idx]
		var port int
		_, _ = fmt.Sscanf(url[idx+1:], "%d", &port)
		if port == 0 {
			port = 6334
		}
		return host, port
	}

	return url, 6334
}

// Close closes the connection
func (s *QdrantStore) Close() error {
	if s.qdrant != nil {
		return s.qdrant.Close()
	}
	return nil
}
