// Package testutil holds in-memory stand-ins for the external collaborators
// shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/internal/vectordb"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// ErrUnavailable simulates an unreachable backend
var ErrUnavailable = errors.New("connection refused")

// Embedder returns a fixed vector for every text
type Embedder struct {
	Vector []float32
	Err    error
	calls  int32
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Vector == nil {
		return []float32{1, 0, 0}, nil
	}
	return e.Vector, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) ModelID() string { return "fake/embedder@3" }
func (e *Embedder) Close() error    { return nil }

// Calls returns how many texts were embedded
func (e *Embedder) Calls() int { return int(atomic.LoadInt32(&e.calls)) }

// Store is an in-memory vector store whose query results are scripted per pool
type Store struct {
	mu       sync.Mutex
	Results  map[models.SourceKind][]vectordb.Match
	Err      error
	Delay    time.Duration
	Upserted []models.EmbeddingRecord
	Queries  []vectordb.QueryRequest
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{Results: make(map[models.SourceKind][]vectordb.Match)}
}

// Add scripts a hit for a pool
func (s *Store) Add(record models.EmbeddingRecord, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results[record.SourceKind] = append(s.Results[record.SourceKind], vectordb.Match{Record: record, Score: score})
}

func (s *Store) EnsureCollection(ctx context.Context, dims int) error { return s.Err }

func (s *Store) Query(ctx context.Context, req vectordb.QueryRequest) ([]vectordb.Match, error) {
	s.mu.Lock()
	s.Queries = append(s.Queries, req)
	delay, err := s.Delay, s.Err
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vectordb.Match
	for _, m := range s.Results[req.SourceKind] {
		if req.ProjectID != "" && m.Record.ProjectID != req.ProjectID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > req.K {
		out = out[:req.K]
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, records []models.EmbeddingRecord) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Upserted = append(s.Upserted, records...)
	return nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error { return s.Err }
func (s *Store) Close() error                                   { return nil }

// LLM replies with a fixed text and counts calls
type LLM struct {
	Text  string
	Usage *llm.Usage
	Err   error
	Delay time.Duration
	calls int32
}

func (l *LLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Delay):
		}
	}
	if l.Err != nil {
		return nil, l.Err
	}
	return &llm.Response{Text: l.Text, Model: "fake-model", Usage: l.Usage}, nil
}

func (l *LLM) Name() string { return "fake" }
func (l *LLM) Close() error { return nil }

// Calls returns how many completions were requested
func (l *LLM) Calls() int { return int(atomic.LoadInt32(&l.calls)) }
