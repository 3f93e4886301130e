package vectordb

import (
	"context"
	"fmt"

	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/qdrant/go-client/qdrant"
)

// Query returns the K nearest records of one pool in one project.
// No score threshold is applied here.
func (s *QdrantStore) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if req.K <= 0 {
		return nil, nil
	}

	points, err := s.qdrant.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          qdrant.PtrOf(uint64(req.K)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         poolFilter(req.ProjectID, req.SourceKind),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, point := range points {
		record := payloadToRecord(point.Payload)
		if record.SourceID == "" && point.Id != nil {
			record.SourceID = point.Id.GetUuid()
		}
		matches = append(matches, Match{
			Record: record,
			Score:  float64(point.Score),
		})
	}

	return matches, nil
}

func poolFilter(projectID string, kind models.SourceKind) *qdrant.Filter {
	var must []*qdrant.Condition
	if projectID != "" {
		must = append(must, qdrant.NewMatchKeyword("project_id", projectID))
	}
	if kind != "" {
		must = append(must, qdrant.NewMatchKeyword("source_kind", string(kind)))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// payloadToRecord converts a Qdrant payload to an EmbeddingRecord
func payloadToRecord(payload map[string]*qdrant.Value) models.EmbeddingRecord {
	record := models.EmbeddingRecord{}

	if v := payload["source_id"]; v != nil {
		record.SourceID = v.GetStringValue()
	}
	if v := payload["source_kind"]; v != nil {
		record.SourceKind = models.SourceKind(v.GetStringValue())
	}
	if v := payload["project_id"]; v != nil {
		record.ProjectID = v.GetStringValue()
	}
	if v := payload["title_or_path"]; v != nil {
		record.TitleOrPath = v.GetStringValue()
	}
	if v := payload["number"]; v != nil {
		record.Number = int(v.GetIntegerValue())
	}
	if v := payload["state"]; v != nil {
		record.State = v.GetStringValue()
	}
	if v := payload["url"]; v != nil {
		record.URL = v.GetStringValue()
	}
	if v := payload["line"]; v != nil {
		record.Line = int(v.GetIntegerValue())
	}
	if v := payload["excerpt"]; v != nil {
		record.Excerpt = v.GetStringValue()
	}

	return record
}
