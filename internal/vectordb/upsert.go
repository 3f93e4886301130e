package vectordb

import (
	"context"
	"fmt"

	"github.com/Kavirubc/gh-triage/pkg/models"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Upsert inserts or updates records
func (s *QdrantStore) Upsert(ctx context.Context, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i := range records {
		points[i] = recordToPoint(&records[i])
	}

	_, err := s.qdrant.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("batch upsert failed: %w", err)
	}
	return nil
}

// Delete removes records by source id
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIds := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIds[i] = qdrant.NewIDUUID(PointID(id))
	}

	_, err := s.qdrant.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: pointIds,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("batch delete failed: %w", err)
	}
	return nil
}

// PointID maps a source id to the UUID Qdrant requires. Ids that already
// are UUIDs are kept as-is.
func PointID(sourceID string) string {
	if _, err := uuid.Parse(sourceID); err == nil {
		return sourceID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID)).String()
}

// recordToPoint converts a record to a Qdrant point
func recordToPoint(record *models.EmbeddingRecord) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(record.SourceID)),
		Vectors: qdrant.NewVectors(record.Vector...),
		Payload: map[string]*qdrant.Value{
			"source_id":     qdrant.NewValueString(record.SourceID),
			"source_kind":   qdrant.NewValueString(string(record.SourceKind)),
			"project_id":    qdrant.NewValueString(record.ProjectID),
			"title_or_path": qdrant.NewValueString(record.TitleOrPath),
			"number":        qdrant.NewValueInt(int64(record.Number)),
			"state":         qdrant.NewValueString(record.State),
			"url":           qdrant.NewValueString(record.URL),
			"line":          qdrant.NewValueInt(int64(record.Line)),
			"excerpt":       qdrant.NewValueString(record.Excerpt),
		},
	}
}
