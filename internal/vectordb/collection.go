package vectordb

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// EnsureCollection creates the collection and its filter indexes if missing
func (s *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := s.qdrant.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if exists {
		return nil
	}

	err = s.qdrant.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct {
		field     string
		fieldType qdrant.FieldType
	}{
		{"project_id", qdrant.FieldType_FieldTypeKeyword},
		{"source_kind", qdrant.FieldType_FieldTypeKeyword},
		{"state", qdrant.FieldType_FieldTypeKeyword},
		{"number", qdrant.FieldType_FieldTypeInteger},
	}

	for _, idx := range indexes {
		_, err = s.qdrant.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      idx.field,
			FieldType:      qdrant.PtrOf(idx.fieldType),
		})
		if err != nil {
			// Unindexed filters still work, just slower
			s.log.Warn("vectordb", "Failed to create payload index", map[string]interface{}{
				"collection": s.collection,
				"field":      idx.field,
				"error":      err.Error(),
			})
		}
	}

	return nil
}
