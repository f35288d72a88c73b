package databases

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/document"
)

// QdrantStore implements VectorStore over the qdrant gRPC client.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore connects to qdrant with the given config.
func NewQdrantStore(cfg *config.VectorStoreConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.EnableTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

// Query executes the hybrid query: dense and sparse prefetch stages
// against the collection's named vectors, fused by RRF inside the
// store. The sparse stage is omitted when the sparse vector is empty.
func (s *QdrantStore) Query(ctx context.Context, collection string, q *HybridQuery) ([]document.ScoredPoint, error) {
	filter := buildFilter(q.Filter)
	prefetchLimit := uint64(q.PrefetchLimit)

	prefetch := []*qdrant.PrefetchQuery{
		{
			Query:  qdrant.NewQueryDense(q.Dense),
			Using:  qdrant.PtrOf(q.DenseVectorName),
			Limit:  qdrant.PtrOf(prefetchLimit),
			Filter: filter,
		},
	}

	if !q.Sparse.IsEmpty() {
		indices := make([]uint32, len(q.Sparse.Indices))
		values := make([]float32, len(q.Sparse.Values))
		for i, idx := range q.Sparse.Indices {
			indices[i] = uint32(idx)
		}
		for i, count := range q.Sparse.Values {
			values[i] = float32(count)
		}
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query:  qdrant.NewQuerySparse(indices, values),
			Using:  qdrant.PtrOf(q.SparseVectorName),
			Limit:  qdrant.PtrOf(prefetchLimit),
			Filter: filter,
		})
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:          qdrant.PtrOf(uint64(q.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query on %q failed: %w", collection, err)
	}

	return convertScoredPoints(points), nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func buildFilter(filter map[string]string) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for field, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(field, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func convertScoredPoints(points []*qdrant.ScoredPoint) []document.ScoredPoint {
	results := make([]document.ScoredPoint, 0, len(points))
	for _, point := range points {
		id := ""
		if point.Id != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				// Numeric ids are folded into the UUID keyspace so the
				// merge and dedup layers key uniformly.
				id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.FormatUint(idType.Num, 10))).String()
			}
		}

		results = append(results, document.ScoredPoint{
			ID:      id,
			Score:   point.Score,
			Payload: convertPayload(point.Payload),
		})
	}
	return results
}

func convertPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	metadata := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		metadata[key] = convertValue(value)
	}
	return metadata
}

func convertValue(value *qdrant.Value) interface{} {
	if value == nil {
		return nil
	}
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]interface{}, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	default:
		return value
	}
}
