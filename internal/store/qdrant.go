package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  uint64
}

// Qdrant is the vector store adapter, backed by Qdrant's gRPC API.
type Qdrant struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	dimension   uint64
	logger      *zap.Logger
}

var _ Adapter = (*Qdrant)(nil)
var _ Scroller = (*Qdrant)(nil)

// NewQdrant dials the Qdrant gRPC endpoint and returns a ready adapter.
func NewQdrant(cfg QdrantConfig, logger *zap.Logger) (*Qdrant, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		logger:      logger,
	}, nil
}

func (q *Qdrant) Name() string { return "vector" }

// EnsureCollection creates the collection if it does not already exist.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	_, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
	if err == nil {
		return nil
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     q.dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// Insert upserts a single point and returns its id.
func (q *Qdrant) Insert(ctx context.Context, content string, vector []float32, metadata map[string]string) (string, error) {
	id := metadata["id"]
	if id == "" {
		id = uuid.New().String()
	}
	payload := make(map[string]*pb.Value, len(metadata)+1)
	for k, v := range metadata {
		if k == "id" {
			continue
		}
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	payload["content"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: content}}

	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("qdrant upsert: %v: %w", err, ErrUnavailable)
	}
	return id, nil
}

// Search performs a nearest-neighbor search and returns the top hits,
// highest cosine similarity first.
func (q *Qdrant) Search(ctx context.Context, query Query) ([]Result, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query.Vector,
		Limit:          uint64(query.Limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %v: %w", err, ErrUnavailable)
	}
	results := make([]Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, Result{
			ID:       pointID(r.Id),
			Content:  stringPayload(r.Payload, "content"),
			Metadata: payloadMetadata(r.Payload),
			Score:    r.Score,
		})
	}
	return results, nil
}

// Scroll enumerates up to limit points, page by page, without vectors.
func (q *Qdrant) Scroll(ctx context.Context, limit int) ([]Result, error) {
	var results []Result
	var offset *pb.PointId
	for len(results) < limit {
		page := uint32(256)
		if remaining := limit - len(results); remaining < int(page) {
			page = uint32(remaining)
		}
		resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Limit:          &page,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %v: %w", err, ErrUnavailable)
		}
		for _, p := range resp.Result {
			results = append(results, Result{
				ID:       pointID(p.Id),
				Content:  stringPayload(p.Payload, "content"),
				Metadata: payloadMetadata(p.Payload),
			})
		}
		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			break
		}
		offset = resp.NextPageOffset
	}
	return results, nil
}

// Delete removes a single point by id.
func (q *Qdrant) Delete(ctx context.Context, id string) error {
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete %s: %v: %w", id, err, ErrUnavailable)
	}
	return nil
}

// DeleteAll drops and recreates the collection, returning the prior count.
func (q *Qdrant) DeleteAll(ctx context.Context) (int, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return 0, fmt.Errorf("qdrant drop collection: %v: %w", err, ErrUnavailable)
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return count, err
	}
	return count, nil
}

// Count returns the exact number of points in the collection.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %v: %w", err, ErrUnavailable)
	}
	return int(resp.Result.Count), nil
}

// Health reports whether the Qdrant service responds.
func (q *Qdrant) Health(ctx context.Context) bool {
	_, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	return err == nil
}

// Close tears down the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.conn.Close()
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func stringPayload(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func payloadMetadata(payload map[string]*pb.Value) map[string]string {
	md := make(map[string]string, len(payload))
	for k, v := range payload {
		if k == "content" {
			continue
		}
		if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
			md[k] = sv.StringValue
		}
	}
	return md
}
