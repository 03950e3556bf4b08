package vector

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

const (
	fieldNewsID      = "news_id"
	fieldStockCode   = "stock_code"
	fieldPublishedTS = "published_timestamp"
	fieldEmbedding   = "embedding"
)

// MilvusStore keeps the news_embeddings collection in Milvus.
type MilvusStore struct {
	client     client.Client
	collection string
	dimensions int
	logger     *zap.Logger
}

func NewMilvusStore(ctx context.Context, address, collection string, dimensions int, logger *zap.Logger) (*MilvusStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("vector: connect milvus: %w", err)
	}
	s := &MilvusStore{
		client:     c,
		collection: collection,
		dimensions: dimensions,
		logger:     logger,
	}
	return s, nil
}

func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vector: check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(s.collection).
			WithField(entity.NewField().
				WithName(fieldNewsID).
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName(fieldStockCode).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(12)).
			WithField(entity.NewField().
				WithName(fieldPublishedTS).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().
				WithName(fieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(s.dimensions)))
		if err := s.client.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("vector: create collection: %w", err)
		}
		idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return fmt.Errorf("vector: build index spec: %w", err)
		}
		if err := s.client.CreateIndex(ctx, s.collection, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("vector: create index: %w", err)
		}
		s.logger.Info("created embedding collection",
			zap.String("collection", s.collection), zap.Int("dimensions", s.dimensions))
	}
	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("vector: load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) Insert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(docs))
	codes := make([]string, 0, len(docs))
	published := make([]int64, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) != s.dimensions {
			return fmt.Errorf("vector: document %d has %d dims, want %d", d.NewsID, len(d.Vector), s.dimensions)
		}
		ids = append(ids, int64(d.NewsID))
		codes = append(codes, d.StockCode)
		published = append(published, d.PublishedAt)
		vectors = append(vectors, d.Vector)
	}
	_, err := s.client.Upsert(ctx, s.collection, "",
		entity.NewColumnInt64(fieldNewsID, ids),
		entity.NewColumnVarChar(fieldStockCode, codes),
		entity.NewColumnInt64(fieldPublishedTS, published),
		entity.NewColumnFloatVector(fieldEmbedding, s.dimensions, vectors),
	)
	if err != nil {
		return fmt.Errorf("vector: upsert: %w", err)
	}
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, minSimilarity float64, stockCode string) ([]Match, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("vector: query has %d dims, want %d", len(vector), s.dimensions)
	}
	if topK <= 0 {
		topK = 5
	}
	expr := ""
	if stockCode != "" {
		expr = fmt.Sprintf(`%s == "%s"`, fieldStockCode, stockCode)
	}
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("vector: search param: %w", err)
	}
	// Over-fetch so the threshold pass still fills topK.
	results, err := s.client.Search(ctx, s.collection, nil, expr,
		[]string{fieldNewsID, fieldStockCode},
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.L2, topK*2, sp)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}

	var raw []Match
	for _, rs := range results {
		idCol, _ := rs.Fields.GetColumn(fieldNewsID).(*entity.ColumnInt64)
		codeCol, _ := rs.Fields.GetColumn(fieldStockCode).(*entity.ColumnVarChar)
		for i := 0; i < rs.ResultCount; i++ {
			m := Match{Similarity: SimilarityFromL2(float64(rs.Scores[i]))}
			if idCol != nil && i < len(idCol.Data()) {
				m.NewsID = uint64(idCol.Data()[i])
			}
			if codeCol != nil && i < len(codeCol.Data()) {
				m.StockCode = codeCol.Data()[i]
			}
			raw = append(raw, m)
		}
	}
	return filterMatches(raw, topK, minSimilarity), nil
}

func (s *MilvusStore) HasNews(ctx context.Context, newsID uint64) (bool, error) {
	expr := fmt.Sprintf("%s == %d", fieldNewsID, newsID)
	rs, err := s.client.Query(ctx, s.collection, nil, expr, []string{fieldNewsID})
	if err != nil {
		return false, fmt.Errorf("vector: query: %w", err)
	}
	for _, col := range rs {
		if col.Name() == fieldNewsID && col.Len() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("vector: statistics: %w", err)
	}
	var n int64
	fmt.Sscanf(stats["row_count"], "%d", &n)
	return n, nil
}

func (s *MilvusStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
