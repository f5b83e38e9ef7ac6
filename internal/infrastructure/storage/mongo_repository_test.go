package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const mockNamespace = "civicindex.civic_records"

func recordDoc(id, title string, created time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: title},
		{Key: "source_url", Value: "https://town.example.gov/" + id + ".pdf"},
		{Key: "source", Value: "Finance"},
		{Key: "category", Value: "Budget"},
		{Key: "summary", Value: "s"},
		{Key: "key_metrics", Value: bson.A{bson.D{{Key: "label", Value: "Total"}, {Key: "value", Value: "$1M"}}}},
		{Key: "notable_updates", Value: bson.A{"new school roof"}},
		{Key: "date_published", Value: "2024-03-05"},
		{Key: "created_at", Value: created},
	}
}

func TestMongoRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	mt.Run("insert", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		record := domain.NewRecord("a", "https://town.example.gov/a.pdf", domain.Extraction{Title: "A", Category: domain.CategoryBudget}, created)
		require.NoError(mt, repo.Insert(context.Background(), record))

		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		err := repo.Insert(context.Background(), record)
		assert.ErrorIs(mt, err, domain.ErrStoreWriteFailed)
	})

	mt.Run("exists", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNamespace, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))
		exists, err := repo.ExistsBySourceOrTitle(context.Background(), "https://town.example.gov/a.pdf", "A")
		require.NoError(mt, err)
		assert.True(mt, exists)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNamespace, mtest.FirstBatch))
		exists, err = repo.ExistsBySourceOrTitle(context.Background(), "https://town.example.gov/z.pdf", "Z")
		require.NoError(mt, err)
		assert.False(mt, exists)
	})

	mt.Run("get", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNamespace, mtest.FirstBatch, recordDoc("a", "A", created)))
		record, err := repo.Get(context.Background(), "a")
		require.NoError(mt, err)
		assert.Equal(mt, "A", record.Title)
		assert.Equal(mt, domain.CategoryBudget, record.Category)
		assert.Equal(mt, []string{"new school roof"}, record.NotableUpdates)
		assert.NotNil(mt, record.Visualizations)
		require.NotNil(mt, record.DatePublished)
		assert.Equal(mt, "2024-03-05", record.DatePublished.String())
		assert.True(mt, record.CreatedAt.Equal(created))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNamespace, mtest.FirstBatch))
		_, err = repo.Get(context.Background(), "missing")
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("list", func(mt *mtest.T) {
		repo := NewMongoRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNamespace, mtest.FirstBatch,
			recordDoc("b", "B", created.Add(time.Hour)),
			recordDoc("a", "A", created),
		))
		records, err := repo.List(context.Background(), ports.RecordFilter{Category: domain.CategoryBudget, Limit: 10})
		require.NoError(mt, err)
		require.Len(mt, records, 2)
		assert.Equal(mt, "b", records[0].ID)
		assert.Equal(mt, "Total", records[1].KeyMetrics[0].Label)
	})
}

func TestDedupFilter(t *testing.T) {
	t.Parallel()

	full := dedupFilter("https://town.example.gov/a.pdf", "A")
	assert.Len(t, full["$or"], 2)

	urlOnly := dedupFilter("https://town.example.gov/a.pdf", "")
	assert.Len(t, urlOnly["$or"], 1)
}
