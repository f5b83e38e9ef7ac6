package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const recordsCollection = "civic_records"

// MongoRepository persists civic records into a MongoDB collection.
type MongoRepository struct {
	records *mongo.Collection
}

var _ ports.RecordRepository = (*MongoRepository)(nil)

type recordDocument struct {
	ID                  string                 `bson:"_id"`
	Title               string                 `bson:"title"`
	SourceURL           string                 `bson:"source_url"`
	Source              string                 `bson:"source"`
	Category            string                 `bson:"category"`
	Summary             string                 `bson:"summary"`
	KeyMetrics          []domain.KeyMetric     `bson:"key_metrics"`
	Visualizations      []domain.Visualization `bson:"visualizations"`
	Insights            []domain.Insight       `bson:"insights"`
	Comparisons         []domain.Comparison    `bson:"comparisons"`
	NotableUpdates      []string               `bson:"notable_updates"`
	PlainEnglishSummary []string               `bson:"plain_english_summary"`
	DatePublished       string                 `bson:"date_published,omitempty"`
	DocumentExcerpt     string                 `bson:"document_excerpt,omitempty"`
	CreatedAt           time.Time              `bson:"created_at"`
}

// ConnectMongo dials MongoDB and returns the records collection of database.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Collection, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client.Database(database).Collection(recordsCollection), nil
}

// NewMongoRepository wraps an existing collection.
func NewMongoRepository(records *mongo.Collection) *MongoRepository {
	return &MongoRepository{records: records}
}

// EnsureIndexes creates the lookup indexes used by dedup and listing.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_url", Value: 1}}},
		{Keys: bson.D{{Key: "title", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Insert stores a new record.
func (r *MongoRepository) Insert(ctx context.Context, record domain.CivicRecord) error {
	if _, err := r.records.InsertOne(ctx, toDocument(record)); err != nil {
		return fmt.Errorf("%w: insert record: %v", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// ExistsBySourceOrTitle counts at most one document matching url or title.
func (r *MongoRepository) ExistsBySourceOrTitle(ctx context.Context, sourceURL, title string) (bool, error) {
	count, err := r.records.CountDocuments(ctx, dedupFilter(sourceURL, title), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count records: %w", err)
	}
	return count > 0, nil
}

// List returns records newest first, optionally narrowed by category.
func (r *MongoRepository) List(ctx context.Context, filter ports.RecordFilter) ([]domain.CivicRecord, error) {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = string(filter.Category)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.records.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]domain.CivicRecord, 0)
	for cursor.Next(ctx) {
		var doc recordDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, fromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return records, nil
}

// Get loads one record by id.
func (r *MongoRepository) Get(ctx context.Context, id string) (domain.CivicRecord, error) {
	var doc recordDocument
	err := r.records.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CivicRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CivicRecord{}, fmt.Errorf("find record: %w", err)
	}
	return fromDocument(doc), nil
}

// Ping checks the server behind the collection.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.records.Database().Client().Ping(ctx, nil)
}

func dedupFilter(sourceURL, title string) bson.M {
	clauses := bson.A{bson.M{"source_url": sourceURL}}
	if title != "" {
		clauses = append(clauses, bson.M{"title": title})
	}
	return bson.M{"$or": clauses}
}

func toDocument(record domain.CivicRecord) recordDocument {
	doc := recordDocument{
		ID:                  record.ID,
		Title:               record.Title,
		SourceURL:           record.SourceURL,
		Source:              record.Source,
		Category:            string(record.Category),
		Summary:             record.Summary,
		KeyMetrics:          record.KeyMetrics,
		Visualizations:      record.Visualizations,
		Insights:            record.Insights,
		Comparisons:         record.Comparisons,
		NotableUpdates:      record.NotableUpdates,
		PlainEnglishSummary: record.PlainEnglishSummary,
		DocumentExcerpt:     record.DocumentExcerpt,
		CreatedAt:           record.CreatedAt.UTC(),
	}
	if record.DatePublished != nil {
		doc.DatePublished = record.DatePublished.String()
	}
	return doc
}

func fromDocument(doc recordDocument) domain.CivicRecord {
	ex := domain.Extraction{
		Title:               doc.Title,
		Source:              doc.Source,
		Category:            domain.Category(doc.Category),
		Summary:             doc.Summary,
		KeyMetrics:          doc.KeyMetrics,
		Visualizations:      doc.Visualizations,
		Insights:            doc.Insights,
		Comparisons:         doc.Comparisons,
		NotableUpdates:      doc.NotableUpdates,
		PlainEnglishSummary: doc.PlainEnglishSummary,
		DocumentExcerpt:     doc.DocumentExcerpt,
	}
	if doc.DatePublished != "" {
		if date, err := domain.ParseDate(doc.DatePublished); err == nil {
			ex.DatePublished = &date
		}
	}
	return domain.NewRecord(doc.ID, doc.SourceURL, ex, doc.CreatedAt)
}
