package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"CivicIndex/internal/domain"
	"CivicIndex/internal/ports"
)

const recordsTable = "civic_records"

// Supported SQL dialects; the names double as database/sql driver names.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// SQLite keeps created_at as fixed-width text so it sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

var recordColumns = []string{
	"id", "title", "source_url", "source", "category", "summary",
	"key_metrics", "visualizations", "insights", "comparisons",
	"notable_updates", "plain_english_summary",
	"date_published", "document_excerpt", "created_at",
}

// SQLRepository persists civic records into Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect string
	builder sq.StatementBuilderType
}

var _ ports.RecordRepository = (*SQLRepository)(nil)

// OpenSQL opens a database handle for the dialect. SQLite in-memory
// databases are pinned to one connection so every query sees the same data.
func OpenSQL(dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewSQLRepository wires a sql.DB implementation for the given dialect.
func NewSQLRepository(db *sql.DB, dialect string) *SQLRepository {
	placeholder := sq.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &SQLRepository{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// EnsureSchema creates the records table and its lookup indexes.
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	jsonType, timeType := "TEXT", "TEXT"
	if r.dialect == DialectPostgres {
		jsonType, timeType = "JSONB", "TIMESTAMPTZ"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_url TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			key_metrics %[2]s NOT NULL,
			visualizations %[2]s NOT NULL,
			insights %[2]s NOT NULL,
			comparisons %[2]s NOT NULL,
			notable_updates %[2]s NOT NULL,
			plain_english_summary %[2]s NOT NULL,
			date_published TEXT,
			document_excerpt TEXT NOT NULL DEFAULT '',
			created_at %[3]s NOT NULL
		)`, recordsTable, jsonType, timeType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_source_url_idx ON %[1]s (source_url)`, recordsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_title_idx ON %[1]s (title)`, recordsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_created_at_idx ON %[1]s (created_at)`, recordsTable),
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Insert stores a new record.
func (r *SQLRepository) Insert(ctx context.Context, record domain.CivicRecord) error {
	values, err := r.recordValues(record)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreWriteFailed, err)
	}

	query, args, err := r.builder.Insert(recordsTable).Columns(recordColumns...).Values(values...).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build insert: %v", domain.ErrStoreWriteFailed, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert record: %v", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// ExistsBySourceOrTitle runs the single OR lookup behind deduplication.
func (r *SQLRepository) ExistsBySourceOrTitle(ctx context.Context, sourceURL, title string) (bool, error) {
	cond := sq.Or{sq.Eq{"source_url": sourceURL}}
	if title != "" {
		cond = append(cond, sq.Eq{"title": title})
	}

	query, args, err := r.builder.Select("1").From(recordsTable).Where(cond).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// List returns records newest first, optionally narrowed by category.
func (r *SQLRepository) List(ctx context.Context, filter ports.RecordFilter) ([]domain.CivicRecord, error) {
	qb := r.builder.Select(recordColumns...).From(recordsTable).OrderBy("created_at DESC", "id DESC")
	if filter.Category != "" {
		qb = qb.Where(sq.Eq{"category": string(filter.Category)})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records := make([]domain.CivicRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		records = append(records, record)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return records, nil
}

// Get loads one record by id.
func (r *SQLRepository) Get(ctx context.Context, id string) (domain.CivicRecord, error) {
	query, args, err := r.builder.Select(recordColumns...).From(recordsTable).Where(sq.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return domain.CivicRecord{}, fmt.Errorf("build get query: %w", err)
	}

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CivicRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CivicRecord{}, err
	}
	return record, nil
}

// Ping checks the database connection.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) recordValues(record domain.CivicRecord) ([]any, error) {
	jsonColumns := []any{
		record.KeyMetrics, record.Visualizations, record.Insights,
		record.Comparisons, record.NotableUpdates, record.PlainEnglishSummary,
	}
	encoded := make([]any, 0, len(jsonColumns))
	for _, v := range jsonColumns {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json column: %w", err)
		}
		encoded = append(encoded, string(raw))
	}

	var published any
	if record.DatePublished != nil {
		published = record.DatePublished.String()
	}

	var created any = record.CreatedAt.UTC()
	if r.dialect == DialectSQLite {
		created = record.CreatedAt.UTC().Format(sqliteTimeLayout)
	}

	values := []any{
		record.ID, record.Title, record.SourceURL, record.Source,
		string(record.Category), record.Summary,
	}
	values = append(values, encoded...)
	return append(values, published, record.DocumentExcerpt, created), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.CivicRecord, error) {
	var (
		record    domain.CivicRecord
		category  string
		metrics   []byte
		charts    []byte
		insights  []byte
		compares  []byte
		updates   []byte
		plain     []byte
		published sql.NullString
		created   timeValue
	)

	err := row.Scan(
		&record.ID, &record.Title, &record.SourceURL, &record.Source, &category, &record.Summary,
		&metrics, &charts, &insights, &compares, &updates, &plain,
		&published, &record.DocumentExcerpt, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CivicRecord{}, err
	}
	if err != nil {
		return domain.CivicRecord{}, fmt.Errorf("scan record: %w", err)
	}

	record.Category = domain.Category(category)
	record.CreatedAt = created.Time

	decoders := []struct {
		raw  []byte
		dest any
	}{
		{metrics, &record.KeyMetrics},
		{charts, &record.Visualizations},
		{insights, &record.Insights},
		{compares, &record.Comparisons},
		{updates, &record.NotableUpdates},
		{plain, &record.PlainEnglishSummary},
	}
	for _, d := range decoders {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dest); err != nil {
			return domain.CivicRecord{}, fmt.Errorf("decode record %s: %w", record.ID, err)
		}
	}

	if published.Valid && published.String != "" {
		if date, err := domain.ParseDate(published.String); err == nil {
			record.DatePublished = &date
		}
	}

	return domain.NewRecord(record.ID, record.SourceURL, extractionOf(record), record.CreatedAt), nil
}

// extractionOf lets scanRecord reuse NewRecord's empty-list normalisation.
func extractionOf(r domain.CivicRecord) domain.Extraction {
	return domain.Extraction{
		Title:               r.Title,
		Source:              r.Source,
		Category:            r.Category,
		Summary:             r.Summary,
		KeyMetrics:          r.KeyMetrics,
		Visualizations:      r.Visualizations,
		Insights:            r.Insights,
		Comparisons:         r.Comparisons,
		NotableUpdates:      r.NotableUpdates,
		PlainEnglishSummary: r.PlainEnglishSummary,
		DatePublished:       r.DatePublished,
		DocumentExcerpt:     r.DocumentExcerpt,
	}
}

// timeValue scans timestamps stored natively, as text or as unix seconds.
type timeValue struct {
	Time time.Time
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (t *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *timeValue) parse(value string) error {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}
	return fmt.Errorf("unrecognised timestamp %q", value)
}
