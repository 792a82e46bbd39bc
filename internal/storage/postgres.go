package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/liuyezhou/TrendRadar/internal/timeutil"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

//go:embed schema.sql
var schemaFS embed.FS

type pgRepo struct {
	db  *sqlx.DB
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Repository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	r := &pgRepo{db: db, log: log}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *pgRepo) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, string(b))
	return err
}

func (r *pgRepo) Close() error { return r.db.Close() }

// pgNewsItem mirrors a news_items row for sqlx scanning.
type pgNewsItem struct {
	ID         int64          `db:"id"`
	Title      string         `db:"title"`
	URL        sql.NullString `db:"url"`
	MobileURL  sql.NullString `db:"mobile_url"`
	SourceID   string         `db:"source_id"`
	SourceName sql.NullString `db:"source_name"`
	CrawlCount int            `db:"crawl_count"`
	Ranks      pq.Int64Array  `db:"rank"`
	BatchID    int64          `db:"batch_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (p pgNewsItem) toItem() NewsItem {
	return NewsItem{
		ID:         p.ID,
		Title:      p.Title,
		URL:        p.URL.String,
		MobileURL:  p.MobileURL.String,
		SourceID:   p.SourceID,
		SourceName: p.SourceName.String,
		Ranks:      []int64(p.Ranks),
		CrawlCount: p.CrawlCount,
		BatchID:    p.BatchID,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

const newsColumns = `id, title, url, mobile_url, source_id, source_name, crawl_count, rank, batch_id, created_at, updated_at`

func (r *pgRepo) SaveBatch(ctx context.Context, items []NewsItem) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var batchID int64
	if err := tx.GetContext(ctx, &batchID, `SELECT nextval('news_batch_seq')`); err != nil {
		return 0, err
	}

	// First appearance keeps the new batch id; a known title keeps its
	// original batch and only accumulates ranks and the crawl counter.
	// updated_at is advanced by the table trigger.
	const upsert = `
		INSERT INTO news_items (title, url, mobile_url, source_id, source_name, crawl_count, rank, batch_id)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
		ON CONFLICT (source_id, title) DO UPDATE SET
			crawl_count = news_items.crawl_count + 1,
			rank        = news_items.rank || EXCLUDED.rank,
			batch_id    = news_items.batch_id`

	for _, it := range items {
		_, err := tx.ExecContext(ctx, upsert,
			it.Title, nullable(it.URL), nullable(it.MobileURL),
			it.SourceID, nullable(it.SourceName),
			pq.Int64Array(it.Ranks), batchID)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.log.Debug("news batch saved", logx.Int64("batch_id", batchID), logx.Int("items", len(items)))
	return batchID, nil
}

func (r *pgRepo) FirstCrawlToday(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM news_items WHERE created_at >= CURRENT_DATE)`)
	return !exists, err
}

func (r *pgRepo) AllToday(ctx context.Context, sourceIDs []string) ([]NewsItem, error) {
	query := `SELECT ` + newsColumns + ` FROM news_items WHERE created_at >= CURRENT_DATE`
	args := []any{}
	if len(sourceIDs) > 0 {
		query += ` AND source_id = ANY($1)`
		args = append(args, pq.Array(sourceIDs))
	}
	query += ` ORDER BY created_at, source_id, title`

	var rows []pgNewsItem
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toItems(rows), nil
}

func (r *pgRepo) LatestNewTitles(ctx context.Context, sourceIDs []string) ([]NewsItem, error) {
	// batch_id never changes after first insert, so rows carrying the
	// day's highest batch id are exactly the titles first seen in the
	// most recent crawl.
	query := `SELECT ` + newsColumns + ` FROM news_items
		WHERE created_at >= CURRENT_DATE
		  AND batch_id = (SELECT COALESCE(MAX(batch_id), -1) FROM news_items WHERE created_at >= CURRENT_DATE)`
	args := []any{}
	if len(sourceIDs) > 0 {
		query += ` AND source_id = ANY($1)`
		args = append(args, pq.Array(sourceIDs))
	}
	query += ` ORDER BY source_id, title`

	var rows []pgNewsItem
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toItems(rows), nil
}

func (r *pgRepo) Search(ctx context.Context, q SearchQuery) ([]NewsItem, error) {
	today := timeutil.DateKey(timeutil.Now())
	from, to := q.From, q.To
	if from == "" {
		from = today
	}
	if to == "" {
		to = today
	}

	query := `SELECT ` + newsColumns + ` FROM news_items
		WHERE title ILIKE '%' || $1 || '%'
		  AND created_at >= $2::date
		  AND created_at < $3::date + 1`
	args := []any{q.Keyword, from, to}
	if len(q.SourceIDs) > 0 {
		query += ` AND source_id = ANY($4)`
		args = append(args, pq.Array(q.SourceIDs))
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(q.Limit)
	}

	var rows []pgNewsItem
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toItems(rows), nil
}

func (r *pgRepo) SaveDailySummary(ctx context.Context, s DailySummary) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `
		INSERT INTO daily_summaries (summary_date, model_name, summary_type, content, word_groups, news_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (summary_date, model_name, summary_type) DO UPDATE SET
			content     = EXCLUDED.content,
			word_groups = EXCLUDED.word_groups,
			news_count  = EXCLUDED.news_count
		RETURNING id`,
		s.SummaryDate, s.ModelName, s.SummaryType, s.Content,
		pq.StringArray(s.WordGroups), s.NewsCount)
	return id, err
}

type pgSummary struct {
	ID          int64          `db:"id"`
	SummaryDate time.Time      `db:"summary_date"`
	ModelName   string         `db:"model_name"`
	SummaryType string         `db:"summary_type"`
	Content     string         `db:"content"`
	WordGroups  pq.StringArray `db:"word_groups"`
	NewsCount   int            `db:"news_count"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (p pgSummary) toSummary() DailySummary {
	return DailySummary{
		ID:          p.ID,
		SummaryDate: p.SummaryDate.Format("2006-01-02"),
		ModelName:   p.ModelName,
		SummaryType: p.SummaryType,
		Content:     p.Content,
		WordGroups:  []string(p.WordGroups),
		NewsCount:   p.NewsCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

const summaryColumns = `id, summary_date, model_name, summary_type, content, word_groups, news_count, created_at, updated_at`

func (r *pgRepo) DailySummary(ctx context.Context, date, model, kind string) (*DailySummary, error) {
	var row pgSummary
	err := r.db.GetContext(ctx, &row, `
		SELECT `+summaryColumns+` FROM daily_summaries
		WHERE summary_date = $1 AND model_name = $2 AND summary_type = $3`,
		date, model, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s := row.toSummary()
	return &s, nil
}

func (r *pgRepo) RecentSummaries(ctx context.Context, days int, model, kind string) ([]DailySummary, error) {
	var rows []pgSummary
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+summaryColumns+` FROM daily_summaries
		WHERE summary_date >= CURRENT_DATE - $1::int
		  AND model_name = $2 AND summary_type = $3
		ORDER BY summary_date DESC`,
		days, model, kind)
	if err != nil {
		return nil, err
	}
	out := make([]DailySummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSummary())
	}
	return out, nil
}

func (r *pgRepo) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.db.GetContext(ctx, &st.NewsCount, `SELECT COUNT(*) FROM news_items`)
	if err != nil {
		return st, err
	}
	if err := r.db.GetContext(ctx, &st.TodayNewsCount,
		`SELECT COUNT(*) FROM news_items WHERE created_at >= CURRENT_DATE`); err != nil {
		return st, err
	}
	if err := r.db.GetContext(ctx, &st.SummaryCount, `SELECT COUNT(*) FROM daily_summaries`); err != nil {
		return st, err
	}

	var oldest, latest sql.NullTime
	row := r.db.QueryRowxContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM news_items`)
	if err := row.Scan(&oldest, &latest); err != nil {
		return st, err
	}
	if oldest.Valid {
		st.OldestRecord = &oldest.Time
	}
	if latest.Valid {
		st.LatestRecord = &latest.Time
	}

	if err := r.db.GetContext(ctx, &st.StorageBytes,
		`SELECT pg_total_relation_size('news_items') + pg_total_relation_size('daily_summaries')`); err != nil {
		return st, err
	}
	return st, nil
}

func toItems(rows []pgNewsItem) []NewsItem {
	out := make([]NewsItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toItem())
	}
	return out
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
