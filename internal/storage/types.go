package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

var ErrNotFound = errors.New("not found")

// Config selects and configures a storage driver.
//
// Driver values:
//   - "postgres": shared PostgreSQL database (DatabaseURL required)
//   - "text": date-keyed files under Dir, no external service
type Config struct {
	Driver      string
	DatabaseURL string
	Dir         string
}

// NewsItem is one trending title observed on a platform. A title seen
// in several crawls stays a single row; CrawlCount and Ranks accumulate.
type NewsItem struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	MobileURL  string `json:"mobile_url,omitempty"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
	// Ranks collects the position on each crawl, in crawl order.
	Ranks      []int64 `json:"ranks"`
	CrawlCount int     `json:"crawl_count"`
	// BatchID is the crawl batch the title first appeared in.
	BatchID   int64     `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MinRank returns the best (lowest) observed position, or 0 when no
// rank was recorded.
func (n NewsItem) MinRank() int64 {
	var best int64
	for _, r := range n.Ranks {
		if r > 0 && (best == 0 || r < best) {
			best = r
		}
	}
	return best
}

// Default summary identity written by the report pipeline.
const (
	DefaultModel     = "trendradar"
	SummaryTypeDaily = "daily"
)

// DailySummary is one generated digest for a day, keyed by
// (date, model, type) with last-write-wins upsert semantics.
type DailySummary struct {
	ID          int64  `json:"id"`
	SummaryDate string `json:"summary_date"` // YYYY-MM-DD
	ModelName   string `json:"model_name"`
	SummaryType string `json:"summary_type"`
	Content     string    `json:"content"`
	WordGroups  []string  `json:"word_groups,omitempty"`
	NewsCount   int       `json:"news_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SearchQuery selects news by case-insensitive title substring.
type SearchQuery struct {
	Keyword string
	// From/To bound the search by date key (YYYY-MM-DD), inclusive.
	// Both empty means today only.
	From, To string
	// SourceIDs restricts to the given platforms; empty means all.
	SourceIDs []string
	// Limit caps the result set; 0 means unlimited.
	Limit int
}

// Stats describes the dataset for the data service.
type Stats struct {
	NewsCount      int64      `json:"news_count"`
	TodayNewsCount int64      `json:"today_news_count"`
	SummaryCount   int64      `json:"summary_count"`
	OldestRecord   *time.Time `json:"oldest_record,omitempty"`
	LatestRecord   *time.Time `json:"latest_record,omitempty"`
	StorageBytes   int64      `json:"storage_bytes"`
}

// Repository is the persistence API shared by the pipeline and the
// data service.
type Repository interface {
	// SaveBatch upserts one crawl batch and returns its batch id.
	// First-seen titles keep the new batch id; known titles keep their
	// original one and only accumulate ranks, count and updated time.
	SaveBatch(ctx context.Context, items []NewsItem) (int64, error)
	// FirstCrawlToday reports whether no news was stored yet today.
	FirstCrawlToday(ctx context.Context) (bool, error)
	// AllToday returns today's rows, optionally filtered by source ids,
	// ordered by first-seen time, source, title.
	AllToday(ctx context.Context, sourceIDs []string) ([]NewsItem, error)
	// LatestNewTitles returns the titles that appeared for the first
	// time in the most recent batch of the day.
	LatestNewTitles(ctx context.Context, sourceIDs []string) ([]NewsItem, error)
	// Search returns items whose title contains the keyword, newest
	// first.
	Search(ctx context.Context, q SearchQuery) ([]NewsItem, error)

	SaveDailySummary(ctx context.Context, s DailySummary) (int64, error)
	DailySummary(ctx context.Context, date, model, kind string) (*DailySummary, error)
	RecentSummaries(ctx context.Context, days int, model, kind string) ([]DailySummary, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open initializes the configured repository.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Repository, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "postgres", "pg":
		return openPostgres(ctx, cfg, log)
	case "text", "file", "":
		return openText(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
