package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/liuyezhou/TrendRadar/internal/timeutil"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

// textRepo is the dependency-free persistence backend.
//
// Layout under Dir:
//
//	seq                          (monotonic id counter)
//	<YYYY-MM-DD>/batch-<id>.jsonl (one crawl batch, JSON Lines)
//	<YYYY-MM-DD>/summary-<model>-<type>.json
//
// Batch files are raw observations; the upsert semantics the postgres
// driver gets from ON CONFLICT are reproduced here by merging batches
// at read time.
type textRepo struct {
	dir string
	log logx.Logger

	mu sync.Mutex
}

// textRecord is one observed title inside a batch file.
type textRecord struct {
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	MobileURL  string  `json:"mobile_url,omitempty"`
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name,omitempty"`
	Ranks      []int64 `json:"ranks,omitempty"`
	At         int64   `json:"at"` // unix milli
}

func openText(cfg Config, log logx.Logger) (Repository, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("storage.dir is required for the text driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &textRepo{dir: dir, log: log}, nil
}

func (r *textRepo) Close() error { return nil }

// nextID bumps the counter file. Written to a temp file then renamed so
// a crash never leaves a truncated counter.
func (r *textRepo) nextID() (int64, error) {
	path := filepath.Join(r.dir, "seq")
	var cur int64
	if b, err := os.ReadFile(path); err == nil {
		cur, _ = strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	}
	next := cur + 1
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(next, 10)), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *textRepo) dayDir(date string) string { return filepath.Join(r.dir, date) }

func (r *textRepo) SaveBatch(ctx context.Context, items []NewsItem) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	batchID, err := r.nextID()
	if err != nil {
		return 0, err
	}

	now := timeutil.Now()
	day := r.dayDir(timeutil.DateKey(now))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return 0, err
	}

	path := filepath.Join(day, fmt.Sprintf("batch-%08d.jsonl", batchID))
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(f)
	for _, it := range items {
		rec := textRecord{
			Title:      it.Title,
			URL:        it.URL,
			MobileURL:  it.MobileURL,
			SourceID:   it.SourceID,
			SourceName: it.SourceName,
			Ranks:      it.Ranks,
			At:         now.UnixMilli(),
		}
		if err := enc.Encode(rec); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}

	r.log.Debug("news batch saved", logx.Int64("batch_id", batchID), logx.Int("items", len(items)))
	return batchID, nil
}

// batchFiles lists a day's batch files in batch-id order.
func (r *textRepo) batchFiles(date string) ([]string, error) {
	entries, err := os.ReadDir(r.dayDir(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "batch-") && strings.HasSuffix(name, ".jsonl") {
			files = append(files, filepath.Join(r.dayDir(date), name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func batchIDFromFile(path string) int64 {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, "batch-")
	name = strings.TrimSuffix(name, ".jsonl")
	id, _ := strconv.ParseInt(name, 10, 64)
	return id
}

func readBatch(path string) ([]textRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []textRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec textRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		recs = append(recs, rec)
	}
	return recs, sc.Err()
}

// mergeDay folds a day's batches into upserted items, mirroring the
// postgres driver: first sighting sets CreatedAt and BatchID, repeats
// accumulate ranks and the crawl counter.
func (r *textRepo) mergeDay(date string, sourceIDs []string) ([]NewsItem, error) {
	files, err := r.batchFiles(date)
	if err != nil {
		return nil, err
	}
	filter := sourceFilter(sourceIDs)

	type key struct{ source, title string }
	merged := map[key]*NewsItem{}
	var order []key

	for _, path := range files {
		recs, err := readBatch(path)
		if err != nil {
			return nil, err
		}
		batchID := batchIDFromFile(path)
		for _, rec := range recs {
			if filter != nil && !filter[rec.SourceID] {
				continue
			}
			k := key{rec.SourceID, rec.Title}
			at := time.UnixMilli(rec.At).In(timeutil.Location())
			if it, ok := merged[k]; ok {
				it.Ranks = append(it.Ranks, rec.Ranks...)
				it.CrawlCount++
				it.UpdatedAt = at
				continue
			}
			merged[k] = &NewsItem{
				Title:      rec.Title,
				URL:        rec.URL,
				MobileURL:  rec.MobileURL,
				SourceID:   rec.SourceID,
				SourceName: rec.SourceName,
				Ranks:      append([]int64(nil), rec.Ranks...),
				CrawlCount: 1,
				BatchID:    batchID,
				CreatedAt:  at,
				UpdatedAt:  at,
			}
			order = append(order, k)
		}
	}

	out := make([]NewsItem, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.Title < b.Title
	})
	return out, nil
}

func (r *textRepo) FirstCrawlToday(ctx context.Context) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	files, err := r.batchFiles(timeutil.DateKey(timeutil.Now()))
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

func (r *textRepo) AllToday(ctx context.Context, sourceIDs []string) ([]NewsItem, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeDay(timeutil.DateKey(timeutil.Now()), sourceIDs)
}

func (r *textRepo) LatestNewTitles(ctx context.Context, sourceIDs []string) ([]NewsItem, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.mergeDay(timeutil.DateKey(timeutil.Now()), sourceIDs)
	if err != nil {
		return nil, err
	}
	files, err := r.batchFiles(timeutil.DateKey(timeutil.Now()))
	if err != nil || len(files) == 0 {
		return nil, err
	}
	latest := batchIDFromFile(files[len(files)-1])

	var out []NewsItem
	for _, it := range items {
		if it.BatchID == latest {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (r *textRepo) Search(ctx context.Context, q SearchQuery) ([]NewsItem, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	today := timeutil.DateKey(timeutil.Now())
	from, to := q.From, q.To
	if from == "" {
		from = today
	}
	if to == "" {
		to = today
	}

	start, err := time.ParseInLocation("2006-01-02", from, timeutil.Location())
	if err != nil {
		return nil, fmt.Errorf("search from %q: %w", from, err)
	}
	end, err := time.ParseInLocation("2006-01-02", to, timeutil.Location())
	if err != nil {
		return nil, fmt.Errorf("search to %q: %w", to, err)
	}

	needle := strings.ToLower(q.Keyword)
	var out []NewsItem
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		items, err := r.mergeDay(timeutil.DateKey(day), q.SourceIDs)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Title), needle) {
				out = append(out, it)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *textRepo) summaryPath(date, model, kind string) string {
	return filepath.Join(r.dayDir(date), fmt.Sprintf("summary-%s-%s.json", model, kind))
}

func (r *textRepo) SaveDailySummary(ctx context.Context, s DailySummary) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dayDir(s.SummaryDate), 0o755); err != nil {
		return 0, err
	}

	path := r.summaryPath(s.SummaryDate, s.ModelName, s.SummaryType)
	now := timeutil.Now()
	if prev, err := readSummaryFile(path); err == nil {
		// Upsert: keep identity and creation time, replace the payload.
		s.ID = prev.ID
		s.CreatedAt = prev.CreatedAt
	} else {
		id, err := r.nextID()
		if err != nil {
			return 0, err
		}
		s.ID = id
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return 0, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return s.ID, nil
}

func readSummaryFile(path string) (*DailySummary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s DailySummary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *textRepo) DailySummary(ctx context.Context, date, model, kind string) (*DailySummary, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := readSummaryFile(r.summaryPath(date, model, kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *textRepo) RecentSummaries(ctx context.Context, days int, model, kind string) ([]DailySummary, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []DailySummary
	day := timeutil.Now()
	for i := 0; i < days; i++ {
		date := timeutil.DateKey(day.AddDate(0, 0, -i))
		s, err := readSummaryFile(r.summaryPath(date, model, kind))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *textRepo) Stats(ctx context.Context) (Stats, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	var st Stats
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return st, err
	}

	today := timeutil.DateKey(timeutil.Now())
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		date := e.Name()
		if _, err := time.ParseInLocation("2006-01-02", date, timeutil.Location()); err != nil {
			continue
		}
		items, err := r.mergeDay(date, nil)
		if err != nil {
			return st, err
		}
		st.NewsCount += int64(len(items))
		if date == today {
			st.TodayNewsCount = int64(len(items))
		}
		for _, it := range items {
			if st.OldestRecord == nil || it.CreatedAt.Before(*st.OldestRecord) {
				t := it.CreatedAt
				st.OldestRecord = &t
			}
			if st.LatestRecord == nil || it.CreatedAt.After(*st.LatestRecord) {
				t := it.CreatedAt
				st.LatestRecord = &t
			}
		}

		dayEntries, err := os.ReadDir(r.dayDir(date))
		if err != nil {
			return st, err
		}
		for _, de := range dayEntries {
			if strings.HasPrefix(de.Name(), "summary-") {
				st.SummaryCount++
			}
			if info, err := de.Info(); err == nil {
				st.StorageBytes += info.Size()
			}
		}
	}
	return st, nil
}

func sourceFilter(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
