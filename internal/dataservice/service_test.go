package dataservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/storage"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

type stubRepo struct {
	storage.Repository

	stats     storage.Stats
	statsErr  error
	today     []storage.NewsItem
	todayArgs []string
	summaries []storage.DailySummary
	sumDays   int
	sumModel  string
	sumKind   string

	searchHits  []storage.NewsItem
	searchQuery storage.SearchQuery
}

func (s *stubRepo) Stats(ctx context.Context) (storage.Stats, error) {
	return s.stats, s.statsErr
}

func (s *stubRepo) AllToday(ctx context.Context, sources []string) ([]storage.NewsItem, error) {
	s.todayArgs = sources
	return s.today, nil
}

func (s *stubRepo) RecentSummaries(ctx context.Context, days int, model, kind string) ([]storage.DailySummary, error) {
	s.sumDays = days
	s.sumModel = model
	s.sumKind = kind
	return s.summaries, nil
}

func (s *stubRepo) Search(ctx context.Context, q storage.SearchQuery) ([]storage.NewsItem, error) {
	s.searchQuery = q
	return s.searchHits, nil
}

func newTestService(repo storage.Repository) *Service {
	return New(config.ServeConfig{}, repo, logx.Nop())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestService(&stubRepo{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	repo := &stubRepo{stats: storage.Stats{
		NewsCount:      42,
		TodayNewsCount: 7,
		SummaryCount:   3,
		LatestRecord:   &now,
	}}
	srv := httptest.NewServer(newTestService(repo).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	var got storage.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.NewsCount != 42 || got.TodayNewsCount != 7 {
		t.Errorf("stats = %+v", got)
	}
}

func TestStatsEndpointFailure(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{statsErr: errors.New("db down")}
	srv := httptest.NewServer(newTestService(repo).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestNewsTodaySourceFilter(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{today: []storage.NewsItem{
		{Title: "标题", SourceID: "zhihu", Ranks: []int64{2}, CrawlCount: 1},
	}}
	srv := httptest.NewServer(newTestService(repo).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/news/today?sources=zhihu,%20weibo,")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if want := []string{"zhihu", "weibo"}; !reflect.DeepEqual(repo.todayArgs, want) {
		t.Errorf("sources passed to repo = %v, want %v", repo.todayArgs, want)
	}
	var body struct {
		Date  string             `json:"date"`
		Count int                `json:"count"`
		Items []storage.NewsItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Items) != 1 || body.Items[0].SourceID != "zhihu" {
		t.Errorf("body = %+v", body)
	}
	if body.Date == "" {
		t.Error("date missing from response")
	}
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{searchHits: []storage.NewsItem{
		{Title: "人工智能新进展", SourceID: "zhihu"},
	}}
	srv := httptest.NewServer(newTestService(repo).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/news/search?q=" + url.QueryEscape("人工智能") +
		"&from=2026-08-01&to=2026-08-30&sources=zhihu&limit=10")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	want := storage.SearchQuery{
		Keyword:   "人工智能",
		From:      "2026-08-01",
		To:        "2026-08-30",
		SourceIDs: []string{"zhihu"},
		Limit:     10,
	}
	if !reflect.DeepEqual(repo.searchQuery, want) {
		t.Errorf("query passed to repo = %+v, want %+v", repo.searchQuery, want)
	}

	var body struct {
		Keyword string             `json:"keyword"`
		Count   int                `json:"count"`
		Items   []storage.NewsItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Items) != 1 || body.Items[0].Title != "人工智能新进展" {
		t.Errorf("body = %+v", body)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestService(&stubRepo{}).Handler())
	defer srv.Close()

	cases := []string{
		"/v1/news/search",                      // missing q
		"/v1/news/search?q=ai&from=tomorrow",   // bad from
		"/v1/news/search?q=ai&to=2026/08/30",   // bad to
		"/v1/news/search?q=ai&limit=0",         // limit below range
		"/v1/news/search?q=ai&limit=oneplenty", // limit not a number
	}
	for _, path := range cases {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestSummariesDaysValidation(t *testing.T) {
	t.Parallel()

	repo := &stubRepo{summaries: []storage.DailySummary{{SummaryDate: "2026-08-30"}}}
	srv := httptest.NewServer(newTestService(repo).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/summaries?days=30")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if repo.sumDays != 30 {
		t.Errorf("days passed to repo = %d, want 30", repo.sumDays)
	}
	if repo.sumModel != storage.DefaultModel || repo.sumKind != storage.SummaryTypeDaily {
		t.Errorf("summary identity = %s/%s, want defaults", repo.sumModel, repo.sumKind)
	}

	for _, bad := range []string{"0", "-3", "91", "many"} {
		resp, err := http.Get(srv.URL + "/v1/summaries?days=" + bad)
		if err != nil {
			t.Fatalf("GET days=%s: %v", bad, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("days=%s: status = %d, want 400", bad, resp.StatusCode)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestService(&stubRepo{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/stats", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
