// Package fetch pulls trending titles from a newsnow-compatible API.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/storage"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

// Client fetches one platform per request, paced by a rate limiter so a
// burst of platforms does not hammer the upstream API.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg config.CrawlerConfig, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	transport := http.DefaultTransport
	if cfg.UseProxy && strings.TrimSpace(cfg.DefaultProxy) != "" {
		proxyURL, err := url.Parse(cfg.DefaultProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", cfg.DefaultProxy, err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	interval := time.Duration(cfg.RequestIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		log:     log,
	}, nil
}

// apiResponse is the newsnow payload shape.
type apiResponse struct {
	Status string `json:"status"`
	Items  []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		MobileURL string `json:"mobileUrl"`
	} `json:"items"`
}

// Platform fetches one platform's current list. Rank is the position
// in the returned list, 1-based.
func (c *Client) Platform(ctx context.Context, p config.Platform) ([]storage.NewsItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/s?id=%s&latest", c.base, url.QueryEscape(p.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "trendradar/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform %s: unexpected status %s", p.ID, resp.Status)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("platform %s: decode: %w", p.ID, err)
	}
	if body.Status != "success" && body.Status != "cache" {
		return nil, fmt.Errorf("platform %s: api status %q", p.ID, body.Status)
	}

	name := p.Name
	if name == "" {
		name = p.ID
	}
	items := make([]storage.NewsItem, 0, len(body.Items))
	for i, it := range body.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		items = append(items, storage.NewsItem{
			Title:      title,
			URL:        it.URL,
			MobileURL:  it.MobileURL,
			SourceID:   p.ID,
			SourceName: name,
			Ranks:      []int64{int64(i + 1)},
		})
	}
	return items, nil
}

// Result is the outcome of crawling all configured platforms.
type Result struct {
	// CrawlID correlates this run's logs and reports.
	CrawlID string
	Items   []storage.NewsItem
	// Failed maps platform id to its fetch error. Partial failure is
	// not fatal; the pipeline proceeds with what succeeded.
	Failed map[string]error
}

// All crawls every platform in order, collecting per-platform failures
// instead of aborting the run.
func (c *Client) All(ctx context.Context, platforms []config.Platform) (Result, error) {
	res := Result{
		CrawlID: uuid.NewString(),
		Failed:  map[string]error{},
	}
	log := c.log.With(logx.String("crawl_id", res.CrawlID))

	for _, p := range platforms {
		items, err := c.Platform(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn("platform fetch failed", logx.String("platform", p.ID), logx.Err(err))
			res.Failed[p.ID] = err
			continue
		}
		log.Debug("platform fetched", logx.String("platform", p.ID), logx.Int("items", len(items)))
		res.Items = append(res.Items, items...)
	}

	if len(res.Items) == 0 && len(res.Failed) > 0 {
		return res, fmt.Errorf("all %d platforms failed", len(res.Failed))
	}
	return res, nil
}
