// Package dataservice exposes the stored news data over a small JSON
// HTTP API, intended for dashboards and local tooling.
package dataservice

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/storage"
	"github.com/liuyezhou/TrendRadar/internal/timeutil"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg config.ServeConfig

	repo storage.Repository

	ln  net.Listener
	srv *http.Server
}

func New(cfg config.ServeConfig, repo storage.Repository, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, repo: repo, log: log}
}

// Start binds the listener and serves in the background. It notifies
// systemd readiness once the listener is up; outside systemd that is
// a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Address)
	if addr == "" {
		addr = "127.0.0.1:8765"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.ln = ln
	s.srv = srv

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("data service stopped with error", logx.Err(err))
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		s.log.Debug("sd_notify readiness sent")
	}

	s.log.Info("data service listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("data service shutdown incomplete", logx.Err(err))
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("data service stopped")
}

// Handler builds the route table. Exposed for tests.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/news/today", s.handleNewsToday)
	mux.HandleFunc("GET /v1/news/search", s.handleSearch)
	mux.HandleFunc("GET /v1/summaries", s.handleSummaries)
	return mux
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleNewsToday(w http.ResponseWriter, r *http.Request) {
	var sources []string
	if raw := r.URL.Query().Get("sources"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				sources = append(sources, id)
			}
		}
	}
	items, err := s.repo.AllToday(r.Context(), sources)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"date":  timeutil.DateKey(timeutil.Now()),
		"count": len(items),
		"items": items,
	})
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyword := strings.TrimSpace(q.Get("q"))
	if keyword == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	query := storage.SearchQuery{Keyword: keyword}
	for _, bound := range []struct {
		param string
		dst   *string
	}{{"from", &query.From}, {"to", &query.To}} {
		raw := q.Get(bound.param)
		if raw == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			http.Error(w, bound.param+" must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		*bound.dst = raw
	}
	for _, id := range strings.Split(q.Get("sources"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			query.SourceIDs = append(query.SourceIDs, id)
		}
	}
	query.Limit = 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be an integer between 1 and 500", http.StatusBadRequest)
			return
		}
		query.Limit = n
	}

	items, err := s.repo.Search(r.Context(), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"keyword": keyword,
		"count":   len(items),
		"items":   items,
	})
}

func (s *Service) handleSummaries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := 7
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 90 {
			http.Error(w, "days must be an integer between 1 and 90", http.StatusBadRequest)
			return
		}
		days = n
	}
	model := q.Get("model")
	if model == "" {
		model = storage.DefaultModel
	}
	kind := q.Get("type")
	if kind == "" {
		kind = storage.SummaryTypeDaily
	}
	sums, err := s.repo.RecentSummaries(r.Context(), days, model, kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"days":      days,
		"count":     len(sums),
		"summaries": sums,
	})
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.log.Error("request failed",
		logx.String("path", r.URL.Path), logx.Err(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encoding failed", logx.Err(err))
	}
}
