// Package app wires configuration, storage, crawling, matching,
// reporting and notification into the runnable TrendRadar pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/fetch"
	"github.com/liuyezhou/TrendRadar/internal/match"
	"github.com/liuyezhou/TrendRadar/internal/notify"
	"github.com/liuyezhou/TrendRadar/internal/report"
	"github.com/liuyezhou/TrendRadar/internal/storage"
	"github.com/liuyezhou/TrendRadar/internal/timeutil"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	repo storage.Repository
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	log = log.With(logx.String("app", cfg.App.Name))

	repo, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		DatabaseURL: cfg.Storage.DatabaseURL,
		Dir:         cfg.Storage.Dir,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	return &App{cfgPath: cfgPath, cfgm: cfgm, log: log, repo: repo}, nil
}

func (a *App) Config() *config.Config { return a.cfgm.Get() }
func (a *App) Log() logx.Logger       { return a.log }
func (a *App) Repo() storage.Repository {
	return a.repo
}

func (a *App) Close() error {
	var errs []error
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	errs = append(errs, a.log.Close())
	return errors.Join(errs...)
}

// RunOnce executes a single crawl-match-report-notify cycle.
func (a *App) RunOnce(ctx context.Context) error {
	cfg := a.cfgm.Get()
	log := a.log.With(logx.String("comp", "pipeline"))

	if !cfg.Crawler.IsEnabled() {
		log.Info("crawler disabled; nothing to do")
		return nil
	}

	rules, err := match.LoadRules(a.rulesPath(cfg))
	if err != nil {
		return fmt.Errorf("frequency words: %w", err)
	}

	client, err := fetch.New(cfg.Crawler, log.With(logx.String("comp", "fetch")))
	if err != nil {
		return fmt.Errorf("fetch client: %w", err)
	}

	// Checked before the save so the day's very first crawl is still
	// visible as such afterwards.
	firstToday, err := a.repo.FirstCrawlToday(ctx)
	if err != nil {
		return fmt.Errorf("first crawl check: %w", err)
	}

	res, err := client.All(ctx, cfg.Platforms)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	log.Info("crawl finished",
		logx.String("crawl_id", res.CrawlID),
		logx.Int("items", len(res.Items)),
		logx.Int("failed_platforms", len(res.Failed)))

	if _, err := a.repo.SaveBatch(ctx, res.Items); err != nil {
		return fmt.Errorf("save batch: %w", err)
	}

	rep, err := a.buildReport(ctx, cfg, rules, res, firstToday)
	if err != nil {
		return err
	}
	log.Info("report built",
		logx.Int("matched", rep.TotalMatched),
		logx.Int("new", rep.NewCount),
		logx.Bool("first_crawl_today", firstToday),
		logx.Any("groups", rep.GroupKeys()))

	if _, err := a.repo.SaveDailySummary(ctx, storage.DailySummary{
		SummaryDate: rep.Date,
		ModelName:   storage.DefaultModel,
		SummaryType: storage.SummaryTypeDaily,
		Content:     rep.RenderText(),
		WordGroups:  rep.GroupKeys(),
		NewsCount:   rep.TotalMatched,
	}); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	if !cfg.Notification.IsEnabled() {
		log.Info("notification disabled; report stored only")
		return nil
	}
	return a.dispatch(ctx, cfg, rep)
}

func (a *App) buildReport(ctx context.Context, cfg *config.Config, rules match.Rules, res fetch.Result, firstToday bool) (report.Report, error) {
	var sources []string
	for _, p := range cfg.Platforms {
		sources = append(sources, p.ID)
	}

	var items, newItems []storage.NewsItem
	var err error
	switch cfg.Report.Mode {
	case "current":
		items = res.Items
		newItems, err = a.repo.LatestNewTitles(ctx, sources)
	case "incremental":
		newItems, err = a.repo.LatestNewTitles(ctx, sources)
		items = newItems
		if firstToday && err == nil {
			// The day's opening crawl reports the full picture; later
			// runs push only what newly appeared.
			items, err = a.repo.AllToday(ctx, sources)
		}
	default: // daily
		items, err = a.repo.AllToday(ctx, sources)
		if err == nil {
			newItems, err = a.repo.LatestNewTitles(ctx, sources)
		}
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("load report input: %w", err)
	}

	rep := report.Build(items, newItems, rules, report.Options{
		Mode:                cfg.Report.Mode,
		RankThreshold:       cfg.Report.RankThreshold,
		MaxPerKeyword:       cfg.Report.MaxNewsPerKeyword,
		SortByPositionFirst: cfg.Report.SortByPositionFirst,
		ReverseContentOrder: cfg.Report.ReverseContentOrder,
		Weights:             cfg.Weight,
	})
	for id := range res.Failed {
		rep.FailedPlatforms = append(rep.FailedPlatforms, id)
	}
	return rep, nil
}

func (a *App) dispatch(ctx context.Context, cfg *config.Config, rep report.Report) error {
	notifiers, err := notify.FromConfig(cfg.Notification, a.log.With(logx.String("comp", "notify")))
	if err != nil {
		return fmt.Errorf("notification channels: %w", err)
	}

	window, err := notify.NewWindow(cfg.Notification.PushWindow, a.markerDir(cfg))
	if err != nil {
		return fmt.Errorf("push window: %w", err)
	}

	mgr := notify.NewManager(notifiers, cfg.Notification, window,
		a.log.With(logx.String("comp", "notify")))
	return mgr.Dispatch(ctx, rep)
}

func (a *App) rulesPath(cfg *config.Config) string {
	if p := cfg.Report.FrequencyFile; p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(a.cfgPath), "frequency_words.txt")
}

// markerDir is where the once-per-day push marker lives. The text
// driver's data dir doubles for this; postgres deployments fall back
// to a directory next to the config file.
func (a *App) markerDir(cfg *config.Config) string {
	if cfg.Storage.Dir != "" {
		return cfg.Storage.Dir
	}
	return filepath.Join(filepath.Dir(a.cfgPath), "state")
}

// Today returns the pipeline's date key, pinned to the report zone.
func Today() string { return timeutil.DateKey(timeutil.Now()) }
