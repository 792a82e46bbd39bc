package app

import (
	"context"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/dataservice"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

// Serve runs the data service until ctx is cancelled, hot-reloading
// the config file. Address changes restart the listener; everything
// else applies on the next request or pipeline run.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfgm.Get()
	log := a.log.With(logx.String("comp", "serve"))

	svc := dataservice.New(cfg.Serve, a.repo, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	// The watcher below may swap svc; stop whichever one is current.
	defer func() { svc.Stop(context.Background()) }()

	err := a.cfgm.Watch(ctx, func(next *config.Config) {
		if next.Serve.Address != cfg.Serve.Address {
			log.Info("serve address changed; restarting listener",
				logx.String("addr", next.Serve.Address))
			svc.Stop(ctx)
			svc = dataservice.New(next.Serve, a.repo, log)
			if err := svc.Start(ctx); err != nil {
				log.Error("listener restart failed", logx.Err(err))
			}
		}
		cfg = next
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
