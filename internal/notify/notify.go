// Package notify fans a rendered report out to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/report"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

// Notifier delivers one batch of report text to a single channel.
type Notifier interface {
	Name() string
	// BatchSize is the channel's byte budget per message.
	BatchSize() int
	Send(ctx context.Context, content string) error
}

// Manager splits a report per channel and delivers it, pacing batches
// so chat APIs do not rate-limit us.
type Manager struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	window    *Window
	log       logx.Logger
}

func NewManager(notifiers []Notifier, cfg config.NotificationConfig, window *Window, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	interval := time.Duration(cfg.BatchSendIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	return &Manager{
		notifiers: notifiers,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		window:    window,
		log:       log,
	}
}

// Dispatch renders and sends the report to every channel. One failing
// channel does not stop the others; the combined error is returned.
func (m *Manager) Dispatch(ctx context.Context, rep report.Report) error {
	if len(m.notifiers) == 0 {
		m.log.Info("no notification channels configured; skipping dispatch")
		return nil
	}
	if m.window != nil {
		if ok, reason := m.window.Allows(time.Now()); !ok {
			m.log.Info("push window closed; skipping dispatch", logx.String("reason", reason))
			return nil
		}
	}

	text := rep.RenderText()

	var errs []error
	sent := false
	for _, n := range m.notifiers {
		if err := m.sendAll(ctx, n, text); err != nil {
			m.log.Warn("channel dispatch failed", logx.String("channel", n.Name()), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		sent = true
	}

	if sent && m.window != nil {
		if err := m.window.MarkSent(time.Now()); err != nil {
			m.log.Warn("push window marker not recorded", logx.Err(err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) sendAll(ctx context.Context, n Notifier, text string) error {
	batches := report.SplitBatches(text, n.BatchSize()-report.HeaderReserve)
	batches = report.AddBatchHeaders(batches)

	m.log.Debug("dispatching report",
		logx.String("channel", n.Name()), logx.Int("batches", len(batches)))

	for i, b := range batches {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := n.Send(ctx, b); err != nil {
			return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
	}
	return nil
}

// FromConfig builds the channel list from configured webhooks and
// tokens. Unconfigured channels are simply absent.
func FromConfig(cfg config.NotificationConfig, log logx.Logger) ([]Notifier, error) {
	var out []Notifier
	wh := cfg.Webhooks

	if wh.FeishuURL != "" {
		out = append(out, NewFeishu(wh.FeishuURL, cfg.FeishuBatchSize))
	}
	if wh.DingTalkURL != "" {
		out = append(out, NewDingTalk(wh.DingTalkURL, cfg.DingTalkBatchSize))
	}
	if wh.WeWorkURL != "" {
		out = append(out, NewWeWork(wh.WeWorkURL, cfg.MessageBatchSize))
	}
	if wh.SlackURL != "" {
		out = append(out, NewSlack(wh.SlackURL, cfg.SlackBatchSize))
	}
	if wh.BarkURL != "" {
		bark, err := NewBark(wh.BarkURL, cfg.BarkBatchSize)
		if err != nil {
			return nil, err
		}
		out = append(out, bark)
	}
	if wh.NtfyTopic != "" {
		out = append(out, NewNtfy(wh.NtfyServerURL, wh.NtfyTopic, wh.NtfyToken, cfg.MessageBatchSize))
	}
	if wh.TelegramBotToken != "" && wh.TelegramChatID != 0 {
		tg, err := NewTelegram(TelegramConfig{
			Token:     wh.TelegramBotToken,
			ChatID:    wh.TelegramChatID,
			BatchSize: cfg.MessageBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		out = append(out, tg)
	}

	names := make([]string, 0, len(out))
	for _, n := range out {
		names = append(names, n.Name())
	}
	log.Info("notification channels ready", logx.Any("channels", names))
	return out, nil
}
