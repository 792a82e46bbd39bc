package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/report"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

type fakeNotifier struct {
	name  string
	batch int
	fail  error

	mu    sync.Mutex
	sends []string
}

func (f *fakeNotifier) Name() string   { return f.name }
func (f *fakeNotifier) BatchSize() int { return f.batch }

func (f *fakeNotifier) Send(_ context.Context, content string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	f.sends = append(f.sends, content)
	f.mu.Unlock()
	return nil
}

func sampleReport() report.Report {
	return report.Report{
		Date:         "2026-08-30",
		Mode:         "daily",
		TotalMatched: 2,
		Sections: []report.Section{
			{Key: "测试", Items: []report.Item{
				{Title: "标题一", SourceName: "知乎", MinRank: 1, Count: 3},
				{Title: "标题二", SourceName: "微博", MinRank: 4, Count: 1},
			}},
		},
	}
}

func fastConfig() config.NotificationConfig {
	return config.NotificationConfig{BatchSendIntervalMS: 1}
}

func TestManagerDispatchesToAllChannels(t *testing.T) {
	t.Parallel()

	a := &fakeNotifier{name: "a", batch: 4000}
	b := &fakeNotifier{name: "b", batch: 4000}
	m := NewManager([]Notifier{a, b}, fastConfig(), nil, logx.Nop())

	if err := m.Dispatch(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for _, f := range []*fakeNotifier{a, b} {
		if len(f.sends) != 1 {
			t.Fatalf("%s received %d messages, want 1", f.name, len(f.sends))
		}
		if !strings.Contains(f.sends[0], "标题一") {
			t.Errorf("%s content missing item: %q", f.name, f.sends[0])
		}
	}
}

func TestManagerSplitsPerChannelBatchSize(t *testing.T) {
	t.Parallel()

	// A tiny budget forces multiple numbered batches for this channel
	// while the roomy one gets a single unnumbered message.
	small := &fakeNotifier{name: "small", batch: 120}
	large := &fakeNotifier{name: "large", batch: 64 << 10}
	m := NewManager([]Notifier{small, large}, fastConfig(), nil, logx.Nop())

	if err := m.Dispatch(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(small.sends) < 2 {
		t.Fatalf("small channel got %d batches, want at least 2", len(small.sends))
	}
	if !strings.HasPrefix(small.sends[0], "【第 1/") {
		t.Errorf("first batch lacks header: %q", small.sends[0])
	}
	for _, b := range small.sends {
		if len(b) > small.batch {
			t.Errorf("batch exceeds budget: %d > %d", len(b), small.batch)
		}
	}
	if len(large.sends) != 1 {
		t.Fatalf("large channel got %d batches, want 1", len(large.sends))
	}
	if strings.HasPrefix(large.sends[0], "【第") {
		t.Errorf("single batch should not be numbered: %q", large.sends[0])
	}
}

func TestManagerOneFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	bad := &fakeNotifier{name: "bad", batch: 4000, fail: errors.New("boom")}
	good := &fakeNotifier{name: "good", batch: 4000}
	m := NewManager([]Notifier{bad, good}, fastConfig(), nil, logx.Nop())

	err := m.Dispatch(context.Background(), sampleReport())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error does not name the failed channel: %v", err)
	}
	if len(good.sends) != 1 {
		t.Errorf("healthy channel got %d messages, want 1", len(good.sends))
	}
}

func TestManagerRespectsClosedWindow(t *testing.T) {
	t.Parallel()

	// A window that never opens today: mark it sent first.
	dir := t.TempDir()
	w, err := NewWindow(config.PushWindowConfig{
		Enabled: true, Start: "00:00", End: "23:59", OncePerDay: true,
	}, dir)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	n := &fakeNotifier{name: "a", batch: 4000}
	m := NewManager([]Notifier{n}, fastConfig(), w, logx.Nop())

	if err := m.Dispatch(context.Background(), sampleReport()); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if len(n.sends) != 1 {
		t.Fatalf("first dispatch sent %d, want 1", len(n.sends))
	}
	// The marker written by the first dispatch closes the gate.
	if err := m.Dispatch(context.Background(), sampleReport()); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if len(n.sends) != 1 {
		t.Errorf("second dispatch should have been skipped, sends = %d", len(n.sends))
	}
}

func TestFromConfigBuildsConfiguredChannels(t *testing.T) {
	t.Parallel()

	cfg := config.NotificationConfig{
		MessageBatchSize:  4000,
		FeishuBatchSize:   25000,
		DingTalkBatchSize: 20000,
		BarkBatchSize:     3600,
		SlackBatchSize:    4000,
		Webhooks: config.WebhookConfig{
			FeishuURL: "https://open.feishu.cn/hook/abc",
			WeWorkURL: "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=k",
			SlackURL:  "https://hooks.slack.com/services/T/B/x",
			BarkURL:   "https://api.day.app/devicekey",
			NtfyTopic: "trends",
		},
	}
	ns, err := FromConfig(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	var names []string
	for _, n := range ns {
		names = append(names, n.Name())
	}
	want := []string{"feishu", "wework", "slack", "bark", "ntfy"}
	if len(names) != len(want) {
		t.Fatalf("channels = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("channel[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}
