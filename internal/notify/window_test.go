package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/timeutil"
)

func inZone(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	return time.Date(2026, 8, 30, hour, minute, 0, 0, timeutil.Location())
}

func TestWindowDisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(config.PushWindowConfig{Enabled: false}, "")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if ok, _ := w.Allows(inZone(t, 3, 0)); !ok {
		t.Error("disabled window should allow any time")
	}
}

func TestWindowRange(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(config.PushWindowConfig{Enabled: true, Start: "08:00", End: "22:00"}, "")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{7, 59, false},
		{8, 0, true},
		{15, 30, true},
		{21, 59, true},
		{22, 0, false},
	}
	for _, tc := range cases {
		ok, reason := w.Allows(inZone(t, tc.hour, tc.minute))
		if ok != tc.want {
			t.Errorf("Allows(%02d:%02d) = %v (%s), want %v", tc.hour, tc.minute, ok, reason, tc.want)
		}
	}
}

func TestWindowOncePerDay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWindow(config.PushWindowConfig{
		Enabled: true, Start: "08:00", End: "22:00", OncePerDay: true,
	}, dir)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	now := inZone(t, 9, 0)
	if ok, _ := w.Allows(now); !ok {
		t.Fatal("first push of the day should be allowed")
	}
	if err := w.MarkSent(now); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if ok, reason := w.Allows(inZone(t, 12, 0)); ok {
		t.Error("second push on the same day should be blocked")
	} else if !strings.Contains(reason, "already") {
		t.Errorf("reason = %q", reason)
	}
	// Next day the gate opens again.
	if ok, _ := w.Allows(now.AddDate(0, 0, 1)); !ok {
		t.Error("push on the next day should be allowed")
	}
}

func TestWindowConfigErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  config.PushWindowConfig
	}{
		{"bad start", config.PushWindowConfig{Enabled: true, Start: "8am", End: "22:00"}},
		{"bad end", config.PushWindowConfig{Enabled: true, Start: "08:00", End: "25:00"}},
		{"inverted", config.PushWindowConfig{Enabled: true, Start: "22:00", End: "08:00"}},
		{"once without dir", config.PushWindowConfig{Enabled: true, Start: "08:00", End: "22:00", OncePerDay: true}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewWindow(tc.cfg, ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}
