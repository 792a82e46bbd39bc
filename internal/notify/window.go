package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/liuyezhou/TrendRadar/internal/config"
	"github.com/liuyezhou/TrendRadar/internal/timeutil"
)

// Window gates deliveries to a daily time range, optionally to a
// single push per day. The once-per-day state survives restarts via a
// marker file.
type Window struct {
	enabled    bool
	start, end int // minutes since midnight
	oncePerDay bool
	markerPath string
}

// NewWindow builds the gate from config. markerDir holds the
// once-per-day marker file; it may be empty when OncePerDay is off.
func NewWindow(cfg config.PushWindowConfig, markerDir string) (*Window, error) {
	w := &Window{enabled: cfg.Enabled, oncePerDay: cfg.OncePerDay}
	if !cfg.Enabled {
		return w, nil
	}

	var err error
	if w.start, err = parseHHMM(cfg.Start); err != nil {
		return nil, fmt.Errorf("push window start: %w", err)
	}
	if w.end, err = parseHHMM(cfg.End); err != nil {
		return nil, fmt.Errorf("push window end: %w", err)
	}
	if w.start >= w.end {
		return nil, fmt.Errorf("push window start %q is not before end %q", cfg.Start, cfg.End)
	}
	if cfg.OncePerDay {
		if markerDir == "" {
			return nil, fmt.Errorf("push window once_per_day needs a marker directory")
		}
		w.markerPath = filepath.Join(markerDir, "last_push")
	}
	return w, nil
}

// Allows reports whether a push may happen at the given time. The
// second return names the reason when the answer is no.
func (w *Window) Allows(now time.Time) (bool, string) {
	if !w.enabled {
		return true, ""
	}
	now = now.In(timeutil.Location())
	minute := now.Hour()*60 + now.Minute()
	if minute < w.start || minute >= w.end {
		return false, fmt.Sprintf("%02d:%02d outside window", now.Hour(), now.Minute())
	}
	if w.oncePerDay && w.sentOn(timeutil.DateKey(now)) {
		return false, "already pushed today"
	}
	return true, ""
}

// MarkSent records a completed push for the once-per-day gate.
func (w *Window) MarkSent(now time.Time) error {
	if !w.enabled || !w.oncePerDay {
		return nil
	}
	key := timeutil.DateKey(now.In(timeutil.Location()))
	if err := os.MkdirAll(filepath.Dir(w.markerPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(w.markerPath, []byte(key+"\n"), 0o644)
}

func (w *Window) sentOn(dateKey string) bool {
	b, err := os.ReadFile(w.markerPath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(b)) == dateKey
}

func parseHHMM(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q has a bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q has a bad minute", s)
	}
	return h*60 + m, nil
}
