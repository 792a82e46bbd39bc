package cronjob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// Store is the schedule store the registrar reads and rewrites. The
// content is the flat, line-oriented crontab text, comments and blank
// lines included.
//
// Save replaces the whole store in one step; implementations must never
// edit in place, so an interrupted registration leaves the previous
// content intact.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, content string) error
}

// SystemStore talks to the invoking user's crontab via the crontab(1)
// command.
type SystemStore struct {
	// Crontab overrides the binary name, for tests. Empty means "crontab".
	Crontab string
}

func (s *SystemStore) bin() string {
	if s.Crontab != "" {
		return s.Crontab
	}
	return "crontab"
}

// Load returns the current crontab. A user without a crontab yet is not
// an error: it loads as empty.
func (s *SystemStore) Load(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, s.bin(), "-l")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}

	// "no crontab for <user>" exits non-zero but means an empty store.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && strings.Contains(strings.ToLower(stderr.String()), "no crontab") {
		return "", nil
	}
	return "", err
}

// Save installs content as the new crontab. The content is written to a
// temporary file first and handed to crontab(1), which performs the
// replace; the previous crontab stays untouched on any failure.
func (s *SystemStore) Save(ctx context.Context, content string) error {
	tmp, err := os.CreateTemp("", "trendradar-cron-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, s.bin(), tmp.Name())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	return nil
}
