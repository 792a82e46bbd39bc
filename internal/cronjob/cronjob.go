// Package cronjob registers the daily stack-restart job in the
// invoking user's crontab, exactly once.
//
// The registrar only ever appends: existing lines (including comments
// and unrelated entries) are preserved verbatim and in order. A line
// already starting with "<schedule> cd <workdir>" counts as the job
// being registered, even if the rest of the command differs. That
// prefix check is a deliberately coarse dedup policy: editing the
// command body by hand does not cause a second entry.
package cronjob

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

// fiveField accepts classic crontab expressions (minute hour dom month dow).
var fiveField = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// DefaultSchedule restarts the stack at 06:00 every day.
const DefaultSchedule = "0 6 * * *"

// DefaultVerbs is the fixed stop / rebuild / run-until-exit sequence
// handed to the container runner. Errors inside the job body are the
// runner's concern; the crontab line does not check between verbs.
func DefaultVerbs() [][]string {
	return [][]string{
		{"compose", "down"},
		{"compose", "build"},
		{"compose", "up", "--abort-on-container-exit"},
	}
}

// Job describes the entry to register. The command line is composed
// from this structure; callers never pass a pre-built string.
type Job struct {
	// Schedule is a five-field cron expression.
	Schedule string
	// WorkDir is the absolute directory the job cds into.
	WorkDir string
	// Runner is the container runner binary. Relative names are
	// resolved on PATH during registration.
	Runner string
	// LogPath receives the job's combined output, append mode.
	LogPath string
	// Verbs are argument sequences run through Runner, in order.
	// Empty means DefaultVerbs().
	Verbs [][]string
	// Join is the shell operator between commands. Empty means "&&".
	Join string
}

// prefix is the dedup identity: schedule expression plus the cd into
// the working directory.
func (j Job) prefix() string { return j.Schedule + " cd " + j.WorkDir }

// line composes the full crontab entry. runner must already be resolved
// to an absolute path.
func (j Job) line(runner string) string {
	verbs := j.Verbs
	if len(verbs) == 0 {
		verbs = DefaultVerbs()
	}
	join := j.Join
	if join == "" {
		join = "&&"
	}

	parts := make([]string, 0, len(verbs)+1)
	parts = append(parts, "cd "+j.WorkDir)
	for _, v := range verbs {
		parts = append(parts, strings.Join(append([]string{runner}, v...), " "))
	}

	body := strings.Join(parts, " "+join+" ")
	if j.LogPath != "" {
		body += " >> " + j.LogPath + " 2>&1"
	}
	return j.Schedule + " " + body
}

// Result reports what a registration did.
type Result struct {
	// Installed is false when a matching entry already existed.
	Installed bool
	// Line is the entry that was installed, or the existing matching
	// line when Installed is false.
	Line string
}

// Registrar installs a Job into a Store.
type Registrar struct {
	store Store
	log   logx.Logger
}

func New(store Store, log logx.Logger) *Registrar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registrar{store: store, log: log}
}

// Register ensures the job exists in the store exactly once.
//
// Running it twice with identical parameters leaves a single matching
// entry and reports Installed=false the second time. All validation
// happens before the store is touched; on any error the store keeps its
// pre-invocation content.
func (r *Registrar) Register(ctx context.Context, job Job) (Result, error) {
	runner, err := r.validate(&job)
	if err != nil {
		return Result{}, err
	}

	content, err := r.store.Load(ctx)
	if err != nil {
		return Result{}, &StoreError{Op: "load", Err: err}
	}

	prefix := job.prefix()
	for _, ln := range strings.Split(content, "\n") {
		if strings.HasPrefix(ln, prefix) {
			r.log.Info("cron entry already registered",
				logx.String("schedule", job.Schedule),
				logx.String("workdir", job.WorkDir))
			return Result{Installed: false, Line: ln}, nil
		}
	}

	line := job.line(runner)
	next := content
	if next != "" && !strings.HasSuffix(next, "\n") {
		next += "\n"
	}
	next += line + "\n"

	if err := r.store.Save(ctx, next); err != nil {
		return Result{}, &StoreError{Op: "save", Err: err}
	}

	r.log.Info("cron entry installed", logx.String("line", line))
	return Result{Installed: true, Line: line}, nil
}

// validate checks every prerequisite and resolves the runner to an
// absolute executable path. Nothing here mutates any state.
func (r *Registrar) validate(job *Job) (string, error) {
	if _, err := fiveField.Parse(job.Schedule); err != nil {
		return "", &ConfigError{Reason: fmt.Sprintf("invalid schedule %q", job.Schedule), Err: err}
	}

	if !filepath.IsAbs(job.WorkDir) {
		return "", &ConfigError{Reason: fmt.Sprintf("working directory %q is not absolute", job.WorkDir)}
	}
	if fi, err := os.Stat(job.WorkDir); err != nil {
		return "", &ConfigError{Reason: "working directory not accessible", Err: err}
	} else if !fi.IsDir() {
		return "", &ConfigError{Reason: fmt.Sprintf("%q is not a directory", job.WorkDir)}
	}

	runner := job.Runner
	if runner == "" {
		return "", &ConfigError{Reason: "runner not found"}
	}
	if !filepath.IsAbs(runner) {
		resolved, err := exec.LookPath(runner)
		if err != nil {
			return "", &ConfigError{Reason: "runner not found", Err: err}
		}
		runner = resolved
	}
	fi, err := os.Stat(runner)
	if err != nil {
		return "", &ConfigError{Reason: "runner not found", Err: err}
	}
	if fi.IsDir() || fi.Mode().Perm()&0o111 == 0 {
		return "", &ConfigError{Reason: fmt.Sprintf("runner %q is not executable", runner)}
	}
	return runner, nil
}
