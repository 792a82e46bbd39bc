package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/liuyezhou/TrendRadar/internal/app"
	"github.com/liuyezhou/TrendRadar/internal/cronjob"
	"github.com/liuyezhou/TrendRadar/pkg/logx"
)

const usage = `usage: trendradar <command> [flags]

commands:
  run           execute one crawl-and-report cycle
  serve         run the data service until interrupted
  install-cron  register the daily run in the user's crontab
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd := os.Args[1]; cmd {
	case "run":
		err = runPipeline(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "install-cron":
		err = runInstallCron(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode keeps configuration mistakes distinguishable from crontab
// access failures in scripts.
func exitCode(err error) int {
	var cfgErr *cronjob.ConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	var storeErr *cronjob.StoreError
	if errors.As(err, &storeErr) {
		return 3
	}
	return 1
}

func runPipeline(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config/config.yaml", "path to config yaml")
	_ = fs.Parse(args)

	a, err := app.New(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.RunOnce(ctx)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./config/config.yaml", "path to config yaml")
	_ = fs.Parse(args)

	a, err := app.New(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func runInstallCron(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("install-cron", flag.ExitOnError)
	schedule := fs.String("schedule", cronjob.DefaultSchedule, "five-field cron expression")
	workdir := fs.String("workdir", "", "project directory the job runs in (default: current directory)")
	runner := fs.String("runner", "docker", "container runtime executable")
	logPath := fs.String("log", "", "file the job appends its output to (default: <workdir>/run.log)")
	_ = fs.Parse(args)

	dir := *workdir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return err
		}
	}
	lp := *logPath
	if lp == "" {
		lp = filepath.Join(dir, "run.log")
	}

	log := logx.NewConsole("info")
	reg := cronjob.New(&cronjob.SystemStore{}, log)
	res, err := reg.Register(ctx, cronjob.Job{
		Schedule: *schedule,
		WorkDir:  dir,
		Runner:   *runner,
		LogPath:  lp,
	})
	if err != nil {
		return err
	}
	if res.Installed {
		fmt.Println("cron job installed:", res.Line)
	} else {
		fmt.Println("cron job already registered; nothing to do")
	}
	return nil
}
