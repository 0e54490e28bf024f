// Command ingestd is the document-ingestion engine's process entrypoint.
// Grounded on the teacher's cmd/lci/main.go: a urfave/cli/v2 app with a
// loadConfigWithOverrides-style helper that layers CLI flags on top of the
// loaded config before any component is constructed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/ingestd/internal/chunker"
	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/errctl"
	"github.com/standardbeagle/ingestd/internal/errtypes"
	"github.com/standardbeagle/ingestd/internal/extract"
	"github.com/standardbeagle/ingestd/internal/filter"
	"github.com/standardbeagle/ingestd/internal/lock"
	"github.com/standardbeagle/ingestd/internal/orchestrator"
	"github.com/standardbeagle/ingestd/internal/process"
	"github.com/standardbeagle/ingestd/internal/scanner"
	"github.com/standardbeagle/ingestd/internal/store"
	"github.com/standardbeagle/ingestd/internal/worker"
)

// loadConfigWithOverrides loads configuration for root and applies CLI flag
// overrides, mirroring the teacher's function of the same name.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", root, err)
	}

	if includes := c.StringSlice("include"); len(includes) > 0 {
		cfg.Filter.IncludePatterns = includes
	}
	if excludes := c.StringSlice("exclude"); len(excludes) > 0 {
		cfg.Filter.ExcludePatterns = append(cfg.Filter.ExcludePatterns, excludes...)
	}
	if rootFlag := c.String("root"); rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}
	if mw := c.Int("max-workers"); mw > 0 {
		cfg.Worker.MaxWorkers = mw
	}
	if mcd := c.Int("max-concurrent-dirs"); mcd > 0 {
		cfg.Orchestrator.MaxConcurrentDirectories = mcd
	}
	if pi := c.Int("poll-interval"); pi > 0 {
		cfg.Orchestrator.PollIntervalSec = pi
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(c *cli.Context) (func(), error) {
	switch c.String("log-level") {
	case "silent":
		debug.SetLevel(debug.LevelSilent)
	case "error":
		debug.SetLevel(debug.LevelError)
	case "warn":
		debug.SetLevel(debug.LevelWarn)
	case "debug":
		debug.SetLevel(debug.LevelDebug)
	default:
		debug.SetLevel(debug.LevelInfo)
	}

	if logFile := c.String("log-file"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		debug.SetOutput(f)
		return func() { f.Close() }, nil
	}
	return func() {}, nil
}

// pipeline bundles every component a subcommand needs, built once per run
// from a single resolved config (mirrors the teacher's single MasterIndex
// constructed in the Before hook and reused by every command action).
type pipeline struct {
	cfg   *config.Config
	locks *lock.Manager
	scan  func() *scanner.Scanner
	proc  *process.Processor
	errs  *errctl.Controller
}

func buildPipeline(cfg *config.Config) (*pipeline, error) {
	flt, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}
	locks := lock.New()
	scanFactory := func() *scanner.Scanner {
		return scanner.New(cfg.Scanner, flt, locks)
	}
	ch, err := chunker.New(cfg.Chunker)
	if err != nil {
		return nil, fmt.Errorf("failed to build chunker: %w", err)
	}
	proc := process.New(extract.NewRegistry(), ch, store.NewMemoryVectorStore(), store.NewMemoryMetadataStore())
	errs := errctl.New(errctl.Config{
		MaxRetryAttempts:  cfg.ErrorControl.MaxRetryAttempts,
		BaseDelaySec:      cfg.ErrorControl.BaseDelaySec,
		BackoffMultiplier: cfg.ErrorControl.BackoffMultiplier,
		ErrorThreshold:    cfg.ErrorControl.ErrorThreshold,
	})
	// A re-parse of the same malformed content almost never succeeds; cap it
	// at one quick retry instead of the slower general-purpose backoff.
	errs.RegisterStrategy(errtypes.KindParseFailure, errctl.Strategy{MaxRetries: 1, RetryDelaySec: 1})
	return &pipeline{cfg: cfg, locks: locks, scan: scanFactory, proc: proc, errs: errs}, nil
}

func main() {
	app := &cli.App{
		Name:  "ingestd",
		Usage: "directory-scanning, AST-aware document ingestion engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file path (unused placeholder for compatibility; config is loaded from --root)"},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Project root directory to ingest (overrides config)"},
			&cli.StringSliceFlag{Name: "include", Usage: "Include files matching glob patterns"},
			&cli.StringSliceFlag{Name: "exclude", Usage: "Exclude files matching glob patterns"},
			&cli.IntFlag{Name: "max-workers", Usage: "Maximum concurrent file-processing workers"},
			&cli.IntFlag{Name: "max-concurrent-dirs", Usage: "Maximum directories processed concurrently"},
			&cli.IntFlag{Name: "poll-interval", Usage: "Rescan-on-interval cadence in seconds"},
			&cli.BoolFlag{Name: "watch", Usage: "Keep rescanning every poll-interval instead of exiting after one pass"},
			&cli.StringFlag{Name: "log-level", Usage: "One of silent, error, warn, info, debug", Value: "info"},
			&cli.StringFlag{Name: "log-file", Usage: "Write logs to this file instead of stderr"},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Ingest one or more directories",
				ArgsUsage: "<dirs...>",
				Action:    runCommand,
			},
			{
				Name:      "scan",
				Usage:     "Dry-run: scan a directory and print file counts without processing",
				ArgsUsage: "<dir>",
				Action:    scanCommand,
			},
			{
				Name:      "lock",
				Usage:     "Inspect or sweep directory locks",
				ArgsUsage: "<dir> {status|sweep}",
				Action:    lockCommand,
			},
			{
				Name:      "worker-pool",
				Usage:     "Ingest directories through a supervised pool of OS-process workers (spec C8 WorkerSupervisor)",
				ArgsUsage: "<dirs...>",
				Action:    workerPoolCommand,
			},
			{
				Name:      "worker-run",
				Usage:     "Internal: run the WorkerRuntime loop for one directory in this process (spawned by worker-pool)",
				ArgsUsage: "<dir>",
				Hidden:    true,
				Action:    workerRunCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(c *cli.Context) error {
	closeLog, err := setupLogging(c)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.NArg() == 0 {
		return cli.Exit("usage: ingestd run <dirs...>", 1)
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	o := orchestrator.New(cfg.Orchestrator, p.scan, p.proc, p.locks, p.errs)
	dirs := c.Args().Slice()

	if c.Bool("watch") {
		return runWatch(o, cfg, dirs)
	}

	statuses := o.ProcessDirectories(context.Background(), dirs)

	failed := false
	for _, st := range statuses {
		printDirectoryStatus(st)
		if st.Phase == orchestrator.PhaseFailed {
			failed = true
		}
	}

	if failed {
		return cli.Exit("one or more directories failed to ingest", 2)
	}
	return nil
}

func printDirectoryStatus(st orchestrator.DirectoryStatus) {
	fmt.Printf("%s: phase=%s found=%d processed=%d failed=%d chunks=%d\n",
		st.Directory, st.Phase, st.FilesFound, st.FilesProcessed, st.FilesFailed, st.ChunksCreated)
}

// runWatch keeps rescanning dirs on cfg.Orchestrator.PollIntervalSec until
// SIGINT/SIGTERM, mirroring the teacher's signal.Notify + cancelable-context
// shutdown in cmd/lci/main.go's MCP server loop.
func runWatch(o *orchestrator.Orchestrator, cfg *config.Config, dirs []string) error {
	interval := time.Duration(cfg.Orchestrator.PollIntervalSec) * time.Second
	s := orchestrator.NewScheduler(o, interval, dirs)
	s.OnTick(func(statuses []orchestrator.DirectoryStatus) {
		for _, st := range statuses {
			printDirectoryStatus(st)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	statuses := o.ProcessDirectories(ctx, dirs)
	for _, st := range statuses {
		printDirectoryStatus(st)
	}

	s.Start(ctx)
	sig := <-sigChan
	debug.LogInfo("received signal %v, stopping watch loop", sig)
	s.Stop()
	return nil
}

func scanCommand(c *cli.Context) error {
	closeLog, err := setupLogging(c)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.NArg() != 1 {
		return cli.Exit("usage: ingestd scan <dir>", 1)
	}
	dir := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	flt, err := filter.New(cfg.Filter)
	if err != nil {
		return err
	}
	s := scanner.New(cfg.Scanner, flt, lock.New())

	files, err := s.Scan(context.Background(), dir, nil)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.SizeBytes
	}
	fmt.Printf("%s: %d files, %d bytes\n", dir, len(files), totalSize)
	return nil
}

func lockCommand(c *cli.Context) error {
	closeLog, err := setupLogging(c)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.NArg() != 2 {
		return cli.Exit("usage: ingestd lock <dir> {status|sweep}", 1)
	}
	dir := c.Args().Get(0)
	action := c.Args().Get(1)

	locks := lock.New()
	switch action {
	case "status":
		lk, err := locks.Inspect(dir)
		if err != nil {
			return fmt.Errorf("lock inspect failed: %w", err)
		}
		if lk == nil {
			fmt.Printf("%s: no lock\n", dir)
			return nil
		}
		fmt.Printf("%s: locked by pid=%d since=%s\n", dir, lk.ProcessID, lk.CreatedAt)
		return nil
	case "sweep":
		removed := locks.SweepOrphans([]string{dir})
		fmt.Printf("%s: removed %d orphaned lock(s)\n", dir, len(removed))
		return nil
	default:
		return cli.Exit(fmt.Sprintf("unknown lock action %q (expected status or sweep)", action), 1)
	}
}

// buildWorkerCommandFactory returns the worker.CommandFactory the Supervisor
// uses to spawn one real OS child process per directory: a re-exec of this
// same binary into the hidden worker-run subcommand (spec §4.8 Start:
// "spawn a child process running the WorkerRuntime"), the same self-re-exec
// shape the teacher's tests drive via a pre-built testBinaryPath
// (cmd/lci/main_mcp_test.go) rather than a fork/clone syscall.
func buildWorkerCommandFactory(cfg *config.Config) (worker.CommandFactory, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable path for worker re-exec: %w", err)
	}
	return func(ctx context.Context, dir string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, exe, "--root", cfg.Project.Root, "worker-run", dir)
		cmd.Env = os.Environ()
		return cmd, nil
	}, nil
}

// workerPoolCommand implements the CLI surface over C8 WorkerSupervisor
// (spec §4.8): start one real child-process worker per directory (gated by
// max_workers), run the health monitor, and block until every worker has
// reached a terminal state or the process receives SIGINT/SIGTERM.
func workerPoolCommand(c *cli.Context) error {
	closeLog, err := setupLogging(c)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.NArg() == 0 {
		return cli.Exit("usage: ingestd worker-pool <dirs...>", 1)
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	cmdFactory, err := buildWorkerCommandFactory(cfg)
	if err != nil {
		return err
	}

	locks := lock.New()
	sup := worker.NewSupervisor(cfg.Worker, cmdFactory, locks, lock.OSProcessProbe{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sup.StartHealthMonitor(ctx)
	defer sup.StopHealthMonitor()

	dirs := c.Args().Slice()
	pending := append([]string{}, dirs...)
	var started int

	for len(pending) > 0 {
		dir := pending[0]
		info, err := sup.Start(ctx, dir)
		if err != nil {
			var classified *errtypes.Error
			if errors.As(err, &classified) && classified.Kind == errtypes.KindResourceLimit {
				// max_workers reached: wait for a slot to free and retry this dir.
				time.Sleep(200 * time.Millisecond)
				select {
				case sig := <-sigChan:
					debug.LogInfo("worker-pool: received signal %v while waiting for a worker slot", sig)
					sup.StopAllActive()
					return cli.Exit("interrupted", 130)
				default:
				}
				continue
			}
			debug.LogWarn("worker-pool: %s: giving up, start failed: %v", dir, err)
			pending = pending[1:]
			continue
		}
		fmt.Printf("%s: started worker=%s pid=%d\n", dir, info.WorkerID, info.ProcessID)
		pending = pending[1:]
		started++
	}

	fmt.Printf("worker-pool: %d worker(s) started\n", started)

	for {
		active := sup.Active()
		if len(active) == 0 {
			break
		}
		select {
		case sig := <-sigChan:
			debug.LogInfo("worker-pool: received signal %v, stopping all workers", sig)
			sup.StopAllActive()
			return cli.Exit("interrupted", 130)
		case <-time.After(300 * time.Millisecond):
		}
	}

	failed := false
	for _, info := range sup.History() {
		fmt.Printf("%s: worker=%s pid=%d status=%s exit_code=%d files_processed=%d files_failed=%d\n",
			info.Directory, info.WorkerID, info.ProcessID, info.Status, info.ExitCode, info.FilesProcessed, info.FilesFailed)
		if info.Status == worker.StateFailed {
			failed = true
		}
	}

	if failed {
		return cli.Exit("one or more workers failed", 2)
	}
	return nil
}

// workerRunCommand is the hidden child-process entrypoint: it is exec'd by
// workerPoolCommand (via buildWorkerCommandFactory), builds its own pipeline
// from the same --root config, and drives one WorkerRuntime loop to
// completion, reporting Status snapshots on stdout for the parent
// Supervisor to read (spec §4.7).
func workerRunCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ingestd worker-run <dir>", 1)
	}
	dir := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	id := fmt.Sprintf("pid-%d", os.Getpid())
	rt := worker.New(id, dir, cfg.Worker, p.scan(), p.proc, nil)

	go func() {
		if _, ok := <-sigChan; ok {
			rt.Cancel()
		}
	}()

	runErr := rt.RunChild(ctx, os.Stdout)

	final := rt.Status()
	if runErr != nil || final.State == worker.StateFailed {
		return cli.Exit(fmt.Sprintf("worker-run failed: %v", runErr), 1)
	}
	return nil
}
