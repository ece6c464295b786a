package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rawload/internal/config"
	"rawload/internal/dataset"
	"rawload/internal/loader"
	"rawload/internal/logging"
	"rawload/internal/metrics"
	"rawload/internal/metrics/datadog"
	"rawload/internal/storage"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// runner is the part of *loader.Loader the commands use.
type runner interface {
	Load(ctx context.Context, repo storage.Repository, ds []dataset.Descriptor) (loader.Summary, error)
	Inspect(ctx context.Context, ds []dataset.Descriptor) ([]loader.Schema, error)
	Verify(ctx context.Context, repo storage.Repository, ds []dataset.Descriptor) ([]loader.Check, error)
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	loadConfig  func(path string) (config.Config, error)
	connect     func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	initMetrics  func(ctx context.Context, jobName, backendName string, tags []string) (func(), error)
	flushMetrics func() error
	newRunner    func(opts loader.Options) runner
	newRunID     func() string
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:   config.Load,
		connect:      loader.Connect,
		initMetrics:  initMetrics,
		flushMetrics: metrics.Flush,
		newRunner:    func(opts loader.Options) runner { return loader.New(opts) },
		newRunID:     uuid.NewString,
	}
}

// runMain executes the command line and returns the exit code. Errors are
// printed to stderr; results go to stdout.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	a := &app{stdout: stdout, stderr: stderr, deps: deps}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	a.paint(color.FgRed, color.Bold).Fprintf(stderr, "error: %v\n", err)
	return ExitCodeForError(err)
}

type app struct {
	stdout, stderr io.Writer
	deps           appDeps

	configPath string
	verbose    bool
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rawload",
		Short: "Load the Olist CSV files into a database, one table per file",
		Long: `rawload reads each configured CSV file, infers column types and replaces
the matching table (raw_<dataset> by default) in the target database.

Configuration comes from rawload.yaml (or --config), .env files and RAWLOAD_*
environment variables. DATABASE_URL is used when no DSN is configured.

Exit Codes:
  0  - Success
  1  - General error (verify mismatch, interrupted)
  2  - CLI usage error
  3  - Panic
  10 - Invalid configuration
  11 - Database connection failed
  12 - Source file missing or unreadable
  13 - Source file malformed
  14 - Database write failed`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runLoad,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ./rawload.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(
		&cobra.Command{
			Use:   "load",
			Short: "Replace every configured table with the contents of its file (default)",
			Args:  usageArgs(cobra.NoArgs),
			RunE:  a.runLoad,
		},
		&cobra.Command{
			Use:   "inspect",
			Short: "Parse every file and print the inferred tables without connecting",
			Args:  usageArgs(cobra.NoArgs),
			RunE:  a.runInspect,
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Check that every table matches its file's columns and row count",
			Args:  usageArgs(cobra.NoArgs),
			RunE:  a.runVerify,
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration (password masked)",
			Args:  usageArgs(cobra.NoArgs),
			RunE:  a.runConfig,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  usageArgs(cobra.NoArgs),
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(a.stdout, "rawload %s (%s, %s) %s/%s\n", version, commit, date, runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return root
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

func (a *app) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if !logging.IsTerminal(a.stdout) {
		c.DisableColor()
	}
	return c
}

// session is the validated configuration shared by the commands.
type session struct {
	cfg    config.Config
	ds     []dataset.Descriptor
	log    logging.Logger
	runner runner
	runID  string
}

func (a *app) open() (*session, error) {
	cfg, err := a.deps.loadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := cfg.Descriptors()
	if err != nil {
		return nil, err
	}
	popt, err := cfg.ParserOptions()
	if err != nil {
		return nil, err
	}

	log := logging.NewConsoleLogger(a.stderr, a.verbose)
	return &session{
		cfg: cfg,
		ds:  ds,
		log: log,
		runner: a.deps.newRunner(loader.Options{
			Parser: popt,
			Logger: log,
		}),
		runID: a.deps.newRunID(),
	}, nil
}

func (a *app) runLoad(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := a.open()
	if err != nil {
		return err
	}
	s.log.Info("run_id=%s job=%s storage=%s datasets=%d", s.runID, s.cfg.Job, s.cfg.Storage.Kind, len(s.ds))
	s.log.Verbose("dsn=%s", config.MaskDSN(s.cfg.Storage.DSN))

	tags := append(datadog.ParseTagsCSV(s.cfg.Metrics.Tags), "run_id:"+s.runID)
	cleanup, err := a.deps.initMetrics(ctx, s.cfg.Job, s.cfg.Metrics.Backend, tags)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer cleanup()

	repo, err := a.deps.connect(ctx, s.cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer repo.Close()

	sum, err := s.runner.Load(ctx, repo, s.ds)
	// Submit what the run produced, including the tables written before a failure.
	if ferr := a.deps.flushMetrics(); ferr != nil {
		s.log.Error("run_id=%s stage=metrics error=%v", s.runID, ferr)
	}
	for _, r := range sum.Results {
		fmt.Fprintf(a.stdout, "%-16s -> %-40s %9d rows %3d cols\n", r.Dataset.Name, r.Dataset.Table, r.Rows, r.Columns)
	}
	if err != nil {
		return err
	}

	s.log.Info("run_id=%s tables=%d rows=%d duration=%s", s.runID, len(sum.Results), sum.Rows(), sum.Duration.Truncate(time.Millisecond))
	a.paint(color.FgGreen).Fprintln(a.stdout, "ok")
	return nil
}

func (a *app) runInspect(cmd *cobra.Command, _ []string) error {
	s, err := a.open()
	if err != nil {
		return err
	}

	schemas, err := s.runner.Inspect(cmd.Context(), s.ds)
	bold := a.paint(color.Bold)
	for _, sc := range schemas {
		bold.Fprintf(a.stdout, "%s -> %s (%d rows)\n", sc.Dataset.Name, sc.Spec.Name, sc.Rows)
		for _, c := range sc.Spec.Columns {
			fmt.Fprintf(a.stdout, "  %-40s %s\n", c.Name, c.Type)
		}
	}
	return err
}

func (a *app) runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := a.open()
	if err != nil {
		return err
	}

	repo, err := a.deps.connect(ctx, s.cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer repo.Close()

	checks, err := s.runner.Verify(ctx, repo, s.ds)
	okMark, badMark := a.paint(color.FgGreen), a.paint(color.FgRed)
	for _, c := range checks {
		switch {
		case c.Missing:
			badMark.Fprintf(a.stdout, "MISSING  %s (%s)\n", c.Dataset.Table, c.Dataset.Name)
		case !c.OK():
			badMark.Fprintf(a.stdout, "MISMATCH %s: rows %d, want %d; columns %v, want %v\n",
				c.Dataset.Table, c.GotRows, c.WantRows, c.GotColumns, c.WantColumns)
		default:
			okMark.Fprintf(a.stdout, "OK       %s (%d rows)\n", c.Dataset.Table, c.GotRows)
		}
	}
	if err != nil {
		return err
	}
	a.paint(color.FgGreen).Fprintln(a.stdout, "ok")
	return nil
}

func (a *app) runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := a.deps.loadConfig(a.configPath)
	if err != nil {
		return err
	}
	out, err := config.Render(cfg)
	if err != nil {
		return err
	}
	if _, err := a.stdout.Write(out); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Join(errors.New("configuration printed above is not usable"), err)
	}
	return nil
}
