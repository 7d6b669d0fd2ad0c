package main

import (
	"conduit/internal/parser"
	"conduit/internal/process"
	"conduit/internal/svc/tracedb"
	"conduit/internal/trace"
	"conduit/internal/util"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"
)

var errUsage = errors.New("usage")

// app is one CLI invocation. interactive turns on the run summary.
type app struct {
	stdout      io.Writer
	stderr      io.Writer
	interactive bool

	configPath string
	expr       string
	flags      util.Configuration

	status process.Status
}

func main() {
	a := &app{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
	}
	os.Exit(a.execute(os.Args[1:]))
}

func (a *app) execute(args []string) int {
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(a.stderr, "conduit: %v\n", err)
		return process.ExitUsage
	}
	if a.status == "" {
		// --help or --version
		return process.ExitSuccess
	}
	return a.status.ExitCode()
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conduit [file]",
		Short: "Run a conduit program under supervision",
		Long: `Runs a conduit program. Every attempt gets a fresh arena; failed
attempts are retried up to --max-restarts times.

Exit codes: 0 success, 1 usage, 2 parse error, 3 eval error,
4 max restarts exhausted, 5 timeout.`,
		Example: `  conduit script.cd
  conduit -e 'x := 3 * 4'
  conduit --trace --trace-db runs.db script.cd`,
		Version:       fmt.Sprintf("v%s %s %s", Version, BuildDate, Commit),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}

	f := cmd.Flags()
	f.StringVarP(&a.configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	f.StringVarP(&a.expr, "eval", "e", "", "Run the given source instead of a file")
	f.StringVar(&a.flags.LogLevel, "log-level", "none", "Log level: debug, info, warn, error, none")
	f.StringVar(&a.flags.LogFile, "log-file", "", "Log file path (if not set, logs to stderr)")
	f.Uint32Var(&a.flags.MaxRestarts, "max-restarts", process.DefaultMaxRestarts, "Total attempts for retryable failures")
	f.DurationVar(&a.flags.Timeout.Duration, "timeout", 0, "Per-attempt time budget (0 disables)")
	f.DurationVar(&a.flags.RetryBackoff.Duration, "retry-backoff", 0, "Delay between attempts, multiplied by the attempt number")
	f.IntVar(&a.flags.MaxDepth, "max-depth", 0, "Call depth limit (0 uses the default)")
	f.BoolVar(&a.flags.Trace, "trace", false, "Write the trace of the final attempt to stderr as JSON lines")
	f.StringVar(&a.flags.TraceDriver, "trace-driver", tracedb.DefaultDriver, "Trace store driver: sqlite3, mysql, postgres")
	f.StringVar(&a.flags.TraceDB, "trace-db", "", "Trace store DSN; runs are saved when set")
	f.BoolVar(&a.flags.DebugJsonAST, "debug-ast", false, "Render the AST as JSON to stderr before running")
	return cmd
}

// configure layers set flags over the config file and environment.
func (a *app) configure(cmd *cobra.Command) (util.Configuration, error) {
	cfg, err := util.Load(a.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.Version, cfg.BuildDate, cfg.Commit = Version, BuildDate, Commit

	set := cmd.Flags().Changed
	if set("log-level") {
		cfg.LogLevel = a.flags.LogLevel
	}
	if set("log-file") {
		cfg.LogFile = a.flags.LogFile
	}
	if set("max-restarts") {
		cfg.MaxRestarts = a.flags.MaxRestarts
	}
	if set("timeout") {
		cfg.Timeout = a.flags.Timeout
	}
	if set("retry-backoff") {
		cfg.RetryBackoff = a.flags.RetryBackoff
	}
	if set("max-depth") {
		cfg.MaxDepth = a.flags.MaxDepth
	}
	if set("trace") {
		cfg.Trace = a.flags.Trace
	}
	if set("trace-driver") {
		cfg.TraceDriver = a.flags.TraceDriver
	}
	if set("trace-db") {
		cfg.TraceDB = a.flags.TraceDB
	}
	if set("debug-ast") {
		cfg.DebugJsonAST = a.flags.DebugJsonAST
	}
	return cfg, nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	cfg, err := a.configure(cmd)
	if err != nil {
		return err
	}

	logWriter, closeLog := a.configureLogWriter(cfg.LogFile)
	defer closeLog()
	slog.SetDefault(newLogger(logWriter, cfg.LogLevel))

	source, name, err := a.readSource(args)
	if err != nil {
		return err
	}

	if cfg.DebugJsonAST {
		a.dumpAST(source)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := []process.Option{process.WithOutput(a.stdout)}
	if cfg.MaxDepth > 0 {
		opts = append(opts, process.WithMaxDepth(cfg.MaxDepth))
	}
	sup := process.NewSupervisor(process.SupervisorConfig{
		MaxRestarts:  cfg.MaxRestarts,
		Timeout:      cfg.Timeout.Duration,
		EnableTrace:  cfg.Trace || cfg.TraceDB != "",
		RetryBackoff: cfg.RetryBackoff.Duration,
	}, opts...)

	slog.Info("running", slog.String("program", name), slog.String("version", cfg.Version))
	res := sup.Run(ctx, source)
	a.status = res.Status

	a.report(source, res)

	if cfg.Trace {
		if err := trace.NewWriter(a.stderr).Write(res.Trace...); err != nil {
			slog.Error("failed to write trace", slog.Any("error", err))
		}
	}
	if cfg.TraceDB != "" {
		a.saveRun(ctx, cfg, res)
	}
	return nil
}

func (a *app) readSource(args []string) (source, name string, err error) {
	switch {
	case a.expr != "" && len(args) > 0:
		return "", "", fmt.Errorf("%w: give a file or -e, not both", errUsage)
	case a.expr != "":
		return a.expr, "<eval>", nil
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read program: %w", err)
		}
		return string(data), args[0], nil
	}
	return "", "", fmt.Errorf("%w: no program given", errUsage)
}

func (a *app) dumpAST(source string) {
	program, diags := parser.Parse(source)
	if len(diags) > 0 {
		// the run reports them
		return
	}
	out, err := parser.RenderASTAsJSON(program)
	if err != nil {
		slog.Error("failed to render AST", slog.Any("error", err))
		return
	}
	fmt.Fprintln(a.stderr, string(out))
}

// report prints the final value on success and the failure otherwise.
func (a *app) report(source string, res process.SupervisionResult) {
	switch res.Status {
	case process.StatusSuccess:
		if !res.FinalValue.IsNone() {
			fmt.Fprintln(a.stdout, res.FinalValue.Inspect())
		}
	case process.StatusParseError:
		var parseErr *process.ParseError
		if errors.As(res.LastError, &parseErr) {
			for _, d := range parseErr.Diagnostics {
				fmt.Fprintln(a.stderr, util.SourceContext(source, d.Line, d.Column, d.Message))
			}
		}
	default:
		fmt.Fprintf(a.stderr, "%s: %v\n", res.Status, res.LastError)
	}

	if a.interactive {
		fmt.Fprintf(a.stderr, "run %s: %s after %d attempt(s) in %s\n",
			res.RunID, res.Status, res.Attempts, res.Duration)
	}
}

func (a *app) saveRun(ctx context.Context, cfg util.Configuration, res process.SupervisionResult) {
	// the run context may already be cancelled by an interrupt
	ctx = context.WithoutCancel(ctx)
	store, err := tracedb.Open(ctx, cfg.TraceDriver, cfg.TraceDB)
	if err != nil {
		slog.Error("failed to open trace store", slog.String("driver", cfg.TraceDriver), slog.Any("error", err))
		fmt.Fprintf(a.stderr, "conduit: trace store: %v\n", err)
		return
	}
	defer store.Close()

	if err := store.SaveRun(ctx, res); err != nil {
		slog.Error("failed to save run", slog.String("run_id", res.RunID.String()), slog.Any("error", err))
		fmt.Fprintf(a.stderr, "conduit: trace store: %v\n", err)
	}
}

func (a *app) configureLogWriter(logFile string) (io.Writer, func()) {
	if logFile == "" {
		return a.stderr, func() {}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(a.stderr, "failed to create log directory for '%s': %v; falling back to stderr\n", logFile, err)
		return a.stderr, func() {}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(a.stderr, "failed to open log file '%s': %v; falling back to stderr\n", logFile, err)
		return a.stderr, func() {}
	}
	return f, func() { f.Close() }
}

func newLogger(w io.Writer, level string) *slog.Logger {
	if strings.EqualFold(level, "none") || level == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     logLevelFromString(level),
	}))
}

func logLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
