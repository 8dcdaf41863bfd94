package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doridoridoriand/pingledger/internal/cli"
	"github.com/doridoridoriand/pingledger/internal/config"
	"github.com/doridoridoriand/pingledger/internal/ledger"
	"github.com/doridoridoriand/pingledger/internal/log"
	"github.com/doridoridoriand/pingledger/internal/metrics"
	"github.com/doridoridoriand/pingledger/internal/monitor"
	"github.com/doridoridoriand/pingledger/internal/ping"
	"github.com/doridoridoriand/pingledger/internal/record"
	"github.com/doridoridoriand/pingledger/internal/state"
	"github.com/doridoridoriand/pingledger/internal/ui"
)

const (
	version           = "0.1.0"
	defaultConfigPath = "config.json"
	logFileName       = "pingledger.log"
	uiQueueSize       = 64
)

var errUserQuit = errors.New("quit requested")

// app carries what a monitoring session is assembled from. Tests swap the
// prober, ledger and screen.
type app struct {
	configPath string
	overrides  config.CLIOverrides
	loader     config.Loader
	logger     *log.Logger
	stdout     io.Writer
	initLedger bool
	reload     <-chan struct{}

	newProber func(timeout time.Duration) ping.Prober
	newLedger func(cfg config.Config) (ledger.Ledger, error)
	runUI     func(ctx context.Context, cfg config.Config, store state.Store, events <-chan monitor.Event) error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pingledger", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		overrides        cli.Overrides
		flagHistory      bool
		flagFilterIP     string
		flagInitLedger   bool
		flagVersion      bool
		flagVersionShort bool
	)
	overrides.Register(fs)
	fs.BoolVar(&flagHistory, "history", false, "list recorded observations and exit")
	fs.StringVar(&flagFilterIP, "filter-ip", "", "with -history, only show records whose IP contains this text")
	fs.BoolVar(&flagInitLedger, "init-ledger", false, "create the ledger table if it does not exist")
	fs.BoolVar(&flagVersion, "version", false, "show version")
	fs.BoolVar(&flagVersionShort, "v", false, "show version")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: pingledger [options] [config-file]\n\n")
		fmt.Fprintf(stderr, "The config file defaults to %s and is created with defaults when missing.\n\n", defaultConfigPath)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if flagVersion || flagVersionShort {
		fmt.Fprintf(stdout, "pingledger version %s\n", version)
		return 0
	}

	configPath := defaultConfigPath
	if fs.NArg() > 0 {
		configPath = fs.Arg(0)
	}

	logger := log.NewLoggerTo(stderr, overrides.LogLevel.Level("info"))
	loader := config.FileLoader{}
	cfg, err := loader.LoadConfig(configPath, overrides.Build())
	logger.LogConfigLoad(err == nil, configPath, err)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	logger.SetLevel(log.ParseLevel(cfg.LogLevel))

	if flagHistory {
		return runHistory(cfg.OutputDir, flagFilterIP, stdout, stderr)
	}

	ctx, cancel := signalContext()
	defer cancel()

	reload := make(chan struct{}, 1)
	stopReload := watchReload(reload)
	defer stopReload()

	a := &app{
		configPath: configPath,
		overrides:  overrides.Build(),
		loader:     loader,
		logger:     logger,
		stdout:     stdout,
		initLedger: flagInitLedger,
		reload:     reload,
		newProber: func(timeout time.Duration) ping.Prober {
			return ping.NewExternalProber(timeout)
		},
		newLedger: newSQLLedger,
	}
	if !cfg.UIDisable {
		a.runUI = func(ctx context.Context, cfg config.Config, store state.Store, events <-chan monitor.Event) error {
			return ui.New(cfg, store).Run(ctx, events)
		}
	}

	if err := a.runMonitor(ctx, *cfg); err != nil {
		fmt.Fprintf(stderr, "pingledger: %v\n", err)
		return 1
	}
	return 0
}

// runMonitor runs the monitor loop together with its consumers until the
// context is cancelled or the user quits the TUI.
func (a *app) runMonitor(ctx context.Context, cfg config.Config) error {
	if err := cfg.EnsureOutputDir(); err != nil {
		return err
	}

	if a.runUI != nil {
		logFile, err := os.OpenFile(filepath.Join(cfg.OutputDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		a.logger.SetOutput(logFile)
	}

	addresses, err := a.newLedger(cfg)
	if err != nil {
		return err
	}
	if a.initLedger {
		a.ensureSchema(ctx, addresses)
	}

	loop := monitor.NewLoop(cfg, a.newProber(cfg.ProbeTimeout()), ledger.NewReconciler(addresses), record.NewFileStore())
	collector := metrics.NewCollector(cfg.Hostname)
	store := state.NewStore(cfg.Hostname)

	g, gctx := errgroup.WithContext(ctx)
	monitorDone := make(chan struct{})

	var uiEvents chan monitor.Event
	if a.runUI != nil {
		uiEvents = make(chan monitor.Event, uiQueueSize)
		g.Go(func() error {
			err := a.runUI(gctx, cfg, store, uiEvents)
			if errors.Is(err, context.Canceled) && gctx.Err() == nil {
				return errUserQuit
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ui: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(monitorDone)
		return a.supervise(gctx, loop, store, cfg)
	})

	g.Go(func() error {
		d := dispatcher{logger: a.logger, collector: collector, ui: uiEvents}
		if a.runUI == nil {
			d.console = a.stdout
		}
		d.run(gctx, loop.Events(), monitorDone)
		return nil
	})

	if cfg.MetricsListen != "" {
		g.Go(func() error {
			a.logger.Info("metrics listening", map[string]interface{}{"addr": cfg.MetricsListen})
			err := metrics.Serve(gctx, cfg.MetricsListen, collector)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("metrics: %w", err)
		})
	}

	err = g.Wait()
	if errors.Is(err, errUserQuit) {
		return nil
	}
	return err
}

// supervise keeps one session running and restarts it with a freshly loaded
// config whenever a reload is requested.
func (a *app) supervise(ctx context.Context, loop *monitor.Loop, store state.Store, cfg config.Config) error {
	if err := loop.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			loop.Stop()
			<-loop.Done()
			return nil
		case <-loop.Done():
			return nil
		case <-a.reload:
			next, err := a.loader.LoadConfig(a.configPath, a.overrides)
			a.logger.LogConfigLoad(err == nil, a.configPath, err)
			if err != nil {
				continue
			}
			if err := next.EnsureOutputDir(); err != nil {
				a.logger.LogError("config", err, nil)
				continue
			}
			if next.Ledger != cfg.Ledger || next.ProbeTimeoutSeconds != cfg.ProbeTimeoutSeconds {
				a.logger.Warn("database and probe timeout changes apply after a restart", nil)
			}

			loop.Stop()
			<-loop.Done()
			if err := loop.Reconfigure(*next); err != nil {
				return err
			}
			store.Reset(next.Hostname)
			cfg = *next
			if err := loop.Start(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *app) ensureSchema(ctx context.Context, addresses ledger.Ledger) {
	schema, ok := addresses.(interface {
		EnsureSchema(ctx context.Context) error
	})
	if !ok {
		return
	}
	if err := schema.EnsureSchema(ctx); err != nil {
		a.logger.LogError("ledger", err, map[string]interface{}{"op": "ensure schema"})
		return
	}
	a.logger.Info("ledger table ready", nil)
}

func newSQLLedger(cfg config.Config) (ledger.Ledger, error) {
	l, err := ledger.New(ledgerParams(cfg))
	if err != nil {
		return nil, err
	}
	return l, nil
}

func ledgerParams(cfg config.Config) ledger.Params {
	return ledger.Params{
		Driver:   cfg.Ledger.Driver,
		Host:     cfg.Ledger.Host,
		User:     cfg.Ledger.User,
		Password: cfg.Ledger.Password,
		Port:     int(cfg.Ledger.Port),
		Database: cfg.Ledger.Database,
		Table:    cfg.Ledger.Table,
		Timeout:  cfg.ProbeTimeout(),
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// watchReload turns SIGHUP into reload requests until the returned stop is called.
func watchReload(ch chan<- struct{}) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				requestReload(ch)
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func requestReload(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
