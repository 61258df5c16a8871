// Package main is the entry point for the GenIP wallet client.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/genip/business/wallet"
	"github.com/fd1az/genip/business/wallet/app"
	walletDI "github.com/fd1az/genip/business/wallet/di"
	"github.com/fd1az/genip/business/wallet/domain"
	"github.com/fd1az/genip/internal/apm"
	"github.com/fd1az/genip/internal/config"
	"github.com/fd1az/genip/internal/di"
	"github.com/fd1az/genip/internal/health"
	"github.com/fd1az/genip/internal/logger"
	"github.com/fd1az/genip/internal/metrics"
	"github.com/fd1az/genip/internal/monolith"
	"github.com/fd1az/genip/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type options struct {
	configPath string
	tuiMode    bool
	connect    bool
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	connect := flag.Bool("connect", false, "CLI mode: request wallet access on start")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("genip %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	opts := options{
		configPath: *configPath,
		tuiMode:    !*cliMode,
		connect:    *connect,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !opts.tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = opts.tuiMode

	// In TUI mode, suppress logs (discard output)
	var out io.Writer = os.Stderr
	if opts.tuiMode {
		out = io.Discard
	}
	log := logger.New(out, parseLevel(cfg.App.LogLevel), cfg.App.Name, logger.SpanTraceID)
	log.Info(ctx, "starting genip",
		"version", version,
		"environment", cfg.App.Environment,
		"chain_id", cfg.Chain.ID,
	)

	stopTelemetry, err := setupTelemetry(ctx, cfg, out, log)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer stopTelemetry()

	mono := monolith.New(cfg, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mono.Close(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "shutdown", "error", err)
		}
	}()

	modules := []monolith.Module{
		&wallet.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if cfg.Health.Enabled {
		healthServer := health.NewServer(cfg.Health.Port, version, log)
		registerHealthChecks(healthServer, mono.Services())
		if err := healthServer.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "port", cfg.Health.Port)
		}
		defer healthServer.Stop(context.Background())
	}

	if opts.tuiMode {
		return runTUI(ctx, mono, modules)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	return runCLI(ctx, mono.Services(), opts.connect, log)
}

func parseLevel(s string) logger.Level {
	switch s {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	}
	return logger.LevelInfo
}

func setupTelemetry(ctx context.Context, cfg *config.Config, out io.Writer, log logger.LoggerInterface) (func(), error) {
	if !cfg.Telemetry.Enabled {
		return func() {}, nil
	}

	headers := metrics.ParseHeaders(cfg.Telemetry.OTLPHeaders)

	traceProvider, err := apm.NewTraceProvider(ctx, apm.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Provider:    apm.Provider(cfg.Telemetry.Exporter),
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     headers,
		Writer:      out,
	}, log)
	if err != nil {
		return nil, err
	}

	metricOpts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	if cfg.Telemetry.Exporter == string(apm.OTLPProvider) && cfg.Telemetry.OTLPEndpoint != "" {
		metricOpts = append(metricOpts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.Telemetry.OTLPEndpoint, headers,
				strings.HasPrefix(cfg.Telemetry.OTLPEndpoint, "http://"))))
	}
	meterProvider, err := metrics.NewMetricProvider(ctx, metricOpts...)
	if err != nil {
		traceProvider.Stop()
		return nil, err
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	promServer := metrics.NewPromServer(log, metrics.WithPort(strconv.Itoa(port)))
	promServer.Start()

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		promServer.Stop(stopCtx)
		meterProvider.Shutdown(stopCtx)
		traceProvider.Stop()
	}, nil
}

// registerHealthChecks resolves wallet services lazily, so checks report
// unhealthy rather than panic before the module has started.
func registerHealthChecks(s *health.Server, sr di.ServiceRegistry) {
	s.RegisterCheck("wallet_provider", false, func(ctx context.Context) (bool, string) {
		if !walletDI.GetProvider(sr).Available() {
			return false, "no wallet provider"
		}
		return true, ""
	})
	s.RegisterCheck("chain_rpc", true, func(ctx context.Context) (bool, string) {
		if err := walletDI.GetChainReader(sr).Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})
	s.RegisterCheck("session_store", true, func(ctx context.Context) (bool, string) {
		pinger, ok := walletDI.GetMarkers(sr).(interface{ Ping(context.Context) error })
		if !ok {
			return true, "local"
		}
		if err := pinger.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})
}

// walletController adapts the bridge and guard for the dashboard.
type walletController struct {
	*app.Bridge
	guard *app.Guard
}

func (c walletController) EnsureReady(ctx context.Context) bool {
	return c.guard.EnsureReady(ctx)
}

func runCLI(ctx context.Context, sr di.ServiceRegistry, connect bool, log *logger.Logger) error {
	bridge := walletDI.GetBridge(sr)

	states := make(chan domain.ConnectionState, 16)
	sub := bridge.Tracker().Subscribe(states)
	defer sub.Unsubscribe()

	logState(ctx, log, bridge.State())
	if connect {
		bridge.Connect(ctx)
		guard := walletDI.GetGuard(sr)
		if !guard.EnsureReady(ctx) {
			log.Info(ctx, "wallet not ready",
				"needs_connection", guard.NeedsConnection(),
				"needs_network_switch", guard.NeedsNetworkSwitch())
		}
	}

	for {
		select {
		case st := <-states:
			logState(ctx, log, st)
		case <-ctx.Done():
			log.Info(ctx, "shutting down")
			return nil
		}
	}
}

func logState(ctx context.Context, log *logger.Logger, st domain.ConnectionState) {
	args := []any{
		"connected", st.IsConnected,
		"connecting", st.IsConnecting,
		"address", st.FormatAddress(domain.DefaultAddressChars),
		"correct_network", st.IsCorrectNetwork,
		"balance", st.Balance,
	}
	if st.ChainID != nil {
		args = append(args, "chain_id", *st.ChainID)
	}
	if st.Error != "" {
		args = append(args, "error", st.Error, "code", st.ErrorCode)
	}
	log.Info(ctx, "wallet state", args...)
}

func runTUI(ctx context.Context, mono interface {
	Services() di.ServiceRegistry
	StartModules(context.Context, ...monolith.Module) error
}, modules []monolith.Module) error {
	cfg := mono.Services().Get("config").(*config.Config)

	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	p := tea.NewProgram(ui.New(ctx, wallet.ChainFromConfig(cfg.Chain)), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		ui.Send(ui.StartupMsg{Step: "config", Status: "done"})
		ui.Send(ui.StartupMsg{Step: "wallet", Status: "connecting"})
		ui.Send(ui.StartupMsg{Step: "chain", Status: "connecting"})

		if err := mono.StartModules(ctx, modules...); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		sr := mono.Services()
		bridge := walletDI.GetBridge(sr)
		ui.Send(ui.StartupMsg{Step: "session", Status: "done"})

		states := make(chan domain.ConnectionState, 16)
		sub := bridge.Tracker().Subscribe(states)
		defer sub.Unsubscribe()

		ui.Send(ui.ReadyMsg{Controller: walletController{Bridge: bridge, guard: walletDI.GetGuard(sr)}})
		ui.Send(ui.StateMsg{State: bridge.State()})

		pollDependencies(ctx, sr)
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case st := <-states:
				ui.Send(ui.StateMsg{State: st})
			case <-ticker.C:
				pollDependencies(ctx, sr)
			case <-ctx.Done():
				errCh <- nil
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func pollDependencies(ctx context.Context, sr di.ServiceRegistry) {
	available := walletDI.GetProvider(sr).Available()
	ui.Send(ui.ConnectionStatusMsg{Name: "Wallet", Connected: available})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	chainErr := walletDI.GetChainReader(sr).Ping(pingCtx)
	ui.Send(ui.ConnectionStatusMsg{Name: "Story RPC", Connected: chainErr == nil})

	ui.Send(ui.StartupMsg{Step: "wallet", Status: stepStatus(available)})
	ui.Send(ui.StartupMsg{Step: "chain", Status: stepStatus(chainErr == nil)})
}

func stepStatus(ok bool) string {
	if ok {
		return "connected"
	}
	return "failed"
}
