// Command calmd serves lazy-mint claims over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"xdao.co/calm/chain"
	"xdao.co/calm/claim"
	"xdao.co/calm/config"
	"xdao.co/calm/ledger/registry"
	"xdao.co/calm/metrics"
	"xdao.co/calm/rpc"

	_ "xdao.co/calm/ledger/registry/builtin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("calmd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "JSON config file (default: built-in development config)")
	listen := fs.String("listen", "", "gRPC listen address (overrides config)")
	metricsListen := fs.String("metrics-listen", "", "Prometheus listen address (overrides config)")
	backend := fs.String("ledger", "", "Ledger backend name (overrides config)")
	listBackends := fs.Bool("list-backends", false, "List supported ledger backends and exit")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	devFaucet := fs.Bool("dev-faucet", false, "Enable the unauthenticated faucet (development only)")

	registry.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range registry.List() {
			if b.Description == "" {
				_, _ = fmt.Fprintf(stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *metricsListen != "" {
		cfg.MetricsListen = *metricsListen
	}
	if *backend != "" {
		cfg.Ledger.Backend = *backend
	}
	if *devFaucet {
		cfg.Faucet.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if cfg.Faucet.Enabled {
		logger.Warn("faucet enabled: any caller can mint native funds")
	}
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("calmd stopped", "error", err)
		return 1
	}
	return 0
}

// node assembles the claim service described by cfg.
func node(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*rpc.Server, func() error, error) {
	domain, err := cfg.Domain()
	if err != nil {
		return nil, nil, err
	}
	account, err := cfg.AccountAddress()
	if err != nil {
		return nil, nil, err
	}
	collector, err := cfg.CollectorAddress()
	if err != nil {
		return nil, nil, err
	}
	cost, err := cfg.CostWei()
	if err != nil {
		return nil, nil, err
	}
	faucetMax, err := cfg.FaucetMax()
	if err != nil {
		return nil, nil, err
	}
	attester, err := cfg.OpenAttester()
	if err != nil {
		return nil, nil, err
	}
	meta, err := cfg.Metadata.Open()
	if err != nil {
		return nil, nil, err
	}

	store, closeFn, err := cfg.OpenLedger()
	if err != nil {
		return nil, nil, err
	}
	exec, err := claim.New(claim.Config{
		Domain:  domain,
		Store:   store,
		Account: account,
		Logger:  logger.With("component", "claim"),
	})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	sub, err := chain.NewSubmitter(chain.Config{
		Executor:  exec,
		Store:     store,
		Cost:      cost,
		Collector: collector,
		Attester:  attester,
		Metrics:   m,
		Logger:    logger.With("component", "chain"),
		Faucet:    cfg.Faucet.Enabled,
		FaucetMax: faucetMax,
	})
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return &rpc.Server{Submitter: sub, Metadata: meta, Symbol: cfg.Token.Symbol, Metrics: m}, closeFn, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	m := metrics.New()
	srv, closeFn, err := node(cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeFn()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	defer lis.Close()

	s := grpc.NewServer()
	rpc.RegisterClaimsServer(s, srv)

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		s.GracefulStop()
	}()

	d, _ := cfg.Domain()
	logger.Info("calmd listening",
		"addr", lis.Addr().String(), "ledger", cfg.Ledger.Backend,
		"name", d.Name, "symbol", cfg.Token.Symbol, "chain_id", d.ChainID.String(),
		"contract", d.VerifyingContract.Hex(), "attester", srv.Submitter.AttesterKey())
	return s.Serve(lis)
}
