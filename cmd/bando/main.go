// Command bando buys Bando products paying with crypto on EVM or Solana
// networks.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vitwit/bando"
	"github.com/vitwit/bando/commerce"
	"github.com/vitwit/bando/config"
	"github.com/vitwit/bando/logger"
	"github.com/vitwit/bando/metrics"
)

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	log      logger.Logger
	recorder metrics.Recorder
	out      io.Writer

	envFile     string
	env         string
	logLevel    string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, log: logger.NoopLogger{}, recorder: metrics.NoopRecorder{}}
	err := newRootCommand(a).ExecuteContext(ctx)
	if s, ok := a.log.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
	if err != nil {
		report(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bando",
		Short:         "Pay for Bando products with crypto",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.envFile, "env-file", "", "env file to load (default .env)")
	f.StringVar(&a.env, "env", "", "API environment: sandbox or production (overrides BANDO_ENV)")
	f.StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	f.StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		newEVMCommand(a),
		newSolanaCommand(a),
		newHoldingsCommand(a),
		newInteractiveCommand(a),
		newResendCommand(a),
	)
	return root
}

func (a *app) load(ctx context.Context) error {
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}
	if a.env != "" {
		if err := os.Setenv("BANDO_ENV", a.env); err != nil {
			return err
		}
	}

	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Logger(true)
	a.log.Debug("configuration loaded", cfg.LogFields())

	if cfg.EnableMetrics || a.metricsAddr != "" {
		a.recorder = metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	}
	if a.metricsAddr != "" {
		serveMetrics(ctx, a.metricsAddr, a.log)
	}
	return nil
}

func (a *app) commerceClient() *commerce.Client {
	return commerce.New(a.cfg.APIURL,
		commerce.WithHTTPClient(&http.Client{Timeout: a.cfg.HTTPTimeout}),
		commerce.WithAPIToken(a.cfg.APIToken),
		commerce.WithLimiter(a.cfg.CatalogLimiter()),
		commerce.WithCacheTTL(a.cfg.CatalogCacheTTL),
		commerce.WithLogger(a.log),
		commerce.WithMetrics(a.recorder),
	)
}

func (a *app) newBando(api bando.Commerce) *bando.Bando {
	return bando.New(a.cfg.BandoConfig(), api,
		bando.WithLogger(a.log),
		bando.WithMetrics(a.recorder),
	)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
