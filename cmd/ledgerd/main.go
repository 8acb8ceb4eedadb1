// Command ledgerd runs the paper trading service: it revalues the portfolio
// on a schedule, consults the advisor, and serves a read-only dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"paperledger/internal/advisor"
	"paperledger/internal/config"
	"paperledger/internal/dashboard"
	"paperledger/internal/ledger"
	"paperledger/internal/marketdata"
	"paperledger/internal/retry"
	"paperledger/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	resetFlag := flag.Bool("reset", false, "reset the portfolio to initial cash and exit")
	flag.Parse()

	if err := run(*configPath, *resetFlag); err != nil {
		logrus.WithError(err).Fatal("ledgerd exited")
	}
}

func run(configPath string, reset bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Environment.LogLevel, err)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if dir := filepath.Dir(cfg.Storage.Path); dir != "." && cfg.Storage.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Failed to close storage")
		}
	}()

	lgr, err := ledger.NewLedger(ledger.Config{
		InitialCash:      decimal.NewFromFloat(cfg.Portfolio.InitialCash),
		MaxOpenPositions: cfg.Portfolio.MaxOpenPositions,
	}, store, log)
	if err != nil {
		return err
	}

	if reset {
		summary, err := lgr.ResetPortfolio()
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"positions_reset": summary.PositionsReset,
			"cash":            summary.CashBalance.StringFixed(2),
		}).Info("Portfolio reset complete")
		return nil
	}

	market := buildMarketProvider(cfg, log)
	adv, err := advisor.NewChatGPTAdvisor(cfg.Advisor.APIKey, cfg.Advisor.Model, log)
	if err != nil {
		return err
	}

	interval, err := cfg.SessionInterval()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *dashboard.Server
	if cfg.Dashboard.Enabled {
		srv = dashboard.NewServer(dashboard.Config{Port: cfg.Dashboard.Port}, lgr, log)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Dashboard server failed")
			}
		}()
	}

	session := NewSession(lgr, market, adv, log, cfg.Session.Symbols, cfg.Advisor.MaxOpportunities)
	log.WithField("interval", interval.String()).Info("Starting session loop")
	err = session.Loop(ctx, interval)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Dashboard shutdown failed")
		}
	}

	if errors.Is(err, context.Canceled) {
		log.Info("Shutdown complete")
		return nil
	}
	return err
}

// buildMarketProvider stacks the configured client with retries and a circuit
// breaker.
func buildMarketProvider(cfg *config.Config, log *logrus.Logger) marketdata.Provider {
	var base marketdata.Provider
	switch cfg.Market.Provider {
	case "yahoo":
		base = marketdata.NewYahooClient()
	default:
		base = marketdata.NewTradierClient(cfg.Market.APIKey, cfg.Market.Sandbox, log)
	}

	withBreaker := marketdata.NewCircuitBreakerProvider(base, log)
	return retry.NewProvider(withBreaker, log)
}
