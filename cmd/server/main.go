// Package main is the entry point for theta, an autonomous paper-trading
// engine for short-premium options. It wires the store, market data and AI
// clients, the five-phase daily pipeline, and the HTTP control surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/theta/internal/backup"
	"github.com/aristath/theta/internal/clients/ai"
	"github.com/aristath/theta/internal/clients/marketdata"
	"github.com/aristath/theta/internal/clients/quotestream"
	"github.com/aristath/theta/internal/config"
	"github.com/aristath/theta/internal/database"
	"github.com/aristath/theta/internal/events"
	"github.com/aristath/theta/internal/scheduler"
	"github.com/aristath/theta/internal/server"
	"github.com/aristath/theta/internal/store"
	"github.com/aristath/theta/internal/trader"
	"github.com/aristath/theta/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting theta")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	db, err := database.New(database.Config{Path: cfg.DatabasePath()})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	st, err := store.New(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}

	bus := events.NewBus()

	provider := marketdata.NewRESTProvider(cfg.MarketDataURL, cfg.MarketDataTimeout, log)
	md := marketdata.NewClient(provider, log)

	aiClient := ai.NewClient(ai.Config{
		AnalysisURL:     cfg.AnalysisURL,
		SearchURL:       cfg.SearchURL,
		SearchAPIKey:    cfg.SearchAPIKey,
		AnalysisTimeout: cfg.AnalysisTimeout,
		SearchTimeout:   cfg.SearchTimeout,
	}, log)

	// Optional streaming quotes for the position monitor. The consumer
	// subscribes to the option contracts of open positions; positions
	// opened later are added through the trade events below.
	var quotes *quotestream.Cache
	var consumer *quotestream.Consumer
	if cfg.QuoteStreamURL != "" {
		quotes = quotestream.NewCache()
		var symbols []string
		if open, err := st.Trades.GetOpen(); err == nil {
			for i := range open {
				symbols = append(symbols, trader.ContractSymbol(&open[i]))
			}
		}
		consumer = quotestream.NewConsumer(cfg.QuoteStreamURL, symbols, quotes, log)
		if err := consumer.Start(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Quote stream unavailable, monitor will use REST quotes")
		}
		bus.Subscribe(events.AutonomousTrade, func(e *events.Event) {
			data, ok := e.Data.(*events.TradeData)
			if !ok || data.Action != events.TradeOpened || data.Trade == nil {
				return
			}
			consumer.Subscribe(trader.ContractSymbol(data.Trade))
		})
	}

	sched := scheduler.New(trader.MarketLocation(), log)

	backupSvc := backup.New(db, filepath.Join(cfg.DataDir, "backups"), cfg.BackupBucket, cfg.BackupRegion,
		backup.Credentials{AccessKey: cfg.BackupAccessKey, SecretKey: cfg.BackupSecretKey}, log)
	if err := sched.AddJob("0 30 2 * * *", backupSvc); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}

	eng := trader.New(st, md, aiClient, bus, quotes, sched, log)
	if err := eng.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start trader")
	}

	srv := server.New(server.Config{
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Log:     log,
		Store:   st,
		Trader:  eng,
		Bus:     bus,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errChan:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	eng.Stop()
	if consumer != nil {
		consumer.Stop()
	}

	log.Info().Msg("Shutdown complete")
}
