package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betfold/papertrade/internal/accounts"
	"github.com/betfold/papertrade/internal/engine"
	"github.com/betfold/papertrade/internal/market"
	"github.com/betfold/papertrade/internal/portfolio"
	"github.com/betfold/papertrade/internal/server"
	"github.com/betfold/papertrade/internal/store"
	"github.com/betfold/papertrade/internal/stream"
	"github.com/betfold/papertrade/pkg/config"
	"github.com/betfold/papertrade/pkg/logger"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var configPath = flag.String("config", os.Getenv("PAPERTRADE_CONFIG"), "YAML config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store failed: %v", err)
	}
	defer st.Close()

	mkt := market.NewService(cfg.BinanceURL, cfg.PriceCacheTTL)
	trading := engine.NewTradingEngine(st, mkt)
	orders := engine.NewOrderEngine(st, trading, mkt, cfg.SweepInterval)
	accts := accounts.NewService(st)
	pf := portfolio.NewService(st, mkt)
	hub := stream.NewHub(cfg.StreamURL)

	orders.Start()
	defer orders.Stop()
	defer hub.Stop()

	srv := server.New(server.Deps{
		Accounts:  accts,
		Trading:   trading,
		Orders:    orders,
		Portfolio: pf,
		Market:    mkt,
		Hub:       hub,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("papertrade listening on %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	fmt.Println("server stopped")
}
