package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ekurt/funding_curve/internal/infrastructure/exchange"
	"github.com/ekurt/funding_curve/internal/infrastructure/logger"
	"github.com/ekurt/funding_curve/internal/infrastructure/storage"
	"github.com/ekurt/funding_curve/internal/usecase"
	"github.com/ekurt/funding_curve/internal/web"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Basket struct {
		Underlying string   `yaml:"underlying"`
		Contracts  []string `yaml:"contracts"`
	} `yaml:"basket"`
	Polling struct {
		PriceIntervalSec   int `yaml:"price_interval_sec"`
		RankingIntervalSec int `yaml:"ranking_interval_sec"`
		HistoryDays        int `yaml:"history_days"`
		ResolutionSec      int `yaml:"resolution_sec"`
		TopN               int `yaml:"top_n"`
	} `yaml:"polling"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config (env overrides credentials)
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if v := os.Getenv("FTX_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("FTX_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if cfg.Polling.PriceIntervalSec <= 0 {
		cfg.Polling.PriceIntervalSec = 10
	}
	if cfg.Polling.RankingIntervalSec <= 0 {
		cfg.Polling.RankingIntervalSec = 60
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "monitor.db"
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage (instrument warm cache)
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange
	ftx := exchange.NewFtxAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint)

	// 5. Init Services
	catalog := usecase.NewInstrumentCatalog(ftx, store, log)
	if err := catalog.Load(context.Background()); err != nil {
		log.Fatal("Failed to load instrument catalog", zap.Error(err))
	}
	log.Info("instrument catalog loaded", zap.Int("count", catalog.Len()))

	fetcher := usecase.NewFetcher(ftx, catalog, log)
	funding := usecase.NewFundingRateCatalog(ftx, log)
	feeds := web.NewFeedStore()

	monitor := usecase.NewMonitor(ftx, fetcher, catalog, funding, feeds, log, usecase.MonitorConfig{
		HistoryDays:   cfg.Polling.HistoryDays,
		ResolutionSec: cfg.Polling.ResolutionSec,
		TopN:          cfg.Polling.TopN,
	})

	// 6. Live quote push; selecting a basket subscribes the ticker to it.
	ftx.OnQuoteUpdate(monitor.HandleQuote)
	monitor.SelectBasket(cfg.Basket.Underlying, cfg.Basket.Contracts)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	// 7. Price/rate tick and ranking tick on independent timers
	priceInterval := time.Duration(cfg.Polling.PriceIntervalSec) * time.Second
	rankingInterval := time.Duration(cfg.Polling.RankingIntervalSec) * time.Second

	go func() {
		ticker := time.NewTicker(priceInterval)
		defer ticker.Stop()
		for {
			if err := monitor.RunPriceTick(context.Background()); err != nil {
				log.Error("price tick failed", zap.Error(err))
			}
			select {
			case <-ticker.C:
			case <-done:
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(rankingInterval)
		defer ticker.Stop()
		for {
			if err := monitor.RunRankingTick(context.Background()); err != nil {
				log.Error("ranking tick failed", zap.Error(err))
			}
			select {
			case <-ticker.C:
			case <-done:
				return
			}
		}
	}()

	// 8. Web server exposes the feeds
	server := web.NewServer(cfg.Server.Port, feeds, catalog, monitor, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("web server error", zap.Error(err))
		}
	}()

	<-stop
	close(done)
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}
