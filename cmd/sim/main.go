package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
	"github.com/Shining-Code/TradingGPT-report/internal/infrastructure/feed"
	"github.com/Shining-Code/TradingGPT-report/internal/infrastructure/logger"
	"github.com/Shining-Code/TradingGPT-report/internal/infrastructure/pubsub"
	"github.com/Shining-Code/TradingGPT-report/internal/infrastructure/storage"
	"github.com/Shining-Code/TradingGPT-report/internal/usecase"
	"github.com/Shining-Code/TradingGPT-report/internal/web"
)

type Config struct {
	Feed struct {
		WSEndpoint           string   `yaml:"ws_endpoint"`
		Symbols              []string `yaml:"symbols"`
		Interval             string   `yaml:"interval"`
		ReconnectBaseMs      int      `yaml:"reconnect_base_ms"`
		MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	} `yaml:"feed"`
	Publisher struct {
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"publisher"`
	Engine struct {
		MaintenanceMargin float64 `yaml:"maintenance_margin"`
		PublishEveryTicks int     `yaml:"publish_every_ticks"`
	} `yaml:"engine"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
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
	// 1. Optional .env for local overrides
	_ = godotenv.Load()

	// 2. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Publisher.RedisAddr = addr
	}
	if endpoint := os.Getenv("FEED_WS_ENDPOINT"); endpoint != "" {
		cfg.Feed.WSEndpoint = endpoint
	}

	// 3. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 4. Init Storage
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = "sim.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 5. Init Event Publisher (best-effort sink)
	publisher := pubsub.NewRedisPublisher(cfg.Publisher.RedisAddr, log)
	defer publisher.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := publisher.Ping(pingCtx); err != nil {
		log.Warn("Event sink unreachable, notifications will be dropped", zap.Error(err))
	}
	cancel()

	// 6. Init Engine
	book := usecase.NewOrderBook()
	positions := usecase.NewPositionManager(publisher, store, log)
	if cfg.Engine.MaintenanceMargin > 0 {
		positions.SetMaintenanceMargin(cfg.Engine.MaintenanceMargin)
	}
	if cfg.Engine.PublishEveryTicks > 1 {
		positions.SetPublishEvery(cfg.Engine.PublishEveryTicks)
	}
	engine := usecase.NewMatchingEngine(book, positions, log)

	// 7. Init Feed and wire callbacks
	client := feed.NewBinanceStreamClient(cfg.Feed.WSEndpoint, log)
	if cfg.Feed.ReconnectBaseMs > 0 {
		client.SetReconnectPolicy(
			time.Duration(cfg.Feed.ReconnectBaseMs)*time.Millisecond,
			cfg.Feed.MaxReconnectAttempts,
		)
	}

	client.OnTick(func(tick domain.PriceTick) {
		engine.OnTick(context.Background(), tick)
	})

	interval := cfg.Feed.Interval
	if interval == "" {
		interval = "1m"
	}
	client.OnConnected(func() {
		for _, symbol := range cfg.Feed.Symbols {
			if err := client.Subscribe(symbol, interval); err != nil {
				log.Error("Failed to subscribe", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	})

	client.OnUnavailable(func() {
		log.Error("Price feed permanently unavailable; restart required")
	})

	if err := client.Connect(); err != nil {
		log.Warn("Initial feed connection failed", zap.Error(err))
	}
	defer client.Close()

	// 8. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 3000 // Default
	}
	server := web.NewServer(port, book, positions, store, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)
}
