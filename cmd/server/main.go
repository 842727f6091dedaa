package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"go-chat-broker/internal/chat"
	"go-chat-broker/internal/config"
	"go-chat-broker/internal/db"
	"go-chat-broker/internal/server"
	"go-chat-broker/internal/store"
	"go-chat-broker/internal/user"
)

func main() {
	// 1. Config & Flags
	cfg := config.Load()
	flag.StringVar(&cfg.TCPAddr, "tcp", cfg.TCPAddr, "chat client listen address")
	flag.StringVar(&cfg.UDPAddr, "udp", cfg.UDPAddr, "presence list listen address")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "admin API and websocket listen address (empty disables)")
	flag.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "persistence backend: file, postgres, sqlite or redis")
	flag.StringVar(&cfg.DataPath, "data", cfg.DataPath, "file store or sqlite database path")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			log.Fatalf("❌ Failed to generate JWT secret: %v", err)
		}
		cfg.JWTSecret = secret
		logger.Warn("JWT_SECRET is not set, admin tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Persistence
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer st.Close()
	logger.Info("store ready", "driver", cfg.StoreDriver)

	// 3. Chat core
	engine := chat.NewEngine(chat.NewRegistry(), st, logger)
	userService := user.NewService(st, cfg.JWTSecret, cfg.BcryptCost)

	// 4. Listeners
	srv := server.New(cfg, engine, userService, st, logger)
	logger.Info("server is running", "tcp", cfg.TCPAddr, "udp", cfg.UDPAddr, "http", cfg.HTTPAddr)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("❌ Server stopped: %v", err)
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "file":
		return store.NewFileStore(cfg.DataPath)

	case db.Postgres, db.SQLite:
		dsn := cfg.DBDSN
		if cfg.StoreDriver == db.SQLite {
			dsn = cfg.DataPath
		}
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is not set")
		}
		database, err := db.NewDatabase(cfg.StoreDriver, dsn)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return store.NewSQLStore(database), nil

	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store.NewRedisStore(redisClient), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
