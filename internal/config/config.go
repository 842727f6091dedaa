package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"go-chat-broker/internal/protocol"
)

// Config holds all runtime settings of the broker. Values come from an
// optional .env file, then the process environment, then command-line flags
// applied by cmd/server.
type Config struct {
	// TCPAddr is where chat clients connect.
	TCPAddr string

	// UDPAddr serves the presence list side channel.
	UDPAddr string

	// HTTPAddr serves the admin API and the WebSocket transport.
	// Empty disables the HTTP surface.
	HTTPAddr string

	// StoreDriver selects the persistence backend: file, postgres, sqlite or redis.
	StoreDriver string
	DataPath    string
	DBDSN       string
	RedisAddr   string

	// JWTSecret signs admin API tokens. A random secret is generated when unset,
	// so tokens do not survive a restart.
	JWTSecret string

	MaxLoginAttempts int
	MaxFrameSize     int
	SendBuffer       int
	BcryptCost       int

	CorsOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads environment variables and returns a populated Config.
func Load() *Config {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	return &Config{
		TCPAddr:          getEnv("TCP_ADDR", ":7070"),
		UDPAddr:          getEnv("UDP_ADDR", ":7071"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		StoreDriver:      getEnv("STORE_DRIVER", "file"),
		DataPath:         getEnv("DATA_PATH", "./data.txt"),
		DBDSN:            os.Getenv("DB_DSN"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		MaxLoginAttempts: getEnvInt("MAX_LOGIN_ATTEMPTS", 3),
		MaxFrameSize:     getEnvInt("MAX_FRAME_SIZE", protocol.DefaultMaxFrameSize),
		SendBuffer:       getEnvInt("SEND_BUFFER", 256),
		BcryptCost:       getEnvInt("BCRYPT_COST", bcrypt.DefaultCost),
		CorsOrigins:      parseList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if parsed, err := strconv.Atoi(os.Getenv(key)); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
