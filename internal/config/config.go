// Package config загружает конфигурацию демонстрационного CLI
// из переменных окружения и опционального .env файла.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config - конфигурация демонстрационного CLI.
type Config struct {
	NodeID            string
	DBPath            string
	KeystorePath      string
	LogLevel          string
	HeartbeatInterval time.Duration
}

// Load читает конфигурацию из окружения. Файл .env, если он есть,
// подхватывается автоматически; переменные окружения имеют приоритет.
func Load() (*Config, error) {
	godotenv.Load()

	interval, err := time.ParseDuration(getEnv("SYNCKIT_HEARTBEAT_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNCKIT_HEARTBEAT_INTERVAL: %w", err)
	}

	return &Config{
		NodeID:            getEnv("SYNCKIT_NODE_ID", defaultNodeID()),
		DBPath:            getEnv("SYNCKIT_DB_PATH", ""),
		KeystorePath:      getEnv("SYNCKIT_KEYSTORE_PATH", "synckit-identity.json"),
		LogLevel:          getEnv("SYNCKIT_LOG_LEVEL", "info"),
		HeartbeatInterval: interval,
	}, nil
}

// SlogLevel переводит текстовый уровень логирования в slog.Level.
// Неизвестный уровень трактуется как info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// defaultNodeID строит идентификатор узла из hostname и pid.
func defaultNodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "synckit"
	}
	return hostname + "-" + strconv.Itoa(os.Getpid())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
