package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds database configuration for the tool catalog store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv builds the database config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:            getEnv("DATABASE_HOST", "localhost"),
		User:            getEnv("DATABASE_USER", "opsconductor"),
		Password:        os.Getenv("DATABASE_PASSWORD"),
		Database:        getEnv("DATABASE_NAME", "opsconductor"),
		SSLMode:         getEnv("DATABASE_SSLMODE", "disable"),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	portStr := getEnv("DATABASE_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DATABASE_PORT %q: %w", portStr, err)
	}
	cfg.Port = port

	return cfg, nil
}

// DSN returns the pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
