// Package config loads server settings from the environment and client
// remote profiles from a toml file.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // DEALBOARD_DATABASE_URL (required)
	HTTPAddr    string // DEALBOARD_HTTP_ADDR (default ":8080")
	NATSURL     string // DEALBOARD_NATS_URL (optional, empty = no events)
	AuthToken   string // DEALBOARD_AUTH_TOKEN (optional, empty = auth disabled)
	LogLevel    string // DEALBOARD_LOG_LEVEL (default "info")

	// Snapshot settings
	SyncInterval   time.Duration // DEALBOARD_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // DEALBOARD_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // DEALBOARD_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // DEALBOARD_SYNC_S3_REGION (default "us-east-1")
	SyncS3Prefix   string        // DEALBOARD_SYNC_S3_PREFIX (default "dealboard")
	SyncGitRepo    string        // DEALBOARD_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // DEALBOARD_SYNC_GIT_FILE (default "pipeline.jsonl")
	SyncGitBranch  string        // DEALBOARD_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("DEALBOARD_DATABASE_URL"),
		HTTPAddr:       envOrDefault("DEALBOARD_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("DEALBOARD_NATS_URL"),
		AuthToken:      os.Getenv("DEALBOARD_AUTH_TOKEN"),
		LogLevel:       envOrDefault("DEALBOARD_LOG_LEVEL", "info"),
		SyncS3Bucket:   os.Getenv("DEALBOARD_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("DEALBOARD_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("DEALBOARD_SYNC_S3_REGION", "us-east-1"),
		SyncS3Prefix:   envOrDefault("DEALBOARD_SYNC_S3_PREFIX", "dealboard"),
		SyncGitRepo:    os.Getenv("DEALBOARD_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("DEALBOARD_SYNC_GIT_FILE", "pipeline.jsonl"),
		SyncGitBranch:  envOrDefault("DEALBOARD_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DEALBOARD_DATABASE_URL is required")
	}

	intervalStr := envOrDefault("DEALBOARD_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("DEALBOARD_SYNC_INTERVAL: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("DEALBOARD_SYNC_INTERVAL: negative interval %s", d)
		}
		c.SyncInterval = d
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
