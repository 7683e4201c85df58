package config

import (
	"fmt"
	"strings"
)

const (
	StorageLocal = "local"
	StorageGCS   = "gcs"

	LimiterLocal = "local"
	LimiterRedis = "redis"
)

func NormalizeStorageBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	switch backend {
	case "", StorageLocal, "file", "fs":
		return StorageLocal, nil
	case StorageGCS, "gs":
		return StorageGCS, nil
	default:
		return "", fmt.Errorf("invalid storage backend %q (expected %s|%s)", raw, StorageLocal, StorageGCS)
	}
}

func NormalizeLimiter(raw string) (string, error) {
	limiter := strings.ToLower(strings.TrimSpace(raw))
	switch limiter {
	case "", LimiterLocal:
		return LimiterLocal, nil
	case LimiterRedis:
		return LimiterRedis, nil
	default:
		return "", fmt.Errorf("invalid limiter %q (expected %s|%s)", raw, LimiterLocal, LimiterRedis)
	}
}
