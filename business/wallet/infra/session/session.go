// Package session persists the rehydration markers that let a restarted
// process restore the previous wallet session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/genip/business/wallet/app"
	"github.com/fd1az/genip/internal/apperror"
	"github.com/fd1az/genip/internal/logger"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config selects and configures a marker store.
type Config struct {
	Backend string

	FilePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	// TTL expires markers this long after they were last written. Zero
	// keeps them forever.
	TTL time.Duration
}

// Store is a MarkerStore holding resources.
type Store interface {
	app.MarkerStore
	Close() error
}

// New builds the store named by cfg.Backend.
func New(ctx context.Context, cfg Config, log logger.LoggerInterface) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendMemory, "":
		store = NewMemoryStore()
	case BackendFile:
		store, err = NewFileStore(cfg.FilePath, cfg.TTL)
	case BackendRedis:
		store, err = NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		})
	default:
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("unknown session backend %q", cfg.Backend)))
	}
	if err != nil {
		return nil, err
	}

	fields := []any{"backend", cfg.Backend}
	if ided, ok := store.(interface{ SessionID() string }); ok {
		if id := ided.SessionID(); id != "" {
			fields = append(fields, "session_id", id)
		}
	}
	log.Info(ctx, "session store ready", fields...)
	return store, nil
}

func storeError(op string, err error) error {
	return apperror.External(apperror.CodeMarkerStoreError, op, err)
}
