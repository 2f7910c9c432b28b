package repository

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/pkg/cache"
	"github.com/noah-isme/kindrid-api/pkg/config"
	"github.com/noah-isme/kindrid-api/pkg/database"
	"github.com/noah-isme/kindrid-api/pkg/storage"
)

// Slot is a single named blob holding the serialized photo list.
// Read returns nil, nil when nothing has been written yet.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
}

// MemorySlot keeps the payload in process memory.
type MemorySlot struct {
	mu      sync.RWMutex
	payload []byte
}

// NewMemorySlot returns an empty in-memory slot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// Read implements Slot.
func (s *MemorySlot) Read(context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.payload == nil {
		return nil, nil
	}
	return append([]byte(nil), s.payload...), nil
}

// Write implements Slot.
func (s *MemorySlot) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	return nil
}

// OpenSlot builds the slot selected by cfg.Slot.Backend. A backend that cannot be
// reached falls back to the file slot. The returned close func is never nil.
func OpenSlot(ctx context.Context, cfg *config.Config, media *storage.LocalStorage, logger *zap.Logger) (Slot, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }
	name := cfg.Slot.Name

	fileSlot := func() (Slot, func() error, error) {
		slot, err := NewFileSlot(media, name)
		if err != nil {
			return nil, noop, err
		}
		return slot, noop, nil
	}

	switch cfg.Slot.Backend {
	case config.SlotBackendMemory:
		return NewMemorySlot(), noop, nil
	case "", config.SlotBackendFile:
		return fileSlot()
	case config.SlotBackendRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis slot unavailable, using file slot", zap.Error(err))
			return fileSlot()
		}
		return NewRedisSlot(client, cfg.Slot.RedisPrefix, name), client.Close, nil
	case config.SlotBackendPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logger.Warn("postgres slot unavailable, using file slot", zap.Error(err))
			return fileSlot()
		}
		slot := NewSQLSlot(db, name)
		if err := slot.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			logger.Warn("postgres slot schema failed, using file slot", zap.Error(err))
			return fileSlot()
		}
		return slot, db.Close, nil
	case config.SlotBackendSQLite:
		db, err := database.NewSQLite(ctx, cfg.Slot.SQLitePath)
		if err != nil {
			logger.Warn("sqlite slot unavailable, using file slot", zap.Error(err))
			return fileSlot()
		}
		slot := NewSQLSlot(db, name)
		if err := slot.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			logger.Warn("sqlite slot schema failed, using file slot", zap.Error(err))
			return fileSlot()
		}
		return slot, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown slot backend %q", cfg.Slot.Backend)
	}
}
