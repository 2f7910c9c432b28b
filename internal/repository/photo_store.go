package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/models"
)

// ErrPhotoNotFound is returned for unknown photo ids.
var ErrPhotoNotFound = errors.New("photo not found")

// MediaReleaser frees stored media when a photo goes away.
type MediaReleaser interface {
	Delete(key string) error
}

// StoreOption customises a PhotoStore.
type StoreOption func(*PhotoStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *PhotoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWriteFailureHook is called whenever persisting to the slot fails.
func WithWriteFailureHook(fn func(error)) StoreOption {
	return func(s *PhotoStore) {
		s.onWriteFailure = fn
	}
}

// PhotoStore holds the authoritative photo list, newest first, and mirrors it to a Slot.
type PhotoStore struct {
	mu     sync.RWMutex
	photos []models.Photo

	slot           Slot
	media          MediaReleaser
	logger         *zap.Logger
	now            func() time.Time
	onWriteFailure func(error)
}

// NewPhotoStore constructs an empty store. Call Load to hydrate it from the slot.
func NewPhotoStore(slot Slot, media MediaReleaser, logger *zap.Logger, opts ...StoreOption) *PhotoStore {
	if slot == nil {
		slot = NewMemorySlot()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PhotoStore{
		photos: make([]models.Photo, 0),
		slot:   slot,
		media:  media,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory list with the slot contents. An empty or corrupt slot
// yields an empty list.
func (s *PhotoStore) Load(ctx context.Context) int {
	payload, err := s.slot.Read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos = make([]models.Photo, 0)

	if err != nil {
		s.logger.Warn("photo slot unreadable, starting empty", zap.Error(err))
		return 0
	}
	if len(payload) == 0 {
		return 0
	}

	var photos []models.Photo
	if err := json.Unmarshal(payload, &photos); err != nil {
		s.logger.Warn("photo slot corrupt, starting empty", zap.Error(err))
		return 0
	}
	for _, p := range photos {
		if p.ID == "" {
			continue
		}
		if !p.Status.Valid() {
			p.Status = models.PhotoStatusPendingConsent
		}
		s.photos = append(s.photos, p)
	}
	s.logger.Info("photo slot loaded", zap.Int("photos", len(s.photos)))
	return len(s.photos)
}

// List returns copies of all photos, most recently added first.
func (s *PhotoStore) List(_ context.Context) []models.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Photo, len(s.photos))
	for i, p := range s.photos {
		out[i] = p.Clone()
	}
	return out
}

// Get returns a copy of the photo with id.
func (s *PhotoStore) Get(_ context.Context, id string) (*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, ErrPhotoNotFound
	}
	photo := s.photos[idx].Clone()
	return &photo, nil
}

// Insert assigns an id if absent, prepends the photo and persists.
func (s *PhotoStore) Insert(ctx context.Context, photo models.Photo) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := photo.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.photos = append([]models.Photo{stored}, s.photos...)
	s.persist(ctx)

	out := stored.Clone()
	return &out, nil
}

// Update shallow-merges patch into the photo and persists.
func (s *PhotoStore) Update(ctx context.Context, id string, patch models.PhotoPatch) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, ErrPhotoNotFound
	}
	updated := s.photos[idx].Clone()
	patch.Apply(&updated)
	updated.UpdatedAt = s.now().UTC()
	s.photos[idx] = updated
	s.persist(ctx)

	out := updated.Clone()
	return &out, nil
}

// Remove deletes the photo, releases its media and persists.
func (s *PhotoStore) Remove(ctx context.Context, id string) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, ErrPhotoNotFound
	}
	removed := s.photos[idx]
	s.photos = append(s.photos[:idx:idx], s.photos[idx+1:]...)
	s.release(removed)
	s.persist(ctx)

	return &removed, nil
}

// ReferencesMedia reports whether any stored photo points at key.
func (s *PhotoStore) ReferencesMedia(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.photos {
		for _, k := range p.MediaKeys() {
			if k == key {
				return true
			}
		}
	}
	return false
}

func (s *PhotoStore) indexOf(id string) int {
	for i := range s.photos {
		if s.photos[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *PhotoStore) release(photo models.Photo) {
	if s.media == nil {
		return
	}
	for _, key := range photo.MediaKeys() {
		if err := s.media.Delete(key); err != nil {
			s.logger.Warn("release media failed", zap.String("photo_id", photo.ID), zap.String("key", key), zap.Error(err))
		}
	}
}

// persist writes the full list. Failures are logged and never surface to callers.
func (s *PhotoStore) persist(ctx context.Context) {
	payload, err := json.Marshal(s.photos)
	if err == nil {
		err = s.slot.Write(ctx, payload)
	}
	if err != nil {
		s.logger.Error("persist photo slot failed", zap.Int("photos", len(s.photos)), zap.Error(err))
		if s.onWriteFailure != nil {
			s.onWriteFailure(err)
		}
	}
}
