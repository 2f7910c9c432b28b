package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/kindrid-api/pkg/storage"
)

const slotDir = "slots/"

// FileSlot stores the payload as a JSON file inside the media storage root.
type FileSlot struct {
	files *storage.LocalStorage
	key   string
}

// NewFileSlot binds a slot name to a file under files.
func NewFileSlot(files *storage.LocalStorage, name string) (*FileSlot, error) {
	if files == nil {
		return nil, fmt.Errorf("file slot requires storage")
	}
	if name == "" {
		return nil, fmt.Errorf("slot name required")
	}
	return &FileSlot{files: files, key: slotDir + name + ".json"}, nil
}

// Read implements Slot.
func (s *FileSlot) Read(context.Context) ([]byte, error) {
	if !s.files.Exists(s.key) {
		return nil, nil
	}
	return s.files.Read(s.key)
}

// Write implements Slot.
func (s *FileSlot) Write(_ context.Context, payload []byte) error {
	_, err := s.files.Save(s.key, payload)
	return err
}
