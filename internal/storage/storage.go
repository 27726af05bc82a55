package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a slot or preference does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName rejects slot names that cannot be stored safely.
	ErrInvalidName = errors.New("invalid slot name")
)

// SlotInfo describes a saved slot without its payload.
type SlotInfo struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Slots stores opaque save records by name.
type Slots interface {
	SaveSlot(ctx context.Context, name string, data []byte) error
	LoadSlot(ctx context.Context, name string) ([]byte, error)
	ListSlots(ctx context.Context) ([]SlotInfo, error)
	DeleteSlot(ctx context.Context, name string) error
}

// Prefs stores integer preferences.
type Prefs interface {
	GetInt(ctx context.Context, key string) (int, error)
	SetInt(ctx context.Context, key string, value int) error
}

// Backend is a complete persistence backend.
type Backend interface {
	Slots
	Prefs
	Close() error
}

// checkName accepts names usable as a file name, a redis key segment and a SQL key.
func checkName(name string) error {
	if name == "" || len(name) > 128 || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\:`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
