package store

import (
	"context"
	"errors"

	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
)

// ErrNotFound is returned when a message id does not exist.
var ErrNotFound = errors.New("message not found")

// MessageStore is a durable ordered log of notification-style messages with a
// pin flag. Retention eviction never removes pinned entries; only the
// explicit Delete and ClearAll operations do.
type MessageStore interface {
	// Create inserts a message. A client-supplied CreatedAt is honored to
	// support replay and import.
	Create(ctx context.Context, input domain.MessageInput) (*domain.Message, error)

	// Update merges the non-nil patch fields into the stored message and
	// bumps UpdatedAt. Returns ErrNotFound for an unknown id.
	Update(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error)

	// GetRecent returns up to limit messages, newest first. A non-empty
	// cursor (a message id) restricts the result to messages strictly older
	// than the cursor row: keyset pagination, stable under concurrent
	// inserts.
	GetRecent(ctx context.Context, limit int, cursor string) ([]domain.Message, error)

	// GetPinned returns all pinned messages, newest first.
	GetPinned(ctx context.Context) ([]domain.Message, error)

	// DeleteOld removes the oldest non-pinned messages so that at most
	// keepCount non-pinned messages remain. Pinned messages are never
	// touched. Returns the number of rows deleted.
	DeleteOld(ctx context.Context, keepCount int) (int, error)

	// Delete removes one message unconditionally, pinned or not.
	Delete(ctx context.Context, id string) error

	// ClearAll removes every message unconditionally.
	ClearAll(ctx context.Context) error

	Close() error
}
