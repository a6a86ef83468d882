package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/JulienCr/obs-live-suite-sub002/internal/domain"
	"github.com/JulienCr/obs-live-suite-sub002/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	pinned     INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_messages_pinned ON messages(pinned, created_at DESC);
`

type sqliteStore struct {
	db *sql.DB
}

// NewStore opens (creating if needed) a SQLite-backed message store.
func NewStore(path string) (store.MessageStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, input domain.MessageInput) (*domain.Message, error) {
	now := time.Now()
	createdAt := now
	if input.CreatedAt != nil {
		createdAt = *input.CreatedAt
	}

	msg := domain.Message{
		ID:        ulid.Make().String(),
		Kind:      input.Kind,
		Author:    input.Author,
		Body:      input.Body,
		Pinned:    input.Pinned,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, kind, author, body, pinned, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Kind, msg.Author, msg.Body, boolInt(msg.Pinned),
		msg.CreatedAt.UnixMilli(), msg.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return &msg, nil
}

func (s *sqliteStore) Update(ctx context.Context, id string, patch domain.MessagePatch) (*domain.Message, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Kind != nil {
		current.Kind = *patch.Kind
	}
	if patch.Author != nil {
		current.Author = *patch.Author
	}
	if patch.Body != nil {
		current.Body = *patch.Body
	}
	if patch.Pinned != nil {
		current.Pinned = *patch.Pinned
	}
	current.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET kind = ?, author = ?, body = ?, pinned = ?, updated_at = ? WHERE id = ?`,
		current.Kind, current.Author, current.Body, boolInt(current.Pinned),
		current.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return current, nil
}

func (s *sqliteStore) GetRecent(ctx context.Context, limit int, cursor string) ([]domain.Message, error) {
	var rows *sql.Rows
	var err error

	if cursor == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, kind, author, body, pinned, created_at, updated_at
			 FROM messages
			 ORDER BY created_at DESC, id DESC
			 LIMIT ?`, limit)
	} else {
		cur, curErr := s.get(ctx, cursor)
		if curErr != nil {
			return nil, curErr
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, kind, author, body, pinned, created_at, updated_at
			 FROM messages
			 WHERE created_at < ? OR (created_at = ? AND id < ?)
			 ORDER BY created_at DESC, id DESC
			 LIMIT ?`,
			cur.CreatedAt.UnixMilli(), cur.CreatedAt.UnixMilli(), cur.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *sqliteStore) GetPinned(ctx context.Context) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, author, body, pinned, created_at, updated_at
		 FROM messages
		 WHERE pinned = 1
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pinned messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *sqliteStore) DeleteOld(ctx context.Context, keepCount int) (int, error) {
	if keepCount <= 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE pinned = 0`)
		if err != nil {
			return 0, fmt.Errorf("failed to evict messages: %w", err)
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	// Creation-time cutoff of the keepCount-th newest non-pinned message.
	// No such row means fewer than keepCount non-pinned messages exist.
	var cutMillis int64
	var cutID string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, id FROM messages
		 WHERE pinned = 0
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1 OFFSET ?`, keepCount-1).Scan(&cutMillis, &cutID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find retention cutoff: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages
		 WHERE pinned = 0 AND (created_at < ? OR (created_at = ? AND id < ?))`,
		cutMillis, cutMillis, cutID)
	if err != nil {
		return 0, fmt.Errorf("failed to evict messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	return err
}

func (s *sqliteStore) get(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	var pinned int
	var createdMillis, updatedMillis int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, author, body, pinned, created_at, updated_at
		 FROM messages WHERE id = ?`, id).
		Scan(&msg.ID, &msg.Kind, &msg.Author, &msg.Body, &pinned, &createdMillis, &updatedMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	msg.Pinned = pinned != 0
	msg.CreatedAt = time.UnixMilli(createdMillis)
	msg.UpdatedAt = time.UnixMilli(updatedMillis)
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		var pinned int
		var createdMillis, updatedMillis int64
		if err := rows.Scan(&msg.ID, &msg.Kind, &msg.Author, &msg.Body, &pinned, &createdMillis, &updatedMillis); err != nil {
			return nil, err
		}
		msg.Pinned = pinned != 0
		msg.CreatedAt = time.UnixMilli(createdMillis)
		msg.UpdatedAt = time.UnixMilli(updatedMillis)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
