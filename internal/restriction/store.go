package restriction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store is a flat string key-value store.
type Store interface {
	// Get returns ErrKeyNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Apply writes every put and delete in b atomically.
	Apply(ctx context.Context, b Batch) error
}

// Batch collects puts and deletes for Store.Apply. A later operation on
// the same key wins.
type Batch struct {
	ops []op
}

type op struct {
	key    string
	value  string
	delete bool
}

// Put stages key=value.
func (b *Batch) Put(key, value string) {
	b.ops = append(b.ops, op{key: key, value: value})
}

// Delete stages removal of key.
func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, op{key: key, delete: true})
}

// Len returns the number of staged operations.
func (b Batch) Len() int { return len(b.ops) }

// SQLiteStore keeps keys in the kv_state table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store on an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Apply writes b in a single transaction.
func (s *SQLiteStore) Apply(ctx context.Context, b Batch) error {
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	now := s.now().UTC().Format(time.RFC3339)
	for _, o := range b.ops {
		if o.delete {
			_, err = tx.ExecContext(ctx, "DELETE FROM kv_state WHERE key = ?", o.key)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				o.key, o.value, now)
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", o.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing kv batch: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Apply writes b under one lock.
func (m *MemoryStore) Apply(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range b.ops {
		if o.delete {
			delete(m.data, o.key)
		} else {
			m.data[o.key] = o.value
		}
	}
	return nil
}

// Keys returns the number of stored keys.
func (m *MemoryStore) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
