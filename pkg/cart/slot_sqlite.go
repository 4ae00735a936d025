package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps cart slots in a local sqlite file, the durable analogue
// of the browser profile holding localStorage. Sessions in the same process
// share one open store; change notifications fan out between its handles.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[string]map[*SQLiteSlot]struct{}
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cart db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cart db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cart_slots (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cart_slots: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		subs: make(map[string]map[*SQLiteSlot]struct{}),
	}, nil
}

func (st *SQLiteStore) Close() error { return st.db.Close() }

// Slot opens a session handle on key.
func (st *SQLiteStore) Slot(key string) *SQLiteSlot {
	s := &SQLiteSlot{
		store:   st,
		key:     key,
		updates: make(chan []byte, updateBuffer),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.subs[key] == nil {
		st.subs[key] = make(map[*SQLiteSlot]struct{})
	}
	st.subs[key][s] = struct{}{}
	return s
}

type SQLiteSlot struct {
	store   *SQLiteStore
	key     string
	updates chan []byte
	once    sync.Once
}

func (s *SQLiteSlot) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.store.db.QueryRowContext(ctx,
		`SELECT data FROM cart_slots WHERE key = ?`, s.key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart slot: %w", err)
	}
	return data, nil
}

func (s *SQLiteSlot) Store(ctx context.Context, data []byte) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO cart_slots (key, data, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, s.key, data)
	if err != nil {
		return fmt.Errorf("store cart slot: %w", err)
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for peer := range s.store.subs[s.key] {
		if peer == s {
			continue
		}
		select {
		case peer.updates <- data:
		default:
		}
	}
	return nil
}

func (s *SQLiteSlot) Updates() <-chan []byte { return s.updates }

func (s *SQLiteSlot) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs[s.key], s)
		s.store.mu.Unlock()
		close(s.updates)
	})
	return nil
}
