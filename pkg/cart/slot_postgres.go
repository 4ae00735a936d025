package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// pgChannel is the shared NOTIFY channel for all cart slots; payloads are
// "<session> <key>" so listeners can filter out other keys and their own
// writes.
const pgChannel = "cart_slot_updates"

// PostgresSlot keeps the cart record in a postgres row and uses
// LISTEN/NOTIFY as the external-write notification. One connection serves
// reads and writes, a second one is dedicated to LISTEN.
type PostgresSlot struct {
	mu       sync.Mutex // guards conn; pgx.Conn is not concurrency-safe
	conn     *pgx.Conn
	listener *pgx.Conn

	key     string
	session string
	updates chan []byte
	cancel  context.CancelFunc
	log     *zap.Logger
}

func OpenPostgresSlot(ctx context.Context, connString, key string, log *zap.Logger) (*PostgresSlot, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cart_slots (
			key        TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("create cart_slots: %w", err)
	}

	listener, err := pgx.Connect(ctx, connString)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := listener.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		_ = listener.Close(ctx)
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen: %w", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	s := &PostgresSlot{
		conn:     conn,
		listener: listener,
		key:      key,
		session:  uuid.NewString(),
		updates:  make(chan []byte, updateBuffer),
		cancel:   cancel,
		log:      log,
	}

	go s.listen(lctx)
	return s, nil
}

func (s *PostgresSlot) listen(ctx context.Context) {
	defer close(s.updates)

	for {
		n, err := s.listener.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil && s.log != nil {
				s.log.Warn("cart notification listener stopped", zap.Error(err))
			}
			return
		}

		session, key, ok := strings.Cut(n.Payload, " ")
		if !ok || key != s.key || session == s.session {
			continue
		}

		data, err := s.Load(ctx)
		if err != nil {
			if s.log != nil {
				s.log.Warn("cart slot read after notify failed", zap.Error(err))
			}
			continue
		}

		select {
		case s.updates <- data:
		default:
		}
	}
}

func (s *PostgresSlot) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.conn.QueryRow(ctx,
		`SELECT data FROM cart_slots WHERE key = $1`, s.key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart slot: %w", err)
	}
	return data, nil
}

func (s *PostgresSlot) Store(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO cart_slots (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, s.key, data)
	if err != nil {
		return fmt.Errorf("store cart slot: %w", err)
	}

	_, err = s.conn.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, s.session+" "+s.key)
	if err != nil && s.log != nil {
		s.log.Warn("cart change broadcast failed", zap.Error(err))
	}
	return nil
}

func (s *PostgresSlot) Updates() <-chan []byte { return s.updates }

func (s *PostgresSlot) Close() error {
	s.cancel()

	ctx := context.Background()
	lerr := s.listener.Close(ctx)

	s.mu.Lock()
	cerr := s.conn.Close(ctx)
	s.mu.Unlock()

	if lerr != nil {
		return lerr
	}
	return cerr
}
