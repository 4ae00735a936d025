package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSlot keeps the cart record in a redis key and broadcasts writes on a
// companion pub/sub channel. The published payload is the writer's session
// id, so a session can drop its own messages; receivers re-read the key,
// which under last-writer-wins may legitimately skip intermediate states.
type RedisSlot struct {
	client  *redis.Client
	key     string
	channel string
	session string

	pubsub  *redis.PubSub
	updates chan []byte
	log     *zap.Logger
}

func OpenRedisSlot(ctx context.Context, client *redis.Client, key string, log *zap.Logger) (*RedisSlot, error) {
	s := &RedisSlot{
		client:  client,
		key:     key,
		channel: key + ":updates",
		session: uuid.NewString(),
		updates: make(chan []byte, updateBuffer),
		log:     log,
	}

	s.pubsub = client.Subscribe(ctx, s.channel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("subscribe cart channel: %w", err)
	}

	go s.listen()
	return s, nil
}

func (s *RedisSlot) listen() {
	defer close(s.updates)

	for msg := range s.pubsub.Channel() {
		if msg.Payload == s.session {
			continue
		}

		data, err := s.client.Get(context.Background(), s.key).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
		} else if err != nil {
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

func (s *RedisSlot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart slot: %w", err)
	}
	return data, nil
}

func (s *RedisSlot) Store(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("store cart slot: %w", err)
	}

	// Broadcast is fire-and-forget; the durable write above already
	// succeeded.
	if err := s.client.Publish(ctx, s.channel, s.session).Err(); err != nil && s.log != nil {
		s.log.Warn("cart change broadcast failed", zap.Error(err))
	}
	return nil
}

func (s *RedisSlot) Updates() <-chan []byte { return s.updates }

func (s *RedisSlot) Close() error {
	return s.pubsub.Close()
}
