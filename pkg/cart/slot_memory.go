package cart

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process slot backend: one shared record per key,
// one MemorySlot handle per session. It models the browser's localStorage
// plus storage events and is the backend the tests run against.
type MemoryBroker struct {
	mu   sync.Mutex
	data map[string][]byte
	subs map[string]map[*MemorySlot]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		data: make(map[string][]byte),
		subs: make(map[string]map[*MemorySlot]struct{}),
	}
}

// Open registers a new session handle on key. Every handle sees writes
// made through the others, never its own.
func (b *MemoryBroker) Open(key string) *MemorySlot {
	s := &MemorySlot{
		broker:  b,
		key:     key,
		updates: make(chan []byte, updateBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*MemorySlot]struct{})
	}
	b.subs[key][s] = struct{}{}
	return s
}

type MemorySlot struct {
	broker  *MemoryBroker
	key     string
	updates chan []byte
	once    sync.Once
}

func (s *MemorySlot) Load(ctx context.Context) ([]byte, error) {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	data, ok := s.broker.data[s.key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemorySlot) Store(ctx context.Context, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	s.broker.data[s.key] = stored

	for peer := range s.broker.subs[s.key] {
		if peer == s {
			continue
		}
		select {
		case peer.updates <- stored:
		default:
			// Fire-and-forget: a full queue drops the notification;
			// the next write carries complete state anyway.
		}
	}
	return nil
}

func (s *MemorySlot) Updates() <-chan []byte { return s.updates }

func (s *MemorySlot) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs[s.key], s)
		s.broker.mu.Unlock()
		close(s.updates)
	})
	return nil
}
