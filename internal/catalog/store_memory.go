package catalog

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ImageRemover cleans up the file behind an image ref. Deletion is
// best-effort from the store's point of view.
type ImageRemover interface {
	Remove(ctx context.Context, ref string) error
}

// MemStore keeps the catalog in process memory. Ids come from a monotonic
// counter guarded by the same mutex as the collection, so concurrent
// create/delete can never hand out a duplicate or recycled id.
type MemStore struct {
	mu     sync.Mutex
	m      map[int64]Item
	order  []int64
	nextID int64

	images ImageRemover
	log    *zap.Logger
}

// NewMemStore seeds the store and starts the id counter at the seed size,
// matching the demo data convention. Known limitation: if the catalog ever
// moves to persistent storage, restarting after deletions would make this
// seeding scheme reuse ids; the intended production behavior upstream is
// undocumented, so the scheme is kept as-is.
func NewMemStore(seed []Item, images ImageRemover, log *zap.Logger) *MemStore {
	s := &MemStore{
		m:      make(map[int64]Item, len(seed)),
		nextID: int64(len(seed)),
		images: images,
		log:    log,
	}
	for _, it := range seed {
		s.m[it.ID] = it
		s.order = append(s.order, it.ID)
	}
	return s
}

// DemoItems is the default seed catalog.
func DemoItems() []Item {
	return []Item{
		{ID: 1, Name: "Keyboard", Price: decimal.NewFromFloat(49.90)},
		{ID: 2, Name: "Mouse", Price: decimal.NewFromFloat(19.90)},
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.m[id])
	}
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.m[id]
	return it, ok, nil
}

func (s *MemStore) Create(ctx context.Context, f Fields) (Item, error) {
	if err := validateFields(f.Name, f.Price); err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	it := Item{ID: s.nextID, Name: f.Name, Price: f.Price, ImageRef: f.ImageRef}
	s.m[it.ID] = it
	s.order = append(s.order, it.ID)

	if s.log != nil {
		s.log.Info("item created", zap.Int64("id", it.ID), zap.String("name", it.Name))
	}
	return it, nil
}

func (s *MemStore) Replace(ctx context.Context, id int64, it Item) (Item, error) {
	if it.ID != id {
		return Item{}, ErrIDMismatch
	}
	if err := validateFields(it.Name, it.Price); err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return Item{}, ErrNotFound
	}
	s.m[id] = it

	if s.log != nil {
		s.log.Info("item replaced", zap.Int64("id", id))
	}
	return it, nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) (Item, bool, error) {
	s.mu.Lock()
	it, ok := s.m[id]
	if !ok {
		s.mu.Unlock()
		return Item{}, false, nil
	}
	delete(s.m, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.cleanupImage(ctx, it)

	if s.log != nil {
		s.log.Info("item deleted", zap.Int64("id", id), zap.String("name", it.Name))
	}
	return it, true, nil
}

// cleanupImage removes the backing file, if any. Failure never surfaces:
// a missing or stuck file must not block the catalog deletion.
func (s *MemStore) cleanupImage(ctx context.Context, it Item) {
	if it.ImageRef == "" || s.images == nil {
		return
	}
	if err := s.images.Remove(ctx, it.ImageRef); err != nil && s.log != nil {
		s.log.Warn("image cleanup failed",
			zap.Int64("id", it.ID),
			zap.String("ref", it.ImageRef),
			zap.Error(err),
		)
	}
}
