package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// persistTimeout bounds the durable write after a mutation. The write is
// expected to be effectively instantaneous; a slow or failing backend is
// logged, never surfaced to the caller.
const persistTimeout = 1 * time.Second

// Engine holds one session's cart. All operations are synchronous
// in-memory transforms followed by a fire-and-forget persist; external
// writes observed through the slot replace the collection wholesale.
type Engine struct {
	mu    sync.Mutex
	lines []Line

	slot Slot
	log  *zap.Logger
}

// NewEngine loads the session's cart from the slot and starts watching for
// writes from other sessions. Malformed persisted data falls back to an
// empty cart.
func NewEngine(slot Slot, log *zap.Logger) *Engine {
	e := &Engine{slot: slot, log: log}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	data, err := slot.Load(ctx)
	if err != nil {
		if log != nil {
			log.Warn("cart load failed, starting empty", zap.Error(err))
		}
	} else {
		e.lines = decodeLines(data, log)
	}

	go e.watch()
	return e
}

// Close releases the underlying slot and stops the sync watcher.
func (e *Engine) Close() error {
	return e.slot.Close()
}

func (e *Engine) watch() {
	for data := range e.slot.Updates() {
		lines := decodeLines(data, e.log)
		e.mu.Lock()
		e.lines = lines
		e.mu.Unlock()
	}
}

// Add puts one unit of the item in the cart: a new line with an add-time
// snapshot, or one more on the existing line for the same item id.
func (e *Engine) Add(it Item) {
	e.mu.Lock()
	if l := e.findLocked(it.ID); l != nil {
		l.Quantity++
	} else {
		e.lines = append(e.lines, lineFromItem(it))
	}
	snapshot := e.encodeLocked()
	e.mu.Unlock()

	e.persist(snapshot)
}

// Remove drops the line for itemID. Removing an absent line is a no-op,
// not an error.
func (e *Engine) Remove(itemID int64) {
	e.mu.Lock()
	e.removeLocked(itemID)
	snapshot := e.encodeLocked()
	e.mu.Unlock()

	e.persist(snapshot)
}

// UpdateQuantity sets the line's quantity to n. n < 1 removes the line;
// an absent line is a no-op.
func (e *Engine) UpdateQuantity(itemID int64, n int) {
	e.mu.Lock()
	if n < 1 {
		e.removeLocked(itemID)
	} else if l := e.findLocked(itemID); l != nil {
		l.Quantity = n
	}
	snapshot := e.encodeLocked()
	e.mu.Unlock()

	e.persist(snapshot)
}

// Clear empties the cart.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.lines = nil
	snapshot := e.encodeLocked()
	e.mu.Unlock()

	e.persist(snapshot)
}

// Lines returns the cart in insertion order.
func (e *Engine) Lines() []Line {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// Total is the sum of line subtotals.
func (e *Engine) Total() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := decimal.Zero
	for _, l := range e.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Count is the sum of quantities.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, l := range e.lines {
		n += l.Quantity
	}
	return n
}

func (e *Engine) findLocked(itemID int64) *Line {
	for i := range e.lines {
		if e.lines[i].ItemID == itemID {
			return &e.lines[i]
		}
	}
	return nil
}

func (e *Engine) removeLocked(itemID int64) {
	for i := range e.lines {
		if e.lines[i].ItemID == itemID {
			e.lines = append(e.lines[:i], e.lines[i+1:]...)
			return
		}
	}
}

func (e *Engine) encodeLocked() []byte {
	data, err := json.Marshal(e.lines)
	if err != nil {
		// Lines hold only plain values; this cannot fail in practice.
		if e.log != nil {
			e.log.Error("cart encode failed", zap.Error(err))
		}
		return nil
	}
	return data
}

func (e *Engine) persist(data []byte) {
	if data == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := e.slot.Store(ctx, data); err != nil && e.log != nil {
		e.log.Warn("cart persist failed", zap.Error(err))
	}
}

func decodeLines(data []byte, log *zap.Logger) []Line {
	if len(data) == 0 {
		return nil
	}

	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		if log != nil {
			log.Warn("malformed cart data, resetting to empty", zap.Error(err))
		}
		return nil
	}
	return lines
}
