package cart

import "context"

// Slot is one session's handle to the shared durable record the cart is
// persisted in (the browser-side original keeps it in localStorage).
//
// Merge policy: the record always holds one whole serialized cart, and the
// last write physically committed wins. Readers replace their state
// wholesale on every notification; there is no field-level merge and no
// ordering guarantee between two sessions' writes. Concurrent edits in two
// sessions can silently drop one session's change — that is the contract,
// not an accident of a particular backend.
type Slot interface {
	// Load reads the current record. An empty or absent record yields
	// (nil, nil).
	Load(ctx context.Context) ([]byte, error)

	// Store overwrites the record and notifies other sessions. The
	// notification is fire-and-forget: a failed broadcast is logged by
	// the backend, never returned.
	Store(ctx context.Context, data []byte) error

	// Updates delivers writes made by other sessions. A session never
	// observes its own writes here. The channel closes when the slot
	// is closed.
	Updates() <-chan []byte

	Close() error
}

// updateBuffer is the per-session notification queue depth. Notifications
// beyond it are dropped; the next delivered write carries the full state
// anyway, so a dropped intermediate is harmless under last-writer-wins.
const updateBuffer = 8
