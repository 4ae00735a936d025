package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is a catalog entry. The id is assigned by the store and never reused
// within a process lifetime, even after deletions.
type Item struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageRef string          `json:"img,omitempty"`
}

// Fields is the caller-supplied part of an Item on create.
type Fields struct {
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

var (
	ErrNotFound   = errors.New("item not found")
	ErrIDMismatch = errors.New("id does not match")
	ErrInvalid    = errors.New("invalid item")
)

type Store interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id int64) (Item, bool, error)
	Create(ctx context.Context, f Fields) (Item, error)

	// Replace swaps the stored item for it; it.ID must equal id
	// (ErrIDMismatch otherwise) and the id must exist (ErrNotFound).
	// Nothing is mutated on failure.
	Replace(ctx context.Context, id int64, it Item) (Item, error)

	// Delete removes the item and best-effort cleans up its image file.
	// Image cleanup failure is logged, never returned.
	Delete(ctx context.Context, id int64) (Item, bool, error)
}

func validateFields(name string, price decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalid)
	}
	return nil
}
