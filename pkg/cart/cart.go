// Package cart implements the client-resident shopping cart: an in-memory
// line collection persisted to a durable slot after every mutation and kept
// in sync with other open sessions through slot change notifications.
package cart

import "github.com/shopspring/decimal"

// Item is the catalog data a caller hands to Add. The cart copies it into
// the line at add time; later catalog changes never reach existing lines.
type Item struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageRef string          `json:"img,omitempty"`
}

// Line is one cart entry. Name, Price and ImageRef are the add-time
// snapshot of the item, not live references. Quantity is always >= 1;
// dropping below 1 removes the line instead.
type Line struct {
	ItemID   int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageRef string          `json:"img,omitempty"`
	Quantity int             `json:"quantity"`
}

func lineFromItem(it Item) Line {
	return Line{
		ItemID:   it.ID,
		Name:     it.Name,
		Price:    it.Price,
		ImageRef: it.ImageRef,
		Quantity: 1,
	}
}

// Subtotal is the line price times its quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
