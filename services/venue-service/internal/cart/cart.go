// Package cart plans edits to an occurrence's purchased-item lines.
//
// Plan validates an edit against the occurrence and the catalog and returns
// the Change a store must apply. Stock is re-checked by the store inside the
// same transaction, so the pre-check here only exists to fail fast.
package cart

import (
	"fmt"
	"slices"
	"strings"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

type Mode int

const (
	// Add upserts the line and re-snapshots the catalog price.
	Add Mode = iota
	// Update sets the quantity, keeping an existing line's price snapshot.
	// Quantity 0 removes the line.
	Update
)

// Change is the line edit plus the stock movement it implies. StockDelta > 0
// reserves stock, < 0 releases it.
type Change struct {
	OccurrenceID string
	ProductID    string
	ProductName  string
	Quantity     int
	UnitPrice    int64
	StockDelta   int
}

func (c Change) Removes() bool {
	return c.Quantity == 0
}

func (c Change) Line() model.OrderItemLine {
	return model.OrderItemLine{
		OccurrenceID: c.OccurrenceID,
		ProductID:    c.ProductID,
		ProductName:  c.ProductName,
		Quantity:     c.Quantity,
		UnitPrice:    c.UnitPrice,
	}
}

func Plan(mode Mode, o model.Occurrence, lines []model.OrderItemLine, p model.Product, quantity int) (Change, error) {
	if o.Status != model.StatusCheckedIn {
		return Change{}, fmt.Errorf("%w: items can only be changed while checked in (status %s)", model.ErrInvalidState, o.Status)
	}
	if strings.TrimSpace(p.ID) == "" {
		return Change{}, fmt.Errorf("%w: product id required", model.ErrInvalidInput)
	}
	if quantity < 0 || (mode == Add && quantity == 0) {
		return Change{}, fmt.Errorf("%w: quantity %d", model.ErrInvalidInput, quantity)
	}

	current, hasLine := findLine(lines, p.ID)
	ch := Change{
		OccurrenceID: o.ID,
		ProductID:    p.ID,
		ProductName:  p.Name,
		Quantity:     quantity,
		UnitPrice:    p.UnitPrice,
		StockDelta:   quantity - current.Quantity,
	}
	if mode == Update && hasLine {
		ch.UnitPrice = current.UnitPrice
		if current.ProductName != "" {
			ch.ProductName = current.ProductName
		}
	}
	if ch.StockDelta > p.AvailableStock {
		return Change{}, fmt.Errorf("%w: %s needs %d more, %d available", model.ErrInsufficientStock, p.ID, ch.StockDelta, p.AvailableStock)
	}
	return ch, nil
}

// Apply returns lines with c applied, for callers that keep the aggregate in
// memory after a successful commit.
func Apply(lines []model.OrderItemLine, c Change) []model.OrderItemLine {
	out := slices.DeleteFunc(slices.Clone(lines), func(l model.OrderItemLine) bool {
		return l.ProductID == c.ProductID
	})
	if !c.Removes() {
		out = append(out, c.Line())
	}
	return Active(out)
}

// Active returns the lines with a positive quantity ordered by product id.
func Active(lines []model.OrderItemLine) []model.OrderItemLine {
	out := make([]model.OrderItemLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity > 0 {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b model.OrderItemLine) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return out
}

func findLine(lines []model.OrderItemLine, productID string) (model.OrderItemLine, bool) {
	for _, l := range lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return model.OrderItemLine{}, false
}
