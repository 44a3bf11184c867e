package stock

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// Variant identifies interchangeable units: one product in one size and color.
type Variant struct {
	ProductID string
	Size      string
	Color     string
}

func (v Variant) key() string {
	return v.ProductID + "|" + v.Size + "|" + v.Color
}

func (v Variant) String() string {
	parts := []string{v.ProductID}
	if v.Size != "" {
		parts = append(parts, v.Size)
	}
	if v.Color != "" {
		parts = append(parts, v.Color)
	}
	return strings.Join(parts, "/")
}

// Line is one order line to reserve.
type Line struct {
	OrderItemID uuid.UUID
	Variant     Variant
	Quantity    int
}

// Reservation is one unit reserved for one line.
type Reservation struct {
	OrderItemID uuid.UUID
	StockUnit   models.StockUnit
}

// Shortage describes a variant that cannot be satisfied.
type Shortage struct {
	Variant   Variant `json:"variant"`
	Requested int     `json:"requested"`
	Available int     `json:"available"`
}

// ShortageError is returned when any line cannot be fully reserved.
type ShortageError struct {
	Shortages []Shortage
	// Raced is set when pre-validation passed but the locking read came up short.
	Raced bool
}

func (e *ShortageError) Error() string {
	if len(e.Shortages) == 0 {
		return "insufficient inventory"
	}
	first := e.Shortages[0]
	return fmt.Sprintf("insufficient inventory for %s: requested %d, available %d", first.Variant, first.Requested, first.Available)
}

// CorrectionInput is an operator override of a unit status.
type CorrectionInput struct {
	StockUnitID uuid.UUID
	Status      enums.StockStatus
	Reason      string
	AdminID     uuid.UUID
}

// LineFromItem builds a reservation line from an order item.
func LineFromItem(item models.OrderItem) Line {
	v := Variant{ProductID: item.ProductID}
	if item.Size != nil {
		v.Size = strings.TrimSpace(*item.Size)
	}
	if item.Color != nil {
		v.Color = strings.TrimSpace(*item.Color)
	}
	return Line{OrderItemID: item.ID, Variant: v, Quantity: item.Quantity}
}
