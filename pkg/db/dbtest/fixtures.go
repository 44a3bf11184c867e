package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/prepmood/prepmood-backend/pkg/db/models"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	"github.com/prepmood/prepmood-backend/pkg/types"
)

// LineSeed describes one order line of a seeded order.
type LineSeed struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int
	UnitPrice int64
}

// OrderSeed describes a seeded order. A nil UserID makes a guest order.
type OrderSeed struct {
	UserID     *uuid.UUID
	GuestEmail string
	Lines      []LineSeed
}

func SeedUser(t testing.TB, conn *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, Name: "Test User"}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedOrder creates a pending order with its lines; the total is the sum of
// line subtotals.
func SeedOrder(t testing.TB, conn *gorm.DB, seed OrderSeed) models.Order {
	t.Helper()
	order := models.Order{
		OrderNumber: "PM-" + uuid.NewString()[:12],
		UserID:      seed.UserID,
		Status:      enums.OrderStatusPending,
		Currency:    enums.CurrencyKRW,
		Billing: &types.Contact{
			Name:    "Kim Minji",
			Email:   "buyer@example.com",
			Phone:   "010-1234-5678",
			Line1:   "12 Teheran-ro",
			City:    "Seoul",
			Country: "KR",
		},
		Shipping: &types.Contact{
			Name:    "Kim Minji",
			Line1:   "12 Teheran-ro",
			City:    "Seoul",
			Country: "KR",
		},
	}
	if seed.GuestEmail != "" {
		email := seed.GuestEmail
		order.GuestEmail = &email
	}
	total := decimal.Zero
	for _, line := range seed.Lines {
		price := decimal.NewFromInt(line.UnitPrice)
		subtotal := price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		item := models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: "Product " + line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			Subtotal:    subtotal,
		}
		if line.Size != "" {
			size := line.Size
			item.Size = &size
		}
		if line.Color != "" {
			color := line.Color
			item.Color = &color
		}
		order.Items = append(order.Items, item)
		total = total.Add(subtotal)
	}
	order.TotalAmount = total
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// SeedStock creates n in-stock units of a variant, each with its own serial token.
func SeedStock(t testing.TB, conn *gorm.DB, productID, size, color string, n int) []models.StockUnit {
	t.Helper()
	units := make([]models.StockUnit, 0, n)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		token := models.SerialToken{
			Token:     fmt.Sprintf("%s-%s", productID, uuid.NewString()[:10]),
			ProductID: productID,
		}
		if err := conn.Create(&token).Error; err != nil {
			t.Fatalf("seed serial token: %v", err)
		}
		unit := models.StockUnit{
			ProductID:     productID,
			SerialTokenID: token.ID,
			Status:        enums.StockStatusInStock,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if size != "" {
			s := size
			unit.Size = &s
		}
		if color != "" {
			c := color
			unit.Color = &c
		}
		if err := conn.Create(&unit).Error; err != nil {
			t.Fatalf("seed stock unit: %v", err)
		}
		units = append(units, unit)
	}
	return units
}

// CountStock counts units of productID in the given status.
func CountStock(t testing.TB, conn *gorm.DB, productID string, status enums.StockStatus) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.StockUnit{}).
		Where("product_id = ? AND status = ?", productID, status).
		Count(&count).Error; err != nil {
		t.Fatalf("count stock: %v", err)
	}
	return count
}

// SeedOrderUnits reserves fresh stock for every item of order and binds it
// through reserved order item units, as a committed fulfillment would.
func SeedOrderUnits(t testing.TB, conn *gorm.DB, order models.Order) []models.OrderItemUnit {
	t.Helper()
	var out []models.OrderItemUnit
	now := time.Now().UTC()
	for _, item := range order.Items {
		size, color := "", ""
		if item.Size != nil {
			size = *item.Size
		}
		if item.Color != nil {
			color = *item.Color
		}
		stock := SeedStock(t, conn, item.ProductID, size, color, item.Quantity)
		for i, unit := range stock {
			orderID := order.ID
			if err := conn.Model(&models.StockUnit{}).Where("id = ?", unit.ID).Updates(map[string]any{
				"status":               enums.StockStatusReserved,
				"reserved_by_order_id": orderID,
				"reserved_at":          now,
			}).Error; err != nil {
				t.Fatalf("reserve seeded stock: %v", err)
			}
			oiu := models.OrderItemUnit{
				OrderID:       order.ID,
				OrderItemID:   item.ID,
				UnitSeq:       i + 1,
				StockUnitID:   unit.ID,
				SerialTokenID: unit.SerialTokenID,
				Status:        enums.UnitStatusReserved,
			}
			if err := conn.Create(&oiu).Error; err != nil {
				t.Fatalf("seed order item unit: %v", err)
			}
			out = append(out, oiu)
		}
	}
	return out
}

// SeedPaidEvent stores payment evidence for order.
func SeedPaidEvent(t testing.TB, conn *gorm.DB, order models.Order) models.PaidEvent {
	t.Helper()
	event := models.PaidEvent{
		OrderID:     order.ID,
		PaymentKey:  "pay_" + uuid.NewString()[:8],
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		EventSource: enums.PaidEventSourceWebhook,
		ConfirmedAt: time.Now().UTC(),
	}
	if err := conn.Create(&event).Error; err != nil {
		t.Fatalf("seed paid event: %v", err)
	}
	return event
}
