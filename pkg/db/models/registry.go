package models

// All lists every model owned by the fulfillment schema, in dependency order.
func All() []any {
	return []any{
		&User{},
		&Order{},
		&OrderItem{},
		&SerialToken{},
		&StockUnit{},
		&OrderStockIssue{},
		&OrderItemUnit{},
		&Shipment{},
		&Warranty{},
		&WarrantyEvent{},
		&WarrantyTransfer{},
		&PaidEvent{},
		&PaidEventProcessing{},
		&Invoice{},
		&ClaimToken{},
		&GuestAccessToken{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
