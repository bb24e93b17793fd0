package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	MovementSale       = "sale"
	MovementRestore    = "restore"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

type StockMovement struct {
	ID        gocql.UUID `json:"id"`
	ProductID gocql.UUID `json:"product_id"`
	Type      string     `json:"type"`
	Quantity  int        `json:"quantity"`
	PrevStock int        `json:"prev_stock"`
	NewStock  int        `json:"new_stock"`
	Reason    string     `json:"reason"`
	OrderID   string     `json:"order_id,omitempty"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
}

type LowStockItem struct {
	ProductID gocql.UUID `json:"product_id"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	Threshold int        `json:"threshold"`
}
