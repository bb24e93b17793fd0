package models

import (
	"time"

	"github.com/gocql/gocql"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

const (
	PaymentCOD  = "cod"
	PaymentCard = "card"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

type Order struct {
	ID              gocql.UUID      `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerName    string          `json:"customer_name,omitempty"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	Payment         PaymentInfo     `json:"payment"`
	Pricing         Pricing         `json:"pricing"`
	Status          OrderStatus     `json:"status"`
	Timeline        []TimelineEvent `json:"timeline"`
	Refund          *RefundInfo     `json:"refund,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem est une copie figée du produit au moment de l'achat
type OrderItem struct {
	ProductID string        `json:"product_id"`
	Name      string        `json:"name"`
	ImageURL  string        `json:"image_url,omitempty"`
	Price     float64       `json:"price"`
	Quantity  int           `json:"quantity"`
	Weight    *WeightOption `json:"weight,omitempty"`
	Total     float64       `json:"total"`
}

type PaymentInfo struct {
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type Pricing struct {
	ItemsPrice    float64 `json:"items_price"`
	TaxPrice      float64 `json:"tax_price"`
	ShippingPrice float64 `json:"shipping_price"`
	TotalPrice    float64 `json:"total_price"`
}

type TimelineEvent struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	Actor     string      `json:"actor,omitempty"`
}

type RefundInfo struct {
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	GatewayID string    `json:"gateway_id,omitempty"`
	By        string    `json:"by"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderSummary est la réponse renvoyée au client après création
type OrderSummary struct {
	ID          gocql.UUID  `json:"id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
	Pricing     Pricing     `json:"pricing"`
	ItemsCount  int         `json:"items_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Pricing:     o.Pricing,
		ItemsCount:  len(o.Items),
		CreatedAt:   o.CreatedAt,
	}
}

// AppendTimeline ajoute une entrée à l'historique (append-only)
func (o *Order) AppendTimeline(status OrderStatus, note, actor string, at time.Time) {
	o.Timeline = append(o.Timeline, TimelineEvent{
		Status:    status,
		Timestamp: at,
		Note:      note,
		Actor:     actor,
	})
}
