package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	UserID      string     `json:"user_id"`
	Items       []CartItem `json:"items"`
	TotalAmount float64    `json:"total_amount"`
	TotalItems  int        `json:"total_items"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CartItem struct {
	ProductID string        `json:"product_id"`
	Name      string        `json:"name"`
	ImageURL  string        `json:"image_url,omitempty"`
	Price     float64       `json:"price"`
	Quantity  int           `json:"quantity"`
	Weight    *WeightOption `json:"weight,omitempty"`
}

// SameLine indique si la ligne correspond au couple (produit, variante).
// La variante se reconnaît par son libellé, ou par ses grammes quand le libellé est absent.
func (i CartItem) SameLine(productID string, weight *WeightOption) bool {
	if i.ProductID != productID {
		return false
	}
	if i.Weight == nil || weight == nil {
		return i.Weight == nil && weight == nil
	}
	if weight.Label != "" {
		return i.Weight.Label == weight.Label
	}
	return weight.Grams > 0 && i.Weight.Grams == weight.Grams
}

// Recalculate recalcule les totaux dérivés du panier
func (c *Cart) Recalculate() {
	total := decimal.Zero
	count := 0
	for _, item := range c.Items {
		total = total.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	c.TotalAmount, _ = total.Round(2).Float64()
	c.TotalItems = count
}

// QuantityOf additionne les quantités de toutes les lignes d'un produit, variantes comprises
func (c *Cart) QuantityOf(productID string) int {
	total := 0
	for _, item := range c.Items {
		if item.ProductID == productID {
			total += item.Quantity
		}
	}
	return total
}

// IndexOf retourne la position de la ligne ou -1
func (c *Cart) IndexOf(productID string, weight *WeightOption) int {
	for i, item := range c.Items {
		if item.SameLine(productID, weight) {
			return i
		}
	}
	return -1
}
