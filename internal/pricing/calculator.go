package pricing

import (
	"strings"

	"mekassarat_back_end/internal/models"

	"github.com/shopspring/decimal"
)

// ShippingPolicy applique un tarif réduit pour quelques villes, un tarif standard ailleurs
type ShippingPolicy struct {
	DiscountCities []string
	DiscountRate   float64
	StandardRate   float64
}

func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		DiscountCities: []string{"Cairo", "Giza"},
		DiscountRate:   70,
		StandardRate:   100,
	}
}

func (p ShippingPolicy) Cost(city string) float64 {
	city = strings.TrimSpace(city)
	for _, c := range p.DiscountCities {
		if strings.EqualFold(c, city) {
			return p.DiscountRate
		}
	}
	return p.StandardRate
}

// Calculator est l'unique fonction de prix partagée par le checkout et le paiement carte
type Calculator struct {
	Shipping ShippingPolicy
	TaxRate  float64
}

func NewCalculator(shipping ShippingPolicy, taxRate float64) *Calculator {
	return &Calculator{Shipping: shipping, TaxRate: taxRate}
}

// Compute calcule le détail; override remplace le coût de livraison calculé
func (c *Calculator) Compute(items []models.OrderItem, city string, override *float64) models.Pricing {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(it.Total))
	}
	subtotal = subtotal.Round(2)

	shipping := c.Shipping.Cost(city)
	if override != nil && *override >= 0 {
		shipping = *override
	}
	tax := subtotal.Mul(decimal.NewFromFloat(c.TaxRate)).Round(2)

	pricing := models.Pricing{
		ItemsPrice:    subtotal.InexactFloat64(),
		TaxPrice:      tax.InexactFloat64(),
		ShippingPrice: decimal.NewFromFloat(shipping).Round(2).InexactFloat64(),
	}
	pricing.TotalPrice = pricing.ItemsPrice + pricing.TaxPrice + pricing.ShippingPrice
	return pricing
}
