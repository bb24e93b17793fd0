package models

import (
	"time"

	"github.com/gocql/gocql"
)

// BaseWeightGrams est le poids de référence du prix de base (1 kg)
const BaseWeightGrams = 1000

// WeightOption représente une unité de vente alternative (250g, 500g, 1kg...)
type WeightOption struct {
	Label string  `json:"label"`
	Grams int     `json:"grams"`
	Price float64 `json:"price"`
}

type Inventory struct {
	Quantity          int  `json:"quantity"`
	TrackQuantity     bool `json:"track_quantity"`
	AllowBackorder    bool `json:"allow_backorder"`
	LowStockThreshold int  `json:"low_stock_threshold"`
}

type Product struct {
	ID            gocql.UUID     `json:"id" db:"product_id"`
	Name          string         `json:"name" db:"name"`
	Slug          string         `json:"slug" db:"slug"`
	Description   string         `json:"description" db:"description"`
	Price         float64        `json:"price" db:"price"`
	WeightOptions []WeightOption `json:"weight_options,omitempty" db:"weight_options"`
	CategoryID    gocql.UUID     `json:"category_id" db:"category_id"`
	ImageURLs     []string       `json:"image_urls" db:"image_urls"`
	Tags          []string       `json:"tags,omitempty" db:"tags"`
	Inventory     Inventory      `json:"inventory" db:"-"`
	IsActive      bool           `json:"is_active" db:"is_active"`
	IsFeatured    bool           `json:"is_featured" db:"is_featured"`
	Rating        float64        `json:"rating" db:"rating"`
	NumReviews    int            `json:"num_reviews" db:"num_reviews"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// FindWeightOption retrouve une variante de poids proposée par le produit.
// La correspondance se fait sur le libellé ou, à défaut, sur le grammage.
func (p *Product) FindWeightOption(w WeightOption) (WeightOption, bool) {
	for _, opt := range p.WeightOptions {
		if w.Label != "" && opt.Label == w.Label {
			return opt, true
		}
		if w.Label == "" && w.Grams > 0 && opt.Grams == w.Grams {
			return opt, true
		}
	}
	return WeightOption{}, false
}

// UnitPrice retourne le prix unitaire pour une variante (nil = prix de base)
func (p *Product) UnitPrice(w *WeightOption) float64 {
	if w == nil {
		return p.Price
	}
	return w.Price
}

// FirstImage retourne la première image pour l'aperçu
func (p *Product) FirstImage() string {
	if len(p.ImageURLs) > 0 {
		return p.ImageURLs[0]
	}
	return ""
}

// HasStockFor indique si le stock couvre la quantité demandée
func (inv Inventory) HasStockFor(quantity int) bool {
	if !inv.TrackQuantity || inv.AllowBackorder {
		return true
	}
	return inv.Quantity >= quantity
}
