package cache

import (
	"context"
	"encoding/json"
	"time"

	"mekassarat_back_end/internal/models"

	"go.uber.org/zap"
)

const (
	ProductListKey  = "products:all"
	ProductCacheTTL = 10 * time.Minute
)

// ProductCache garde la liste complète des produits pour les lectures du catalogue
type ProductCache struct {
	store Store
}

func NewProductCache(store Store) *ProductCache {
	return &ProductCache{store: store}
}

func (c *ProductCache) Products(ctx context.Context) ([]models.Product, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	val, err := c.store.Get(ctx, ProductListKey)
	if err != nil || val == "" {
		return nil, false
	}
	var products []models.Product
	if err := json.Unmarshal([]byte(val), &products); err != nil {
		return nil, false
	}
	return products, true
}

func (c *ProductCache) SetProducts(ctx context.Context, products []models.Product) {
	if c == nil || c.store == nil {
		return
	}
	data, err := json.Marshal(products)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, ProductListKey, string(data), ProductCacheTTL); err != nil {
		zap.L().Warn("⚠️ Mise en cache des produits impossible", zap.Error(err))
	}
}

// Invalidate doit être appelé après toute écriture produit (y compris le stock)
func (c *ProductCache) Invalidate(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, ProductListKey); err != nil {
		zap.L().Warn("⚠️ Invalidation du cache produits impossible", zap.Error(err))
	}
}
