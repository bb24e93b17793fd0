package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

// maxCASAttempts borne la boucle compare-and-set sur le stock
const maxCASAttempts = 8

const productColumns = `product_id, name, slug, description, price, weight_options, category_id,
	image_urls, tags, stock, track_quantity, allow_backorder, low_stock_threshold,
	is_active, is_featured, rating, num_reviews, created_at, updated_at`

// ScyllaProducts stocke produits, catégories et mouvements dans le keyspace produits
type ScyllaProducts struct {
	session *gocql.Session
}

func NewScyllaProducts(session *gocql.Session) *ScyllaProducts {
	return &ScyllaProducts{session: session}
}

func (s *ScyllaProducts) GetProduct(ctx context.Context, id gocql.UUID) (*models.Product, error) {
	q := s.session.Query(`SELECT `+productColumns+` FROM products WHERE product_id = ?`, id).WithContext(ctx)
	p, err := scanProduct(q.Iter())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *ScyllaProducts) ListProducts(ctx context.Context) ([]models.Product, error) {
	iter := s.session.Query(`SELECT ` + productColumns + ` FROM products`).WithContext(ctx).Iter()
	var products []models.Product
	for {
		p, err := scanProduct(iter)
		if err != nil {
			return nil, err
		}
		if p == nil {
			break
		}
		products = append(products, *p)
	}
	return products, nil
}

// scanProduct lit la ligne suivante; retourne (nil, nil) en fin d'itération
func scanProduct(iter *gocql.Iter) (*models.Product, error) {
	var (
		p       models.Product
		weights string
	)
	ok := iter.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &weights, &p.CategoryID,
		&p.ImageURLs, &p.Tags, &p.Inventory.Quantity, &p.Inventory.TrackQuantity, &p.Inventory.AllowBackorder,
		&p.Inventory.LowStockThreshold, &p.IsActive, &p.IsFeatured, &p.Rating, &p.NumReviews,
		&p.CreatedAt, &p.UpdatedAt)
	if !ok {
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("lecture produits: %w", err)
		}
		return nil, nil
	}
	if weights != "" {
		if err := json.Unmarshal([]byte(weights), &p.WeightOptions); err != nil {
			zap.L().Warn("⚠️ Variantes de poids illisibles", zap.String("product_id", p.ID.String()), zap.Error(err))
		}
	}
	return &p, nil
}

// SaveProduct crée la ligne complète au premier appel puis ne met à jour que la fiche:
// la colonne stock n'est écrite ensuite que par casStock.
func (s *ScyllaProducts) SaveProduct(ctx context.Context, p *models.Product) error {
	weights, err := json.Marshal(p.WeightOptions)
	if err != nil {
		return fmt.Errorf("sérialisation variantes: %w", err)
	}
	existing := map[string]interface{}{}
	applied, err := s.session.Query(`INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		p.ID, p.Name, p.Slug, p.Description, p.Price, string(weights), p.CategoryID,
		p.ImageURLs, p.Tags, p.Inventory.Quantity, p.Inventory.TrackQuantity, p.Inventory.AllowBackorder,
		p.Inventory.LowStockThreshold, p.IsActive, p.IsFeatured, p.Rating, p.NumReviews,
		p.CreatedAt, p.UpdatedAt).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return fmt.Errorf("enregistrement produit %s: %w", p.ID, err)
	}
	if applied {
		return nil
	}

	err = s.session.Query(`UPDATE products SET name = ?, slug = ?, description = ?, price = ?, weight_options = ?,
		category_id = ?, image_urls = ?, tags = ?, track_quantity = ?, allow_backorder = ?, low_stock_threshold = ?,
		is_active = ?, is_featured = ?, rating = ?, num_reviews = ?, updated_at = ? WHERE product_id = ?`,
		p.Name, p.Slug, p.Description, p.Price, string(weights),
		p.CategoryID, p.ImageURLs, p.Tags, p.Inventory.TrackQuantity, p.Inventory.AllowBackorder, p.Inventory.LowStockThreshold,
		p.IsActive, p.IsFeatured, p.Rating, p.NumReviews, p.UpdatedAt, p.ID).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("mise à jour produit %s: %w", p.ID, err)
	}
	if stock, ok := existing["stock"].(int); ok {
		p.Inventory.Quantity = stock
	}
	return nil
}

func (s *ScyllaProducts) Reserve(ctx context.Context, id gocql.UUID, quantity int) (StockChange, error) {
	return s.casStock(ctx, id, func(stock int, track, backorder bool) (int, error) {
		if !track {
			return stock, nil
		}
		if !backorder && stock < quantity {
			return 0, ErrInsufficientStock
		}
		return stock - quantity, nil
	})
}

func (s *ScyllaProducts) Release(ctx context.Context, id gocql.UUID, quantity int) (StockChange, error) {
	return s.casStock(ctx, id, func(stock int, track, _ bool) (int, error) {
		if !track {
			return stock, nil
		}
		return stock + quantity, nil
	})
}

func (s *ScyllaProducts) SetStock(ctx context.Context, id gocql.UUID, quantity int) (StockChange, error) {
	return s.casStock(ctx, id, func(int, bool, bool) (int, error) {
		return quantity, nil
	})
}

// casStock applique next via une LWT "IF stock = ?" et recommence si une autre écriture est passée avant
func (s *ScyllaProducts) casStock(ctx context.Context, id gocql.UUID, next func(stock int, track, backorder bool) (int, error)) (StockChange, error) {
	var (
		stock            int
		track, backorder bool
	)
	err := s.session.Query(`SELECT stock, track_quantity, allow_backorder FROM products WHERE product_id = ?`, id).
		WithContext(ctx).Scan(&stock, &track, &backorder)
	if errors.Is(err, gocql.ErrNotFound) {
		return StockChange{}, ErrNotFound
	}
	if err != nil {
		return StockChange{}, fmt.Errorf("lecture stock %s: %w", id, err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		target, err := next(stock, track, backorder)
		if err != nil {
			return StockChange{Prev: stock, New: stock, Tracked: track}, err
		}
		if target == stock {
			return StockChange{Prev: stock, New: stock, Tracked: track}, nil
		}

		var current int
		applied, err := s.session.Query(`UPDATE products SET stock = ?, updated_at = ? WHERE product_id = ? IF stock = ?`,
			target, time.Now(), id, stock).WithContext(ctx).ScanCAS(&current)
		if err != nil {
			return StockChange{}, fmt.Errorf("mise à jour stock %s: %w", id, err)
		}
		if applied {
			return StockChange{Prev: stock, New: target, Tracked: track}, nil
		}
		stock = current
	}
	return StockChange{}, fmt.Errorf("stock %s: %w", id, ErrConflict)
}

func (s *ScyllaProducts) ListCategories(ctx context.Context) ([]models.Category, error) {
	iter := s.session.Query(`SELECT category_id, name, slug, description, image_url, parent_id, created_at FROM categories`).
		WithContext(ctx).Iter()

	var (
		categories []models.Category
		c          models.Category
	)
	for iter.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ImageURL, &c.ParentID, &c.CreatedAt) {
		categories = append(categories, c)
		c = models.Category{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture catégories: %w", err)
	}
	return categories, nil
}

func (s *ScyllaProducts) SaveCategory(ctx context.Context, c *models.Category) error {
	err := s.session.Query(`INSERT INTO categories (category_id, name, slug, description, image_url, parent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Slug, c.Description, c.ImageURL, c.ParentID, c.CreatedAt).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("enregistrement catégorie: %w", err)
	}
	return nil
}

func (s *ScyllaProducts) RecordMovement(ctx context.Context, m *models.StockMovement) error {
	err := s.session.Query(`INSERT INTO stock_movements (
			id, product_id, type, quantity, prev_stock, new_stock, reason, order_id, user_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProductID, m.Type, m.Quantity, m.PrevStock, m.NewStock, m.Reason, m.OrderID, m.UserID, m.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("enregistrement mouvement stock: %w", err)
	}
	return nil
}

func (s *ScyllaProducts) ListMovements(ctx context.Context, productID gocql.UUID, limit int) ([]models.StockMovement, error) {
	iter := s.session.Query(`SELECT id, product_id, type, quantity, prev_stock, new_stock, reason, order_id, user_id, created_at
		FROM stock_movements WHERE product_id = ? LIMIT ?`, productID, limit).WithContext(ctx).Iter()

	var (
		movements []models.StockMovement
		m         models.StockMovement
	)
	for iter.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.PrevStock, &m.NewStock, &m.Reason, &m.OrderID, &m.UserID, &m.CreatedAt) {
		movements = append(movements, m)
		m = models.StockMovement{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture mouvements stock: %w", err)
	}
	return movements, nil
}
