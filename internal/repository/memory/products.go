// Package memory fournit des dépôts en mémoire (mode développement et tests).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
)

type Products struct {
	mu         sync.Mutex
	products   map[gocql.UUID]models.Product
	categories map[gocql.UUID]models.Category
	movements  []models.StockMovement
}

func NewProducts() *Products {
	return &Products{
		products:   make(map[gocql.UUID]models.Product),
		categories: make(map[gocql.UUID]models.Category),
	}
}

func cloneProduct(p models.Product) *models.Product {
	p.WeightOptions = append([]models.WeightOption(nil), p.WeightOptions...)
	p.ImageURLs = append([]string(nil), p.ImageURLs...)
	p.Tags = append([]string(nil), p.Tags...)
	return &p
}

func (s *Products) GetProduct(_ context.Context, id gocql.UUID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Products) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// SaveProduct n'écrit le stock qu'à la création: ensuite seuls Reserve, Release et SetStock le modifient
func (s *Products) SaveProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.products[p.ID]; ok {
		p.Inventory.Quantity = current.Inventory.Quantity
	}
	s.products[p.ID] = *cloneProduct(*p)
	return nil
}

func (s *Products) Reserve(_ context.Context, id gocql.UUID, quantity int) (repository.StockChange, error) {
	return s.update(id, func(inv models.Inventory) (int, error) {
		if !inv.TrackQuantity {
			return inv.Quantity, nil
		}
		if !inv.AllowBackorder && inv.Quantity < quantity {
			return 0, repository.ErrInsufficientStock
		}
		return inv.Quantity - quantity, nil
	})
}

func (s *Products) Release(_ context.Context, id gocql.UUID, quantity int) (repository.StockChange, error) {
	return s.update(id, func(inv models.Inventory) (int, error) {
		if !inv.TrackQuantity {
			return inv.Quantity, nil
		}
		return inv.Quantity + quantity, nil
	})
}

func (s *Products) SetStock(_ context.Context, id gocql.UUID, quantity int) (repository.StockChange, error) {
	return s.update(id, func(models.Inventory) (int, error) { return quantity, nil })
}

func (s *Products) update(id gocql.UUID, next func(models.Inventory) (int, error)) (repository.StockChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return repository.StockChange{}, repository.ErrNotFound
	}
	change := repository.StockChange{Prev: p.Inventory.Quantity, New: p.Inventory.Quantity, Tracked: p.Inventory.TrackQuantity}
	target, err := next(p.Inventory)
	if err != nil {
		return change, err
	}
	if target != p.Inventory.Quantity {
		p.Inventory.Quantity = target
		p.UpdatedAt = time.Now()
		s.products[id] = p
	}
	change.New = target
	return change, nil
}

func (s *Products) ListCategories(_ context.Context) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Products) SaveCategory(_ context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = *c
	return nil
}

func (s *Products) RecordMovement(_ context.Context, m *models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, *m)
	return nil
}

func (s *Products) ListMovements(_ context.Context, productID gocql.UUID, limit int) ([]models.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StockMovement
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].ProductID != productID {
			continue
		}
		out = append(out, s.movements[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
