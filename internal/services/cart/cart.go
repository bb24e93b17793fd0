// Package cart gère le panier d'un utilisateur: une ligne par couple (produit, variante).
package cart

import (
	"context"
	"errors"
	"time"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

type Service struct {
	carts    repository.CartStore
	products repository.ProductStore
	now      func() time.Time
}

func NewService(carts repository.CartStore, products repository.ProductStore) *Service {
	return &Service{carts: carts, products: products, now: time.Now}
}

// activeProduct retourne ProductNotFound si le produit est absent ou désactivé
func (s *Service) activeProduct(ctx context.Context, productID string) (*models.Product, error) {
	pid, err := gocql.ParseUUID(productID)
	if err != nil {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	p, err := s.products.GetProduct(ctx, pid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.ProductNotFound, "produit introuvable")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture produit impossible")
	}
	if !p.IsActive {
		return nil, apperr.New(apperr.ProductNotFound, "produit %s indisponible", p.Name)
	}
	return p, nil
}

// resolveWeight vérifie que la variante demandée est bien proposée par le produit
func resolveWeight(p *models.Product, requested *models.WeightOption) (*models.WeightOption, error) {
	if requested == nil {
		return nil, nil
	}
	opt, ok := p.FindWeightOption(*requested)
	if !ok {
		return nil, apperr.New(apperr.InvalidVariant, "variante %q non proposée pour %s", requested.Label, p.Name)
	}
	return &opt, nil
}

func checkStock(p *models.Product, quantity int) error {
	if !p.Inventory.HasStockFor(quantity) {
		return apperr.New(apperr.InsufficientStock, "stock insuffisant pour %s: %d disponible(s)", p.Name, p.Inventory.Quantity)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID string) (*models.Cart, error) {
	c, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture panier impossible")
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *models.Cart, event string) error {
	c.Recalculate()
	c.UpdatedAt = s.now()
	if err := s.carts.SaveCart(ctx, c); err != nil {
		return apperr.Wrap(apperr.Internal, err, "enregistrement panier impossible")
	}
	if err := s.carts.Publish(ctx, c.UserID, event); err != nil {
		zap.L().Warn("⚠️ Publication synchro panier échouée", zap.String("user_id", c.UserID), zap.Error(err))
	}
	return nil
}

func (s *Service) Add(ctx context.Context, userID, productID string, quantity int, weight *models.WeightOption) (*models.Cart, error) {
	if quantity < 1 {
		return nil, apperr.New(apperr.InvalidQuantity, "la quantité doit être au moins 1")
	}
	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	variant, err := resolveWeight(p, weight)
	if err != nil {
		return nil, err
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	// le stock est partagé entre toutes les variantes du produit
	idx := c.IndexOf(productID, variant)
	if err := checkStock(p, c.QuantityOf(productID)+quantity); err != nil {
		return nil, err
	}

	if idx >= 0 {
		c.Items[idx].Quantity += quantity
		c.Items[idx].Price = p.UnitPrice(variant)
	} else {
		c.Items = append(c.Items, models.CartItem{
			ProductID: productID,
			Name:      p.Name,
			ImageURL:  p.FirstImage(),
			Price:     p.UnitPrice(variant),
			Quantity:  quantity,
			Weight:    variant,
		})
	}

	if err := s.save(ctx, c, repository.CartEventUpdated); err != nil {
		return nil, err
	}
	return c, nil
}

// SetQuantity remplace la quantité; 0 supprime la ligne
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, weight *models.WeightOption, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, apperr.New(apperr.InvalidQuantity, "la quantité ne peut pas être négative")
	}
	if quantity == 0 {
		return s.Remove(ctx, userID, productID, weight)
	}

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := c.IndexOf(productID, weight)
	if idx < 0 {
		return nil, apperr.New(apperr.NotFound, "article absent du panier")
	}

	p, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	others := c.QuantityOf(productID) - c.Items[idx].Quantity
	if err := checkStock(p, others+quantity); err != nil {
		return nil, err
	}

	c.Items[idx].Quantity = quantity
	if err := s.save(ctx, c, repository.CartEventUpdated); err != nil {
		return nil, err
	}
	return c, nil
}

// Remove est idempotent: retirer une ligne absente ne change rien
func (s *Service) Remove(ctx context.Context, userID, productID string, weight *models.WeightOption) (*models.Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := c.IndexOf(productID, weight)
	if idx < 0 {
		c.Recalculate()
		return c, nil
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	if err := s.save(ctx, c, repository.CartEventUpdated); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear vide le panier sans le supprimer
func (s *Service) Clear(ctx context.Context, userID string) error {
	c := &models.Cart{UserID: userID, Items: []models.CartItem{}}
	return s.save(ctx, c, repository.CartEventCleared)
}

// Raw retourne le panier stocké sans le rafraîchir (utilisé par le checkout)
func (s *Service) Raw(ctx context.Context, userID string) (*models.Cart, error) {
	return s.load(ctx, userID)
}

// Get rafraîchit chaque ligne depuis le produit courant et persiste le panier nettoyé
func (s *Service) Get(ctx context.Context, userID string) (*models.Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := false
	kept := make([]models.CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		p, err := s.activeProduct(ctx, item.ProductID)
		if apperr.Is(err, apperr.ProductNotFound) {
			changed = true
			continue
		}
		if err != nil {
			return nil, err
		}

		price := p.Price
		if item.Weight != nil {
			opt, ok := p.FindWeightOption(*item.Weight)
			if !ok {
				changed = true
				continue
			}
			price = opt.Price
			if *item.Weight != opt {
				item.Weight = &opt
				changed = true
			}
		}
		if item.Price != price || item.Name != p.Name || item.ImageURL != p.FirstImage() {
			item.Price = price
			item.Name = p.Name
			item.ImageURL = p.FirstImage()
			changed = true
		}
		kept = append(kept, item)
	}
	c.Items = kept

	if changed {
		if err := s.save(ctx, c, repository.CartEventUpdated); err != nil {
			return nil, err
		}
		zap.L().Info("🛒 Panier rafraîchi", zap.String("user_id", userID), zap.Int("items", len(kept)))
		return c, nil
	}
	c.Recalculate()
	return c, nil
}
