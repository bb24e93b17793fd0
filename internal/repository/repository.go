// Package repository définit les accès aux données (ScyllaDB, Redis) utilisés par les services.
package repository

import (
	"context"
	"errors"

	"mekassarat_back_end/internal/models"

	"github.com/gocql/gocql"
)

var (
	ErrNotFound          = errors.New("introuvable")
	ErrInsufficientStock = errors.New("stock insuffisant")
	ErrConflict          = errors.New("document modifié entre-temps")
)

// RefundedIntent marque un intent remboursé: plus aucune commande ne peut s'y rattacher
var RefundedIntent = gocql.UUID{}

// StockChange décrit l'effet d'une opération de stock
type StockChange struct {
	Prev    int
	New     int
	Tracked bool
}

type ProductStore interface {
	GetProduct(ctx context.Context, id gocql.UUID) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	SaveProduct(ctx context.Context, p *models.Product) error
	// Reserve décrémente le stock seulement s'il reste assez d'unités (sauf backorder)
	Reserve(ctx context.Context, id gocql.UUID, quantity int) (StockChange, error)
	Release(ctx context.Context, id gocql.UUID, quantity int) (StockChange, error)
	SetStock(ctx context.Context, id gocql.UUID, quantity int) (StockChange, error)
}

type CategoryStore interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	SaveCategory(ctx context.Context, c *models.Category) error
}

type MovementStore interface {
	RecordMovement(ctx context.Context, m *models.StockMovement) error
	ListMovements(ctx context.Context, productID gocql.UUID, limit int) ([]models.StockMovement, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	// UpdateOrder échoue avec ErrConflict si le statut stocké n'est plus expected
	UpdateOrder(ctx context.Context, o *models.Order, expected models.OrderStatus) error
	GetOrder(ctx context.Context, id gocql.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListOrders(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)

	// ClaimIntent lie un payment intent à une commande; false si déjà lié
	ClaimIntent(ctx context.Context, intentID string, orderID gocql.UUID) (bool, error)
	ReleaseIntent(ctx context.Context, intentID string) error
	// MarkIntentRefunded remplace le lien de l'intent par RefundedIntent
	MarkIntentRefunded(ctx context.Context, intentID string) error
	OrderIDForIntent(ctx context.Context, intentID string) (gocql.UUID, bool, error)
}

type CartStore interface {
	// GetCart retourne un panier vide si l'utilisateur n'en a pas encore
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
	Publish(ctx context.Context, userID, event string) error
}

// CartFeed diffuse les événements d'un panier (synchro entre onglets)
type CartFeed interface {
	// Subscribe retourne les événements jusqu'à l'appel de stop
	Subscribe(ctx context.Context, userID string) (events <-chan string, stop func(), err error)
}

const (
	CartEventUpdated = "updated"
	CartEventCleared = "cleared"
)
