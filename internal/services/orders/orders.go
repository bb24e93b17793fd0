// Package orders porte le checkout: réservation du stock ligne par ligne,
// création de la commande figée et cycle de vie de son statut.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

// Events reçoit les commandes créées ou modifiées (notifications asynchrones)
type Events interface {
	OrderPlaced(order models.Order)
	StatusChanged(order models.Order)
}

// Refunder rembourse un paiement carte auprès de la passerelle
type Refunder interface {
	Refund(ctx context.Context, transactionID string, amount float64, reason string) (string, error)
}

// CartSource donne accès au panier brut et le vide après commande
type CartSource interface {
	Raw(ctx context.Context, userID string) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type noEvents struct{}

func (noEvents) OrderPlaced(models.Order)   {}
func (noEvents) StatusChanged(models.Order) {}

// OrderSeqWindow garde le compteur du jour un peu plus de 24h
const OrderSeqWindow = 48 * time.Hour

type Service struct {
	orders    repository.OrderStore
	products  repository.ProductStore
	movements repository.MovementStore
	carts     CartSource
	counters  cache.Store
	calc      *pricing.Calculator

	events       Events
	refunds      Refunder
	productCache *cache.ProductCache
	now          func() time.Time
}

type Option func(*Service)

func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

func WithRefunder(r Refunder) Option {
	return func(s *Service) { s.refunds = r }
}

func WithProductCache(c *cache.ProductCache) Option {
	return func(s *Service) { s.productCache = c }
}

func NewService(
	orders repository.OrderStore,
	products repository.ProductStore,
	movements repository.MovementStore,
	carts CartSource,
	counters cache.Store,
	calc *pricing.Calculator,
	opts ...Option,
) *Service {
	s := &Service{
		orders:    orders,
		products:  products,
		movements: movements,
		carts:     carts,
		counters:  counters,
		calc:      calc,
		events:    noEvents{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculator expose la fonction de prix partagée avec le paiement carte
func (s *Service) Calculator() *pricing.Calculator {
	return s.calc
}

// LineRequest est une ligne demandée (panier ou corps de requête de paiement)
type LineRequest struct {
	ProductID string               `json:"product_id"`
	Quantity  int                  `json:"quantity"`
	Weight    *models.WeightOption `json:"weight,omitempty"`
}

// LinesFromCart convertit les lignes du panier en demandes de commande
func LinesFromCart(c *models.Cart) []LineRequest {
	lines := make([]LineRequest, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, LineRequest{ProductID: it.ProductID, Quantity: it.Quantity, Weight: it.Weight})
	}
	return lines
}

// PlaceOrderInput est la demande de checkout d'un utilisateur authentifié
type PlaceOrderInput struct {
	UserID          string
	Email           string
	Name            string
	ShippingAddress models.Address
	PaymentMethod   string
	Notes           string
	ShippingCost    *float64
}

// Draft décrit une commande à créer, quel que soit le moyen de paiement
type Draft struct {
	// ID est généré si vide; le paiement carte le fixe avant de lier l'intent
	ID              gocql.UUID
	UserID          string
	Email           string
	Name            string
	ShippingAddress models.Address
	Lines           []LineRequest
	Notes           string
	ShippingCost    *float64
	Status          models.OrderStatus
	Payment         models.PaymentInfo
	TimelineNote    string
	ClearCart       bool
}

func validateAddress(a models.Address) error {
	if missing := a.MissingFields(); len(missing) > 0 {
		return apperr.New(apperr.Validation, "adresse de livraison incomplète: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidatePaymentMethod accepte uniquement cod et card
func ValidatePaymentMethod(method string) error {
	switch method {
	case models.PaymentCOD, models.PaymentCard:
		return nil
	default:
		return apperr.New(apperr.Validation, "moyen de paiement inconnu: %q", method)
	}
}

// PlaceOrder transforme le panier en commande en attente
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if err := validateAddress(in.ShippingAddress); err != nil {
		return nil, err
	}
	if err := ValidatePaymentMethod(in.PaymentMethod); err != nil {
		return nil, err
	}

	c, err := s.carts.Raw(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, apperr.New(apperr.EmptyCart, "le panier est vide")
	}

	return s.Submit(ctx, Draft{
		UserID:          in.UserID,
		Email:           in.Email,
		Name:            in.Name,
		ShippingAddress: in.ShippingAddress,
		Lines:           LinesFromCart(c),
		Notes:           in.Notes,
		ShippingCost:    in.ShippingCost,
		Status:          models.OrderPending,
		Payment:         models.PaymentInfo{Method: in.PaymentMethod, Status: models.PaymentStatusPending},
		TimelineNote:    "Commande créée",
		ClearCart:       true,
	})
}

// Prepare revalide chaque ligne contre le produit courant et fige le prix
func (s *Service) Prepare(ctx context.Context, lines []LineRequest) ([]models.OrderItem, error) {
	if len(lines) == 0 {
		return nil, apperr.New(apperr.EmptyCart, "aucun article à commander")
	}
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, apperr.New(apperr.InvalidQuantity, "quantité invalide pour %s", l.ProductID)
		}
		p, err := s.loadProduct(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}

		var variant *models.WeightOption
		if l.Weight != nil {
			opt, ok := p.FindWeightOption(*l.Weight)
			if !ok {
				return nil, apperr.New(apperr.InvalidVariant, "variante %q non proposée pour %s", l.Weight.Label, p.Name)
			}
			variant = &opt
		}
		if !p.Inventory.HasStockFor(l.Quantity) {
			return nil, apperr.New(apperr.InsufficientStock, "stock insuffisant pour %s: %d disponible(s)", p.Name, p.Inventory.Quantity)
		}

		price := p.UnitPrice(variant)
		items = append(items, models.OrderItem{
			ProductID: p.ID.String(),
			Name:      p.Name,
			ImageURL:  p.FirstImage(),
			Price:     price,
			Quantity:  l.Quantity,
			Weight:    variant,
			Total:     pricing.LineTotal(price, l.Quantity),
		})
	}
	return items, nil
}

func (s *Service) loadProduct(ctx context.Context, id string) (*models.Product, error) {
	pid, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, apperr.New(apperr.ProductUnavailable, "produit %s indisponible", id)
	}
	p, err := s.products.GetProduct(ctx, pid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.ProductUnavailable, "produit %s indisponible", id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture produit impossible")
	}
	if !p.IsActive {
		return nil, apperr.New(apperr.ProductUnavailable, "produit %s indisponible", p.Name)
	}
	return p, nil
}

// Submit réserve le stock, persiste la commande et déclenche les notifications.
// Toute erreur après une réservation remet le stock déjà pris.
func (s *Service) Submit(ctx context.Context, d Draft) (*models.Order, error) {
	if err := validateAddress(d.ShippingAddress); err != nil {
		return nil, err
	}
	items, err := s.Prepare(ctx, d.Lines)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := d.ID
	if id == (gocql.UUID{}) {
		id = gocql.TimeUUID()
	}

	number, err := s.nextNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserve(ctx, items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              id,
		OrderNumber:     number,
		UserID:          d.UserID,
		CustomerEmail:   d.Email,
		CustomerName:    d.Name,
		Items:           items,
		ShippingAddress: d.ShippingAddress,
		Payment:         d.Payment,
		Pricing:         s.calc.Compute(items, d.ShippingAddress.City, d.ShippingCost),
		Status:          d.Status,
		Notes:           d.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.AppendTimeline(d.Status, d.TimelineNote, d.UserID, now)

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.rollback(ctx, reserved)
		return nil, apperr.Wrap(apperr.Internal, err, "enregistrement de la commande impossible")
	}
	s.productCache.Invalidate(ctx)
	s.recordMovements(ctx, reserved, models.MovementSale, order.ID.String(), d.UserID, "Commande "+number)

	if d.ClearCart {
		if err := s.carts.Clear(ctx, d.UserID); err != nil {
			zap.L().Warn("⚠️ Panier non vidé après commande", zap.String("user_id", d.UserID), zap.Error(err))
		}
	}

	zap.L().Info("📦 Commande créée",
		zap.String("order", number),
		zap.String("user_id", d.UserID),
		zap.String("method", d.Payment.Method),
		zap.Float64("total", order.Pricing.TotalPrice),
	)
	s.events.OrderPlaced(*order)
	return order, nil
}

// nextNumber produit MK-YYYYMMDD-NNNN à partir d'un compteur atomique par jour
func (s *Service) nextNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := s.counters.Incr(ctx, "order_seq:"+day, OrderSeqWindow)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "génération du numéro de commande impossible")
	}
	return fmt.Sprintf("MK-%s-%04d", day, seq), nil
}
