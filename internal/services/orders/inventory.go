package orders

import (
	"context"
	"errors"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

// reservation est un décrément déjà appliqué, à compenser en cas d'échec
type reservation struct {
	productID gocql.UUID
	quantity  int
	change    repository.StockChange
}

// reserve décrémente conditionnellement chaque ligne; au premier refus les
// décréments précédents sont annulés et le stock revient à son état initial.
func (s *Service) reserve(ctx context.Context, items []models.OrderItem) ([]reservation, error) {
	reserved := make([]reservation, 0, len(items))
	for _, it := range items {
		pid, err := gocql.ParseUUID(it.ProductID)
		if err != nil {
			s.rollback(ctx, reserved)
			return nil, apperr.New(apperr.ProductUnavailable, "produit %s indisponible", it.ProductID)
		}
		change, err := s.products.Reserve(ctx, pid, it.Quantity)
		if err != nil {
			s.rollback(ctx, reserved)
			switch {
			case errors.Is(err, repository.ErrInsufficientStock):
				return nil, apperr.New(apperr.InsufficientStock, "stock insuffisant pour %s", it.Name)
			case errors.Is(err, repository.ErrNotFound):
				return nil, apperr.New(apperr.ProductUnavailable, "produit %s indisponible", it.Name)
			default:
				return nil, apperr.Wrap(apperr.Internal, err, "réservation du stock impossible")
			}
		}
		reserved = append(reserved, reservation{productID: pid, quantity: it.Quantity, change: change})
	}
	return reserved, nil
}

// rollback remet le stock pris, dans l'ordre inverse
func (s *Service) rollback(ctx context.Context, reserved []reservation) {
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if _, err := s.products.Release(ctx, r.productID, r.quantity); err != nil {
			zap.L().Error("❌ Compensation de stock échouée",
				zap.String("product_id", r.productID.String()),
				zap.Int("quantity", r.quantity),
				zap.Error(err),
			)
		}
	}
	if len(reserved) > 0 {
		zap.L().Warn("⚠️ Réservation annulée", zap.Int("lines", len(reserved)))
	}
}

// restore réincrémente le stock de chaque ligne d'une commande annulée ou remboursée
func (s *Service) restore(ctx context.Context, order *models.Order, actor, reason string) {
	restored := make([]reservation, 0, len(order.Items))
	for _, it := range order.Items {
		pid, err := gocql.ParseUUID(it.ProductID)
		if err != nil {
			continue
		}
		change, err := s.products.Release(ctx, pid, it.Quantity)
		if err != nil {
			zap.L().Error("❌ Restauration de stock échouée",
				zap.String("order", order.OrderNumber),
				zap.String("product_id", it.ProductID),
				zap.Error(err),
			)
			continue
		}
		restored = append(restored, reservation{productID: pid, quantity: it.Quantity, change: change})
	}
	s.productCache.Invalidate(ctx)
	s.recordMovements(ctx, restored, models.MovementRestore, order.ID.String(), actor, reason)
}

func (s *Service) recordMovements(ctx context.Context, changes []reservation, kind, orderID, actor, reason string) {
	if s.movements == nil {
		return
	}
	now := s.now()
	for _, r := range changes {
		if !r.change.Tracked {
			continue
		}
		m := &models.StockMovement{
			ID:        gocql.TimeUUID(),
			ProductID: r.productID,
			Type:      kind,
			Quantity:  r.quantity,
			PrevStock: r.change.Prev,
			NewStock:  r.change.New,
			Reason:    reason,
			OrderID:   orderID,
			UserID:    actor,
			CreatedAt: now,
		}
		if err := s.movements.RecordMovement(ctx, m); err != nil {
			zap.L().Warn("⚠️ Erreur enregistrement mouvement stock", zap.Error(err))
		}
	}
}

