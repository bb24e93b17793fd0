package orders

import (
	"context"
	"errors"
	"sort"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
	"go.uber.org/zap"
)

// transitions liste les changements de statut permis depuis chaque statut.
// cancelled et refunded passent par Cancel et Refund.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed:  {models.OrderProcessing, models.OrderCancelled},
	models.OrderProcessing: {models.OrderShipped},
	models.OrderShipped:    {models.OrderDelivered},
	models.OrderDelivered:  {models.OrderCompleted, models.OrderRefunded},
}

// CanTransition indique si from -> to est autorisé
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func parseOrderID(id string) (gocql.UUID, error) {
	oid, err := gocql.ParseUUID(id)
	if err != nil {
		return gocql.UUID{}, apperr.New(apperr.NotFound, "commande introuvable")
	}
	return oid, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Order, error) {
	oid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.GetOrder(ctx, oid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "commande introuvable")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture de la commande impossible")
	}
	return o, nil
}

func authorize(o *models.Order, caller models.Caller) error {
	if caller.IsAdmin() || (caller.ID != "" && caller.ID == o.UserID) {
		return nil
	}
	return apperr.New(apperr.AccessDenied, "accès refusé à cette commande")
}

// save persiste la commande si son statut stocké est toujours expected
func (s *Service) save(ctx context.Context, o *models.Order, expected models.OrderStatus) error {
	o.UpdatedAt = s.now()
	err := s.orders.UpdateOrder(ctx, o, expected)
	if errors.Is(err, repository.ErrConflict) {
		return apperr.New(apperr.InvalidTransition, "la commande %s a été modifiée entre-temps", o.OrderNumber)
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "mise à jour de la commande impossible")
	}
	return nil
}

// Get retourne une commande à son propriétaire ou à un administrateur
func (s *Service) Get(ctx context.Context, id string, caller models.Caller) (*models.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, caller); err != nil {
		return nil, err
	}
	return o, nil
}

// Load lit une commande sans contrôle d'accès (usage interne: paiement, jobs)
func (s *Service) Load(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	return s.load(ctx, id.String())
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture des commandes impossible")
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (s *Service) ListAll(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	orders, err := s.orders.ListOrders(ctx, status, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "lecture des commandes impossible")
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// Transition fait avancer une commande (action administrateur)
func (s *Service) Transition(ctx context.Context, id string, target models.OrderStatus, actor models.Caller, note string) (*models.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch target {
	case models.OrderCancelled:
		return s.cancel(ctx, o, actor, note)
	case models.OrderRefunded:
		return nil, apperr.New(apperr.InvalidTransition, "un remboursement passe par le paiement")
	}
	if !CanTransition(o.Status, target) {
		return nil, apperr.New(apperr.InvalidTransition, "transition %s -> %s interdite", o.Status, target)
	}

	previous := o.Status
	now := s.now()
	o.Status = target
	// le paiement à la livraison est encaissé par le livreur
	if target == models.OrderDelivered && o.Payment.Method == models.PaymentCOD {
		o.Payment.Status = models.PaymentStatusCompleted
		o.Payment.PaidAt = &now
	}
	o.AppendTimeline(target, note, actor.ID, now)
	if err := s.save(ctx, o, previous); err != nil {
		return nil, err
	}

	zap.L().Info("📦 Statut de commande mis à jour",
		zap.String("order", o.OrderNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
	)
	s.events.StatusChanged(*o)
	return o, nil
}

// Cancel annule une commande pending ou confirmed, rembourse la carte et remet le stock
func (s *Service) Cancel(ctx context.Context, id string, caller models.Caller, reason string) (*models.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, caller); err != nil {
		return nil, err
	}
	return s.cancel(ctx, o, caller, reason)
}

func (s *Service) cancel(ctx context.Context, o *models.Order, caller models.Caller, reason string) (*models.Order, error) {
	if !CanTransition(o.Status, models.OrderCancelled) {
		return nil, apperr.New(apperr.InvalidTransition, "impossible d'annuler une commande %s", o.Status)
	}
	if reason == "" {
		reason = "Commande annulée"
	}
	paid := o.Payment.Method == models.PaymentCard && o.Payment.Status == models.PaymentStatusCompleted
	if paid && (s.refunds == nil || o.Payment.TransactionID == "") {
		return nil, apperr.New(apperr.Gateway, "remboursement carte indisponible")
	}

	// le statut est verrouillé avant tout appel à la passerelle
	before := snapshot(o)
	now := s.now()
	o.Status = models.OrderCancelled
	o.AppendTimeline(models.OrderCancelled, reason, caller.ID, now)
	if err := s.save(ctx, o, before.Status); err != nil {
		return nil, err
	}

	if paid {
		refundID, err := s.refunds.Refund(ctx, o.Payment.TransactionID, o.Pricing.TotalPrice, reason)
		if err != nil {
			s.rollbackStatus(ctx, o, before)
			return nil, apperr.Wrap(apperr.Gateway, err, "remboursement refusé par la passerelle")
		}
		o.Payment.Status = models.PaymentStatusRefunded
		o.Refund = &models.RefundInfo{
			Amount:    o.Pricing.TotalPrice,
			Reason:    reason,
			GatewayID: refundID,
			By:        caller.ID,
			CreatedAt: now,
		}
		s.settle(ctx, o)
	}
	s.restore(ctx, o, caller.ID, reason)

	zap.L().Info("❌ Commande annulée", zap.String("order", o.OrderNumber), zap.String("by", caller.ID))
	s.events.StatusChanged(*o)
	return o, nil
}

// ChargeFunc exécute le remboursement auprès de la passerelle et retourne son identifiant
type ChargeFunc func(ctx context.Context) (string, error)

// Refund passe une commande livrée en refunded puis exécute charge.
// Si la passerelle refuse, la commande retrouve son statut précédent.
func (s *Service) Refund(ctx context.Context, o *models.Order, refund models.RefundInfo, charge ChargeFunc) (*models.Order, error) {
	if !CanTransition(o.Status, models.OrderRefunded) {
		return nil, apperr.New(apperr.InvalidTransition, "remboursement impossible depuis %s", o.Status)
	}
	before := snapshot(o)
	o.Status = models.OrderRefunded
	o.AppendTimeline(models.OrderRefunded, refund.Reason, refund.By, refund.CreatedAt)
	if err := s.save(ctx, o, before.Status); err != nil {
		return nil, err
	}

	gatewayID, err := charge(ctx)
	if err != nil {
		s.rollbackStatus(ctx, o, before)
		return nil, apperr.Wrap(apperr.Gateway, err, "remboursement refusé par la passerelle")
	}
	refund.GatewayID = gatewayID
	o.Payment.Status = models.PaymentStatusRefunded
	o.Refund = &refund
	s.settle(ctx, o)
	s.restore(ctx, o, refund.By, refund.Reason)

	zap.L().Info("💳 Commande remboursée", zap.String("order", o.OrderNumber), zap.Float64("amount", refund.Amount))
	s.events.StatusChanged(*o)
	return o, nil
}

func snapshot(o *models.Order) models.Order {
	before := *o
	before.Timeline = append([]models.TimelineEvent(nil), o.Timeline...)
	return before
}

// rollbackStatus remet la commande dans l'état lu avant le verrouillage
func (s *Service) rollbackStatus(ctx context.Context, o *models.Order, before models.Order) {
	locked := o.Status
	*o = before
	if err := s.orders.UpdateOrder(ctx, o, locked); err != nil {
		zap.L().Error("❌ Restauration du statut impossible",
			zap.String("order", o.OrderNumber),
			zap.String("status", string(before.Status)),
			zap.Error(err),
		)
	}
}

// settle enregistre le résultat du remboursement sur une commande déjà verrouillée
func (s *Service) settle(ctx context.Context, o *models.Order) {
	if err := s.save(ctx, o, o.Status); err != nil {
		zap.L().Error("❌ Remboursement effectué mais non enregistré",
			zap.String("order", o.OrderNumber),
			zap.String("refund", o.Refund.GatewayID),
			zap.Error(err),
		)
	}
}
