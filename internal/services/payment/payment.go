package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository"
	"mekassarat_back_end/internal/services/orders"

	"github.com/gocql/gocql"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// EventDedupTTL couvre la fenêtre de renvoi des webhooks
const EventDedupTTL = 24 * time.Hour

type Service struct {
	gateway  Gateway
	orders   *orders.Service
	links    repository.OrderStore
	dedup    cache.Store
	currency string
	now      func() time.Time
}

func NewService(gateway Gateway, orderSvc *orders.Service, links repository.OrderStore, dedup cache.Store, currency string) *Service {
	return &Service{
		gateway:  gateway,
		orders:   orderSvc,
		links:    links,
		dedup:    dedup,
		currency: currency,
		now:      time.Now,
	}
}

// IntentResult est renvoyé au front pour finaliser le paiement
type IntentResult struct {
	ClientSecret string         `json:"client_secret"`
	IntentID     string         `json:"payment_intent_id"`
	Pricing      models.Pricing `json:"pricing"`
}

// confirmation regroupe ce qu'il faut pour créer la commande d'un intent réussi
type confirmation struct {
	UserID  string
	Email   string
	Name    string
	Lines   []orders.LineRequest
	Address models.Address
}

// CreateIntent revalide le panier, le chiffre avec la même fonction que le checkout
// et ouvre un paiement dont les métadonnées suffisent à recréer la commande.
func (s *Service) CreateIntent(ctx context.Context, caller models.Caller, lines []orders.LineRequest, address models.Address) (*IntentResult, error) {
	if caller.IsAnonymous() {
		return nil, apperr.New(apperr.AccessDenied, "authentification requise")
	}
	if missing := address.MissingFields(); len(missing) > 0 {
		return nil, apperr.New(apperr.Validation, "adresse de livraison incomplète: %v", missing)
	}
	items, err := s.orders.Prepare(ctx, lines)
	if err != nil {
		return nil, err
	}
	quote := s.orders.Calculator().Compute(items, address.City, nil)

	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "sérialisation du panier impossible")
	}
	addressJSON, err := json.Marshal(address)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "sérialisation de l'adresse impossible")
	}

	metadata := map[string]string{
		"user_id":        caller.ID,
		"email":          caller.Email,
		"name":           caller.Name,
		"items":          string(linesJSON),
		"address":        string(addressJSON),
		"items_price":    cast.ToString(quote.ItemsPrice),
		"tax_price":      cast.ToString(quote.TaxPrice),
		"shipping_price": cast.ToString(quote.ShippingPrice),
		"total_price":    cast.ToString(quote.TotalPrice),
	}

	intent, err := s.gateway.CreateIntent(ctx, pricing.ToMinorUnits(quote.TotalPrice), s.currency, metadata)
	if err != nil {
		return nil, apperr.Wrap(apperr.Gateway, err, "création du paiement impossible")
	}

	zap.L().Info("💳 PaymentIntent créé",
		zap.String("intent", intent.ID),
		zap.Float64("total", quote.TotalPrice),
		zap.String("user_id", caller.ID),
	)
	return &IntentResult{ClientSecret: intent.ClientSecret, IntentID: intent.ID, Pricing: quote}, nil
}

// ConfirmPayment crée la commande confirmée d'un paiement réussi, une seule fois par intent.
// Le panier et l'adresse viennent des métadonnées de l'intent, jamais du client.
func (s *Service) ConfirmPayment(ctx context.Context, caller models.Caller, intentID string) (*models.Order, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Gateway, err, "lecture du paiement impossible")
	}
	if intent.Status != IntentSucceeded {
		return nil, apperr.New(apperr.PaymentNotCompleted, "paiement non finalisé (%s)", intent.Status)
	}
	if intent.Metadata["user_id"] != caller.ID {
		return nil, apperr.New(apperr.PaymentOwnershipMismatch, "ce paiement appartient à un autre utilisateur")
	}

	c, err := confirmationFromMetadata(intent.Metadata)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "paiement sans panier associé")
	}
	if caller.Email != "" {
		c.Email = caller.Email
	}
	if caller.Name != "" {
		c.Name = caller.Name
	}
	return s.confirm(ctx, intent, c)
}

// errAmountChanged signale un total recalculé différent du montant encaissé
var errAmountChanged = errors.New("montant payé différent du total")

func stockFailure(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.ProductUnavailable, apperr.InsufficientStock, apperr.InvalidVariant:
		return true
	}
	return false
}

// refundable: la commande ne pourra jamais être honorée pour ce paiement
func refundable(err error) bool {
	return stockFailure(err) || errors.Is(err, errAmountChanged)
}

// checkLink refuse un intent déjà rattaché à une commande ou déjà remboursé
func (s *Service) checkLink(ctx context.Context, intentID string) error {
	id, found, err := s.links.OrderIDForIntent(ctx, intentID)
	switch {
	case err != nil:
		return apperr.Wrap(apperr.Internal, err, "vérification du paiement impossible")
	case !found:
		return nil
	case id == repository.RefundedIntent:
		return apperr.New(apperr.AlreadyRefunded, "paiement %s déjà remboursé", intentID)
	default:
		return apperr.New(apperr.DuplicateOrder, "une commande existe déjà pour ce paiement")
	}
}

func (s *Service) confirm(ctx context.Context, intent *Intent, c confirmation) (*models.Order, error) {
	if err := s.checkLink(ctx, intent.ID); err != nil {
		return nil, err
	}

	orderID := gocql.TimeUUID()
	claimed, err := s.links.ClaimIntent(ctx, intent.ID, orderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "verrouillage du paiement impossible")
	}
	if !claimed {
		if err := s.checkLink(ctx, intent.ID); err != nil {
			return nil, err
		}
		return nil, apperr.New(apperr.DuplicateOrder, "une commande existe déjà pour ce paiement")
	}

	// le stock et les prix ont pu changer depuis la création de l'intent
	items, err := s.orders.Prepare(ctx, c.Lines)
	if err != nil {
		return nil, s.abandon(ctx, intent, err)
	}
	quote := s.orders.Calculator().Compute(items, c.Address.City, nil)
	if due := pricing.ToMinorUnits(quote.TotalPrice); due != intent.Amount {
		zap.L().Warn("⚠️ Montant payé différent du total de la commande",
			zap.String("intent", intent.ID),
			zap.Int64("paid", intent.Amount),
			zap.Int64("expected", due),
		)
		return nil, s.abandon(ctx, intent, apperr.Wrap(apperr.Validation, errAmountChanged, "le total de la commande a changé depuis le paiement"))
	}

	paidAt := s.now()
	order, err := s.orders.Submit(ctx, orders.Draft{
		ID:              orderID,
		UserID:          c.UserID,
		Email:           c.Email,
		Name:            c.Name,
		ShippingAddress: c.Address,
		Lines:           c.Lines,
		Status:          models.OrderConfirmed,
		Payment: models.PaymentInfo{
			Method:        models.PaymentCard,
			TransactionID: intent.ID,
			Status:        models.PaymentStatusCompleted,
			PaidAt:        &paidAt,
		},
		TimelineNote: "Paiement carte confirmé",
		ClearCart:    true,
	})
	if err != nil {
		return nil, s.abandon(ctx, intent, err)
	}
	return order, nil
}

// abandon défait la réservation de l'intent après un échec de commande.
// Si la commande ne peut plus être honorée, le paiement est remboursé et l'intent
// reste marqué pour qu'aucun webhook ni nouvel essai ne crée de commande ensuite.
func (s *Service) abandon(ctx context.Context, intent *Intent, cause error) error {
	if !refundable(cause) {
		s.release(ctx, intent.ID)
		return cause
	}
	reason := "stock indisponible"
	if errors.Is(cause, errAmountChanged) {
		reason = "total modifié"
	}
	if err := s.refundIntent(ctx, intent, reason); err != nil {
		// l'intent reste libre: le prochain essai retentera le remboursement
		s.release(ctx, intent.ID)
		return apperr.Wrap(apperr.Gateway, err, "remboursement automatique impossible")
	}
	if err := s.links.MarkIntentRefunded(ctx, intent.ID); err != nil {
		zap.L().Error("❌ Marquage du remboursement impossible", zap.String("intent", intent.ID), zap.Error(err))
	}
	return cause
}

func (s *Service) release(ctx context.Context, intentID string) {
	if err := s.links.ReleaseIntent(ctx, intentID); err != nil {
		zap.L().Error("❌ Libération du paiement impossible", zap.String("intent", intentID), zap.Error(err))
	}
}

func (s *Service) refundIntent(ctx context.Context, intent *Intent, reason string) error {
	id, err := s.gateway.Refund(ctx, intent.ID, intent.Amount, reason)
	if err != nil {
		zap.L().Error("❌ Remboursement automatique échoué", zap.String("intent", intent.ID), zap.Error(err))
		return err
	}
	zap.L().Warn("💳 Paiement remboursé automatiquement", zap.String("intent", intent.ID), zap.String("refund", id), zap.String("reason", reason))
	return nil
}

// Refund rembourse une commande carte livrée, totalement ou partiellement
func (s *Service) Refund(ctx context.Context, caller models.Caller, orderID string, amount *float64, reason string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID, caller)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderRefunded || order.Payment.Status == models.PaymentStatusRefunded {
		return nil, apperr.New(apperr.AlreadyRefunded, "commande %s déjà remboursée", order.OrderNumber)
	}
	if order.Payment.Method != models.PaymentCard || order.Payment.TransactionID == "" {
		return nil, apperr.New(apperr.Validation, "la commande %s n'a pas été payée par carte", order.OrderNumber)
	}
	if order.Status != models.OrderDelivered || order.Payment.Status != models.PaymentStatusCompleted {
		return nil, apperr.New(apperr.InvalidTransition, "remboursement impossible pour une commande %s", order.Status)
	}

	value := order.Pricing.TotalPrice
	if amount != nil {
		if *amount <= 0 || *amount > order.Pricing.TotalPrice {
			return nil, apperr.New(apperr.Validation, "montant de remboursement invalide")
		}
		value = *amount
	}
	if reason == "" {
		reason = "Remboursement demandé"
	}

	info := models.RefundInfo{
		Amount:    value,
		Reason:    reason,
		By:        caller.ID,
		CreatedAt: s.now(),
	}
	return s.orders.Refund(ctx, order, info, func(ctx context.Context) (string, error) {
		return s.gateway.Refund(ctx, order.Payment.TransactionID, pricing.ToMinorUnits(value), reason)
	})
}

// HandleWebhook vérifie et traite un événement de la passerelle.
// Un paiement réussi passe par la même confirmation idempotente que ConfirmPayment.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			return apperr.Wrap(apperr.Validation, err, "signature invalide")
		}
		return apperr.Wrap(apperr.Validation, err, "événement illisible")
	}

	key := "stripe_event:" + event.ID
	fresh, err := s.dedup.SetNX(ctx, key, event.Type, EventDedupTTL)
	if err != nil {
		zap.L().Warn("⚠️ Déduplication webhook indisponible", zap.Error(err))
		fresh = true
	}
	if !fresh {
		zap.L().Info("ℹ️ Événement déjà traité", zap.String("event", event.ID))
		return nil
	}

	zap.L().Info("📥 Événement Stripe reçu", zap.String("event", event.ID), zap.String("type", event.Type))
	switch event.Type {
	case EventIntentSucceeded:
		err = s.onIntentSucceeded(ctx, event.Intent)
	case EventIntentFailed:
		if event.Intent != nil {
			zap.L().Warn("❌ Paiement échoué", zap.String("intent", event.Intent.ID), zap.String("user_id", event.Intent.Metadata["user_id"]))
		}
	default:
		zap.L().Info("ℹ️ Événement ignoré", zap.String("type", event.Type))
	}

	if err != nil {
		// la passerelle renverra l'événement
		if delErr := s.dedup.Delete(ctx, key); delErr != nil {
			zap.L().Warn("⚠️ Clé de déduplication non supprimée", zap.Error(delErr))
		}
		return err
	}
	return nil
}

func (s *Service) onIntentSucceeded(ctx context.Context, intent *Intent) error {
	if intent == nil {
		return apperr.New(apperr.Validation, "événement sans paiement")
	}
	c, err := confirmationFromMetadata(intent.Metadata)
	if err != nil {
		zap.L().Warn("⚠️ Métadonnées incomplètes", zap.String("intent", intent.ID), zap.Error(err))
		return nil
	}

	order, err := s.confirm(ctx, intent, c)
	switch {
	case err == nil:
		zap.L().Info("✅ Commande créée depuis le webhook", zap.String("order", order.OrderNumber), zap.String("intent", intent.ID))
		return nil
	case apperr.Is(err, apperr.DuplicateOrder), apperr.Is(err, apperr.AlreadyRefunded):
		return nil
	case refundable(err):
		zap.L().Warn("⚠️ Paiement remboursé, commande impossible", zap.String("intent", intent.ID), zap.Error(err))
		return nil
	case apperr.Is(err, apperr.Validation):
		zap.L().Warn("⚠️ Commande du webhook invalide", zap.String("intent", intent.ID), zap.Error(err))
		return nil
	default:
		return err
	}
}

func confirmationFromMetadata(md map[string]string) (confirmation, error) {
	c := confirmation{UserID: md["user_id"], Email: md["email"], Name: md["name"]}
	if c.UserID == "" || md["items"] == "" || md["address"] == "" {
		return c, errors.New("user_id, items ou address manquant")
	}
	if err := json.Unmarshal([]byte(md["items"]), &c.Lines); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(md["address"]), &c.Address); err != nil {
		return c, err
	}
	return c, nil
}
