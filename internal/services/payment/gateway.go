// Package payment rapproche les paiements carte de la passerelle avec les commandes.
package payment

import (
	"context"
	"errors"

	"mekassarat_back_end/internal/pricing"
)

const (
	IntentSucceeded = "succeeded"

	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// ErrInvalidSignature est retourné par ParseWebhook quand la signature ne correspond pas
var ErrInvalidSignature = errors.New("signature webhook invalide")

// Intent est la vue passerelle d'un paiement
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

type WebhookEvent struct {
	ID     string
	Type   string
	Intent *Intent
}

// Gateway est la capacité de paiement externe (Stripe en production)
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	// Refund rembourse tout ou partie (montant en unités mineures) et retourne l'id du remboursement
	Refund(ctx context.Context, intentID string, amount int64, reason string) (string, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// Refunds adapte une passerelle au remboursement utilisé par l'annulation de commande
func Refunds(gw Gateway) GatewayRefunder {
	return GatewayRefunder{gateway: gw}
}

type GatewayRefunder struct {
	gateway Gateway
}

func (r GatewayRefunder) Refund(ctx context.Context, transactionID string, amount float64, reason string) (string, error) {
	return r.gateway.Refund(ctx, transactionID, pricing.ToMinorUnits(amount), reason)
}
