package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeSignature est la seule signature acceptée par FakeGateway
const FakeSignature = "fake-signature"

// FakeGateway simule la passerelle en mémoire (mode développement et tests)
type FakeGateway struct {
	mu      sync.Mutex
	intents map[string]*Intent
	refunds map[string]int64
	// FailRefund fait échouer les remboursements
	FailRefund error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{intents: make(map[string]*Intent), refunds: make(map[string]int64)}
}

func copyIntent(in *Intent) *Intent {
	out := *in
	out.Metadata = make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

func (g *FakeGateway) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := "pi_" + uuid.NewString()
	in := &Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Amount:       amount,
		Currency:     currency,
		Metadata:     metadata,
	}
	g.intents[id] = copyIntent(in)
	return in, nil
}

func (g *FakeGateway) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s introuvable", id)
	}
	return copyIntent(in), nil
}

// Succeed simule le paiement réussi côté client
func (g *FakeGateway) Succeed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if in, ok := g.intents[id]; ok {
		in.Status = IntentSucceeded
	}
}

func (g *FakeGateway) Refund(_ context.Context, intentID string, amount int64, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailRefund != nil {
		return "", g.FailRefund
	}
	in, ok := g.intents[intentID]
	if !ok {
		return "", fmt.Errorf("payment intent %s introuvable", intentID)
	}
	if g.refunds[intentID]+amount > in.Amount {
		return "", fmt.Errorf("montant remboursé supérieur au paiement %s", intentID)
	}
	g.refunds[intentID] += amount
	return "re_" + uuid.NewString(), nil
}

// Refunded retourne le total remboursé sur un intent
func (g *FakeGateway) Refunded(intentID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[intentID]
}

type fakeEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
}

// FakeEventPayload construit le corps d'un webhook accepté par ParseWebhook
func FakeEventPayload(eventID, eventType, intentID string) []byte {
	b, _ := json.Marshal(fakeEvent{ID: eventID, Type: eventType, IntentID: intentID})
	return b
}

func (g *FakeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if signature != FakeSignature {
		return nil, ErrInvalidSignature
	}
	var ev fakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("JSON invalide: %w", err)
	}
	out := &WebhookEvent{ID: ev.ID, Type: ev.Type}
	if ev.IntentID != "" {
		in, err := g.RetrieveIntent(context.Background(), ev.IntentID)
		if err != nil {
			return nil, err
		}
		out.Intent = in
	}
	return out, nil
}
