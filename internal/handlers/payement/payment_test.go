package payement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository/memory"
	"mekassarat_back_end/internal/services/cart"
	"mekassarat_back_end/internal/services/orders"
	"mekassarat_back_end/internal/services/payment"
	"mekassarat_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test_secret"

var buyer = models.Caller{ID: "user-1", Email: "sara@example.com", Name: "Sara"}

type fixture struct {
	router  *gin.Engine
	gw      *payment.FakeGateway
	store   *memory.Orders
	product *models.Product
	token   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	products := memory.NewProducts()
	store := memory.NewOrders()
	counters := cache.NewMemoryStore()
	gw := payment.NewFakeGateway()
	carts := cart.NewService(memory.NewCarts(), products)
	orderSvc := orders.NewService(store, products, products, carts, counters,
		pricing.NewCalculator(pricing.DefaultShippingPolicy(), 0),
		orders.WithRefunder(payment.Refunds(gw)))
	h := NewHandler(payment.NewService(gw, orderSvc, store, counters, "egp"))

	p := &models.Product{
		ID:        gocql.TimeUUID(),
		Name:      "Almonds",
		Price:     45,
		IsActive:  true,
		Inventory: models.Inventory{Quantity: 10, TrackQuantity: true},
	}
	require.NoError(t, products.SaveProduct(context.Background(), p))

	tok, err := utils.GenerateJWT(secret, buyer, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.POST("/webhook", h.StripeWebhook)
	secured := r.Group("", middleware.AuthRequired(secret))
	secured.POST("/intent", h.CreatePaymentIntent)
	secured.POST("/confirm", h.ConfirmPayment)
	secured.POST("/refund/:orderId", h.RefundOrder)

	return &fixture{router: r, gw: gw, store: store, product: p, token: tok}
}

func (f *fixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	case nil:
	default:
		raw, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + f.token}
}

func (f *fixture) checkout() gin.H {
	return gin.H{
		"items": []gin.H{{"product_id": f.product.ID.String(), "quantity": 2}},
		"shipping_address": gin.H{
			"full_name": "Sara", "phone": "0100000000", "street": "1 Nile St", "city": "Cairo",
		},
	}
}

func TestIntentThenConfirm(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/intent", f.checkout(), f.authed())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var intent payment.IntentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, 160.0, intent.Pricing.TotalPrice)

	f.gw.Succeed(intent.IntentID)

	// un panier renvoyé par le client ne remplace pas celui payé
	body := gin.H{
		"payment_intent_id": intent.IntentID,
		"items":             []gin.H{{"product_id": f.product.ID.String(), "quantity": 10}},
	}
	w = f.do(http.MethodPost, "/confirm", body, f.authed())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "MK-")
	var created struct {
		Order models.OrderSummary `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 160.0, created.Order.Pricing.TotalPrice)

	w = f.do(http.MethodPost, "/confirm", body, f.authed())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DuplicateOrder")
}

func TestConfirmUnpaidIntent(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/intent", f.checkout(), f.authed())
	require.Equal(t, http.StatusOK, w.Code)
	var intent payment.IntentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))

	w = f.do(http.MethodPost, "/confirm", gin.H{"payment_intent_id": intent.IntentID}, f.authed())
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestIntentRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/intent", f.checkout(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/intent", f.checkout(), f.authed())
	require.Equal(t, http.StatusOK, w.Code)
	var intent payment.IntentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intent))
	f.gw.Succeed(intent.IntentID)

	payload := payment.FakeEventPayload("evt_1", payment.EventIntentSucceeded, intent.IntentID)

	w = f.do(http.MethodPost, "/webhook", payload, map[string]string{"Stripe-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sig := map[string]string{"Stripe-Signature": payment.FakeSignature}
	w = f.do(http.MethodPost, "/webhook", payload, sig)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/webhook", payload, sig)
	assert.Equal(t, http.StatusOK, w.Code)

	list, err := f.store.ListOrdersByUser(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRefundUnknownOrder(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/refund/not-a-uuid", gin.H{"reason": "damaged"}, f.authed())
	assert.Equal(t, http.StatusNotFound, w.Code)
}
