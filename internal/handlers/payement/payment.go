package payement

import (
	"net/http"

	"mekassarat_back_end/internal/handlers"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/services/orders"
	"mekassarat_back_end/internal/services/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxBodyBytes borne le corps des webhooks
const MaxBodyBytes = int64(65536)

type Handler struct {
	payments *payment.Service
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{payments: svc}
}

type checkoutRequest struct {
	Items           []orders.LineRequest `json:"items"`
	ShippingAddress models.Address       `json:"shipping_address"`
}

// le panier et l'adresse confirmés sont ceux enregistrés sur l'intent
type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// CreatePaymentIntent crée un PaymentIntent chiffré comme le checkout
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		handlers.BadRequest(c, "Requête invalide ou panier vide")
		return
	}
	result, err := h.payments.CreateIntent(c.Request.Context(), middleware.CallerFrom(c), req.Items, req.ShippingAddress)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ConfirmPayment crée la commande d'un paiement réussi
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Requête invalide")
		return
	}
	order, err := h.payments.ConfirmPayment(c.Request.Context(), middleware.CallerFrom(c), req.PaymentIntentID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Paiement confirmé",
		"order":   order.Summary(),
	})
}

// RefundOrder POST /api/payment/refund/:orderId
func (h *Handler) RefundOrder(c *gin.Context) {
	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	// corps optionnel: remboursement total par défaut
	_ = c.ShouldBindJSON(&req)

	order, err := h.payments.Refund(c.Request.Context(), middleware.CallerFrom(c), c.Param("orderId"), req.Amount, req.Reason)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// StripeWebhook vérifie la signature puis traite l'événement
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	payload, err := c.GetRawData()
	if err != nil {
		zap.S().Warnf("❌ Lecture payload échouée: %v", err)
		handlers.BadRequest(c, "Échec lecture body")
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
