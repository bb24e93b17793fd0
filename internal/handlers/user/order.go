package user

import (
	"net/http"

	"mekassarat_back_end/internal/handlers"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/services/orders"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orders *orders.Service
}

func NewOrderHandler(svc *orders.Service) *OrderHandler {
	return &OrderHandler{orders: svc}
}

type placeOrderRequest struct {
	ShippingAddress models.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
	Notes           string         `json:"notes"`
	ShippingCost    *float64       `json:"shipping_cost"`
}

// CreateOrder POST /api/orders : transforme le panier en commande
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Requête invalide")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentCOD
	}

	caller := middleware.CallerFrom(c)
	order, err := h.orders.PlaceOrder(c.Request.Context(), orders.PlaceOrderInput{
		UserID:          caller.ID,
		Email:           caller.Email,
		Name:            caller.Name,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		ShippingCost:    req.ShippingCost,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Commande créée",
		"order":   order.Summary(),
	})
}

// GetMyOrders récupère toutes les commandes de l'utilisateur connecté
func (h *OrderHandler) GetMyOrders(c *gin.Context) {
	list, err := h.orders.ListForUser(c.Request.Context(), middleware.CallerFrom(c).ID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// corps optionnel
	_ = c.ShouldBindJSON(&req)

	order, err := h.orders.Cancel(c.Request.Context(), c.Param("id"), middleware.CallerFrom(c), req.Reason)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
