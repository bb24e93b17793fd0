package admin

import (
	"net/http"

	"mekassarat_back_end/internal/handlers"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/services/orders"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type OrdersHandler struct {
	orders *orders.Service
}

func NewOrdersHandler(svc *orders.Service) *OrdersHandler {
	return &OrdersHandler{orders: svc}
}

// ListOrders GET /api/admin/orders?status=&limit=
func (h *OrdersHandler) ListOrders(c *gin.Context) {
	status := models.OrderStatus(c.Query("status"))
	list, err := h.orders.ListAll(c.Request.Context(), status, cast.ToInt(c.Query("limit")))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// UpdateOrderStatus PUT /api/admin/orders/:id/status
func (h *OrdersHandler) UpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Statut requis")
		return
	}

	order, err := h.orders.Transition(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status), middleware.CallerFrom(c), req.Note)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
