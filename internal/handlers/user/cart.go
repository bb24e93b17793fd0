package user

import (
	"net/http"

	"mekassarat_back_end/internal/handlers"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/services/cart"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type CartHandler struct {
	cart *cart.Service
}

func NewCartHandler(svc *cart.Service) *CartHandler {
	return &CartHandler{cart: svc}
}

type addItemRequest struct {
	ProductID string               `json:"product_id" binding:"required"`
	Quantity  int                  `json:"quantity"`
	Weight    *models.WeightOption `json:"weight"`
}

type setQuantityRequest struct {
	Quantity int                  `json:"quantity"`
	Weight   *models.WeightOption `json:"weight"`
}

func emptyCart() *models.Cart {
	return &models.Cart{Items: []models.CartItem{}}
}

// weightParam lit la variante depuis ?weight=500g ou ?weight=500 en grammes (DELETE sans corps)
func weightParam(c *gin.Context) *models.WeightOption {
	label := c.Query("weight")
	if label == "" {
		return nil
	}
	if grams, err := cast.ToIntE(label); err == nil && grams > 0 {
		return &models.WeightOption{Grams: grams}
	}
	return &models.WeightOption{Label: label}
}

// GetCart renvoie un panier vide aux visiteurs anonymes
func (h *CartHandler) GetCart(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if caller.IsAnonymous() {
		c.JSON(http.StatusOK, emptyCart())
		return
	}
	result, err := h.cart.Get(c.Request.Context(), caller.ID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Requête invalide")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	caller := middleware.CallerFrom(c)
	if caller.IsAnonymous() {
		// le panier d'un visiteur reste côté navigateur
		c.JSON(http.StatusOK, emptyCart())
		return
	}

	result, err := h.cart.Add(c.Request.Context(), caller.ID, req.ProductID, req.Quantity, req.Weight)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Requête invalide")
		return
	}
	if req.Weight == nil {
		req.Weight = weightParam(c)
	}

	caller := middleware.CallerFrom(c)
	if caller.IsAnonymous() {
		c.JSON(http.StatusOK, emptyCart())
		return
	}

	result, err := h.cart.SetQuantity(c.Request.Context(), caller.ID, c.Param("productId"), req.Weight, req.Quantity)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if caller.IsAnonymous() {
		c.JSON(http.StatusOK, emptyCart())
		return
	}
	result, err := h.cart.Remove(c.Request.Context(), caller.ID, c.Param("productId"), weightParam(c))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if !caller.IsAnonymous() {
		if err := h.cart.Clear(c.Request.Context(), caller.ID); err != nil {
			handlers.RespondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, emptyCart())
}
