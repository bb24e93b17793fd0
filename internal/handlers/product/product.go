package product

import (
	"net/http"

	"mekassarat_back_end/internal/handlers"
	"mekassarat_back_end/internal/services/catalog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type Handler struct {
	catalog *catalog.Service
}

func NewHandler(svc *catalog.Service) *Handler {
	return &Handler{catalog: svc}
}

func floatQuery(c *gin.Context, key string) *float64 {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil
	}
	return &v
}

func boolQuery(c *gin.Context, key string) *bool {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return nil
	}
	return &v
}

// ListProducts GET /api/products?q=&category=&min_price=&max_price=&featured=&sort=&order=&page=&limit=
func (h *Handler) ListProducts(c *gin.Context) {
	filter := catalog.Filter{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		MinPrice: floatQuery(c, "min_price"),
		MaxPrice: floatQuery(c, "max_price"),
		Featured: boolQuery(c, "featured"),
	}
	sort := catalog.ParseSort(c.Query("sort"), c.Query("order"))
	page, limit := catalog.ClampPage(cast.ToInt(c.Query("page")), cast.ToInt(c.Query("limit")))

	result, err := h.catalog.List(c.Request.Context(), filter, sort, page, limit)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}
