package admin

import (
	"context"
	"io"
	"net/http"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/handlers"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/services/catalog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// MaxImageBytes taille max d'une image produit (5 Mo)
const MaxImageBytes = 5 << 20

// Uploader stocke un fichier et renvoie son URL publique
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, size int64, filename, contentType string) (string, error)
}

type CatalogHandler struct {
	catalog  *catalog.Service
	uploader Uploader
}

func NewCatalogHandler(svc *catalog.Service, uploader Uploader) *CatalogHandler {
	return &CatalogHandler{catalog: svc, uploader: uploader}
}

// CreateProduct POST /api/admin/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Données invalides: "+err.Error())
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdateProduct PUT /api/admin/products/:id
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Données invalides: "+err.Error())
		return
	}
	p, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProduct désactive le produit, l'historique des commandes reste intact
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeactivateProduct(c.Request.Context(), c.Param("id")); err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit désactivé"})
}

// CreateCategory POST /api/admin/categories
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var in catalog.CategoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		handlers.BadRequest(c, "Données invalides: "+err.Error())
		return
	}
	cat, err := h.catalog.CreateCategory(c.Request.Context(), in)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// AdjustStock POST /api/admin/products/:id/stock
func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	var req struct {
		Type     string `json:"type" binding:"required"`
		Quantity int    `json:"quantity"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.BadRequest(c, "Données invalides: "+err.Error())
		return
	}

	caller := middleware.CallerFrom(c)
	mv, err := h.catalog.AdjustStock(c.Request.Context(), c.Param("id"), req.Type, req.Quantity, req.Reason, caller.ID)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mv)
}

// Movements GET /api/admin/products/:id/movements?limit=
func (h *CatalogHandler) Movements(c *gin.Context) {
	list, err := h.catalog.Movements(c.Request.Context(), c.Param("id"), cast.ToInt(c.Query("limit")))
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": list, "count": len(list)})
}

// LowStock GET /api/admin/stock/low
func (h *CatalogHandler) LowStock(c *gin.Context) {
	items, err := h.catalog.LowStock(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// UploadImage POST /api/admin/products/:id/images (multipart, champ "file")
func (h *CatalogHandler) UploadImage(c *gin.Context) {
	if h.uploader == nil {
		handlers.RespondError(c, apperr.New(apperr.Internal, "stockage d'images non configuré"))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		handlers.BadRequest(c, "Aucun fichier fourni")
		return
	}
	if header.Size > MaxImageBytes {
		handlers.BadRequest(c, "Image trop volumineuse (max 5 Mo)")
		return
	}

	file, err := header.Open()
	if err != nil {
		handlers.BadRequest(c, "Impossible d'ouvrir le fichier")
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	url, err := h.uploader.Upload(ctx, file, header.Size, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		zap.S().Errorf("❌ Upload image échoué: %v", err)
		handlers.RespondError(c, apperr.Wrap(apperr.Internal, err, "échec de l'upload"))
		return
	}

	p, err := h.catalog.AttachImage(ctx, c.Param("id"), url)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url, "product": p})
}
