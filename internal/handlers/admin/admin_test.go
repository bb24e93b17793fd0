package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
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
	"mekassarat_back_end/internal/services/catalog"
	"mekassarat_back_end/internal/services/orders"
	"mekassarat_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test_secret"

var root = models.Caller{ID: "admin-1", Email: "admin@mekassarat.com", Role: models.RoleAdmin}

type fakeUploader struct {
	err  error
	body []byte
}

func (u *fakeUploader) Upload(_ context.Context, r io.Reader, _ int64, filename, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.body, _ = io.ReadAll(r)
	return "http://minio.local/images/products/" + filename, nil
}

type fixture struct {
	router   *gin.Engine
	products *memory.Products
	orders   *memory.Orders
	uploader *fakeUploader
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	products := memory.NewProducts()
	store := memory.NewOrders()
	catalogSvc := catalog.NewService(products, products, products)
	orderSvc := orders.NewService(store, products, products, cart.NewService(memory.NewCarts(), products),
		cache.NewMemoryStore(), pricing.NewCalculator(pricing.DefaultShippingPolicy(), 0))

	up := &fakeUploader{}
	ch := NewCatalogHandler(catalogSvc, up)
	oh := NewOrdersHandler(orderSvc)

	r := gin.New()
	adm := r.Group("/admin", middleware.AuthRequired(secret), middleware.RequireAdmin)
	adm.POST("/products", ch.CreateProduct)
	adm.POST("/products/:id/images", ch.UploadImage)
	adm.POST("/products/:id/stock", ch.AdjustStock)
	adm.GET("/products/:id/movements", ch.Movements)
	adm.POST("/categories", ch.CreateCategory)
	adm.GET("/orders", oh.ListOrders)
	adm.PUT("/orders/:id/status", oh.UpdateOrderStatus)

	tok, err := utils.GenerateJWT(secret, root, time.Hour)
	require.NoError(t, err)
	return &fixture{router: r, products: products, orders: store, uploader: up, token: tok}
}

func (f *fixture) send(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) json(method, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return f.send(req)
}

func (f *fixture) seedProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:        gocql.TimeUUID(),
		Name:      "Pistachios",
		Price:     80,
		IsActive:  true,
		Inventory: models.Inventory{Quantity: stock, TrackQuantity: true},
	}
	require.NoError(t, f.products.SaveProduct(context.Background(), p))
	return p
}

func TestCreateCategoryThenProduct(t *testing.T) {
	f := newFixture(t)

	w := f.json(http.MethodPost, "/admin/categories", gin.H{"name": "Nuts"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cat models.Category
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cat))

	w = f.json(http.MethodPost, "/admin/products", gin.H{
		"name": "Roasted Almonds", "price": 45, "category_id": cat.ID.String(), "stock": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "roasted-almonds", p.Slug)
	assert.Equal(t, 12, p.Inventory.Quantity)

	w = f.json(http.MethodPost, "/admin/products", gin.H{"name": "Orphan", "price": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjustStockRecordsMovement(t *testing.T) {
	f := newFixture(t)
	p := f.seedProduct(t, 3)

	w := f.json(http.MethodPost, "/admin/products/"+p.ID.String()+"/stock", gin.H{"type": "restock", "quantity": 7, "reason": "livraison"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var mv models.StockMovement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mv))
	assert.Equal(t, 3, mv.PrevStock)
	assert.Equal(t, 10, mv.NewStock)
	assert.Equal(t, root.ID, mv.UserID)

	w = f.send(httptest.NewRequest(http.MethodGet, "/admin/products/"+p.ID.String()+"/movements", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = f.json(http.MethodPost, "/admin/products/"+p.ID.String()+"/stock", gin.H{"type": "restock", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func upload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	f := newFixture(t)
	p := f.seedProduct(t, 5)

	body, contentType := upload(t, "almonds.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/admin/products/"+p.ID.String()+"/images", body)
	req.Header.Set("Content-Type", contentType)
	w := f.send(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []byte("png-bytes"), f.uploader.body)

	stored, err := f.products.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://minio.local/images/products/almonds.png"}, stored.ImageURLs)

	f.uploader.err = errors.New("bucket indisponible")
	body, contentType = upload(t, "again.png", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/admin/products/"+p.ID.String()+"/images", body)
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusInternalServerError, f.send(req).Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	o := &models.Order{
		ID:          gocql.TimeUUID(),
		OrderNumber: "MK-20260314-0001",
		UserID:      "user-1",
		Status:      models.OrderPending,
		Payment:     models.PaymentInfo{Method: models.PaymentCOD, Status: models.PaymentStatusPending},
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.orders.CreateOrder(context.Background(), o))

	w := f.json(http.MethodPut, "/admin/orders/"+o.ID.String()+"/status", gin.H{"status": "confirmed", "note": "appel client"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.json(http.MethodPut, "/admin/orders/"+o.ID.String()+"/status", gin.H{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.send(httptest.NewRequest(http.MethodGet, "/admin/orders?status=confirmed", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MK-20260314-0001")
	assert.Contains(t, w.Body.String(), `"count":1`)
}
