package routes

import (
	"net/http"

	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/handlers/admin"
	"mekassarat_back_end/internal/handlers/payement"
	"mekassarat_back_end/internal/handlers/product"
	"mekassarat_back_end/internal/handlers/user"
	"mekassarat_back_end/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers regroupe les handlers montés sur le routeur
type Handlers struct {
	Products *product.Handler
	Cart     *user.CartHandler
	CartSync *user.CartSync
	Orders   *user.OrderHandler
	Payments *payement.Handler
	Catalog  *admin.CatalogHandler
	Admin    *admin.OrdersHandler
}

func RegisterRoutes(r *gin.Engine, h Handlers, limits cache.Store, jwtSecret string) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.AuthRequired(jwtSecret)

	api := r.Group("/api")
	api.Use(middleware.APIRateLimit(limits))

	// Catalogue (public)
	api.GET("/products", h.Products.ListProducts)
	api.GET("/products/:id", h.Products.GetProduct)
	api.GET("/categories", h.Products.ListCategories)

	// Panier (auth optionnelle)
	cart := api.Group("/cart")
	cart.GET("/ws", auth, h.CartSync.CartWebSocket)
	cart.Use(middleware.OptionalAuth(jwtSecret), middleware.CartRateLimit(limits))
	{
		cart.GET("", h.Cart.GetCart)
		cart.POST("/items", h.Cart.AddItem)
		cart.PUT("/items/:productId", h.Cart.UpdateItem)
		cart.DELETE("/items/:productId", h.Cart.RemoveItem)
		cart.DELETE("", h.Cart.ClearCart)
	}

	// Commandes
	orders := api.Group("/orders", auth)
	{
		orders.POST("", middleware.CheckoutRateLimit(limits), h.Orders.CreateOrder)
		orders.GET("/mine", h.Orders.GetMyOrders)
		orders.GET("/:id", h.Orders.GetOrder)
		orders.POST("/:id/cancel", h.Orders.CancelOrder)
	}

	// Paiement
	payment := api.Group("/payment")
	payment.POST("/webhook", h.Payments.StripeWebhook)
	{
		secured := payment.Group("", auth)
		secured.POST("/intent", middleware.CheckoutRateLimit(limits), h.Payments.CreatePaymentIntent)
		secured.POST("/confirm", middleware.CheckoutRateLimit(limits), h.Payments.ConfirmPayment)
		secured.POST("/refund/:orderId", middleware.AuditCriticalActions("order_refund"), h.Payments.RefundOrder)
	}

	// Administration
	adm := api.Group("/admin", auth, middleware.RequireAdmin)
	{
		adm.POST("/products", middleware.AuditCriticalActions("product_create"), h.Catalog.CreateProduct)
		adm.PUT("/products/:id", middleware.AuditCriticalActions("product_update"), h.Catalog.UpdateProduct)
		adm.DELETE("/products/:id", middleware.AuditCriticalActions("product_deactivate"), h.Catalog.DeleteProduct)
		adm.POST("/products/:id/images", middleware.AuditCriticalActions("product_image"), h.Catalog.UploadImage)
		adm.POST("/products/:id/stock", middleware.AuditCriticalActions("stock_adjust"), h.Catalog.AdjustStock)
		adm.GET("/products/:id/movements", h.Catalog.Movements)
		adm.GET("/stock/low", h.Catalog.LowStock)
		adm.POST("/categories", middleware.AuditCriticalActions("category_create"), h.Catalog.CreateCategory)

		adm.GET("/orders", h.Admin.ListOrders)
		adm.PUT("/orders/:id/status", middleware.AuditCriticalActions("order_status"), h.Admin.UpdateOrderStatus)
	}
}
