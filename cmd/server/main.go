package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/config"
	"mekassarat_back_end/internal/database"
	"mekassarat_back_end/internal/handlers/admin"
	"mekassarat_back_end/internal/handlers/payement"
	"mekassarat_back_end/internal/handlers/product"
	"mekassarat_back_end/internal/handlers/user"
	"mekassarat_back_end/internal/jobs"
	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/notifications"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository"
	"mekassarat_back_end/internal/repository/memory"
	"mekassarat_back_end/internal/routes"
	"mekassarat_back_end/internal/services/cart"
	"mekassarat_back_end/internal/services/catalog"
	"mekassarat_back_end/internal/services/media"
	"mekassarat_back_end/internal/services/orders"
	"mekassarat_back_end/internal/services/payment"
	"mekassarat_back_end/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// stores regroupe les implémentations de persistance retenues au démarrage
type stores struct {
	products   repository.ProductStore
	categories repository.CategoryStore
	movements  repository.MovementStore
	orders     repository.OrderStore
	carts      repository.CartStore
	feed       repository.CartFeed
	kv         cache.Store
	uploader   admin.Uploader
	signer     catalog.ImageSigner
	searcher   catalog.Searcher
	close      func()
}

func main() {
	cfg := config.Load()

	logger := utils.InitLogger(cfg.Log.Mode, cfg.Log.File)
	defer logger.Sync()
	gin.SetMode(cfg.GinMode)

	st, err := openStores(cfg)
	if err != nil {
		zap.S().Fatalf("❌ Initialisation du stockage: %v", err)
	}
	defer st.close()

	// --- Paiement ---
	var gateway payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		zap.S().Info("✅ Stripe initialisé")
	} else {
		gateway = payment.NewFakeGateway()
		zap.S().Warn("⚠️ STRIPE_SECRET_KEY absente: passerelle de paiement simulée")
	}

	// --- Notifications ---
	mailer := notifications.NewMailNotifier(cfg.SMTP, cfg.FrontendURL, notifications.NewChromeInvoices(cfg.FrontendURL))
	dispatcher, err := notifications.NewDispatcher(mailer, cfg.NotifyWorkers)
	if err != nil {
		zap.S().Fatalf("❌ Pool de notifications: %v", err)
	}
	defer dispatcher.Close()

	// --- Services ---
	productCache := cache.NewProductCache(st.kv)
	catalogOpts := []catalog.Option{catalog.WithCache(productCache)}
	if st.searcher != nil {
		catalogOpts = append(catalogOpts, catalog.WithSearcher(st.searcher))
	}
	if st.signer != nil {
		catalogOpts = append(catalogOpts, catalog.WithImageSigner(st.signer))
	}
	catalogSvc := catalog.NewService(st.products, st.categories, st.movements, catalogOpts...)
	cartSvc := cart.NewService(st.carts, st.products)

	calc := pricing.NewCalculator(pricing.ShippingPolicy{
		DiscountCities: cfg.Shop.DiscountCities,
		DiscountRate:   cfg.Shop.DiscountRate,
		StandardRate:   cfg.Shop.StandardRate,
	}, cfg.Shop.TaxRate)
	orderSvc := orders.NewService(st.orders, st.products, st.movements, cartSvc, st.kv, calc,
		orders.WithEvents(dispatcher),
		orders.WithRefunder(payment.Refunds(gateway)),
		orders.WithProductCache(productCache),
	)
	paymentSvc := payment.NewService(gateway, orderSvc, st.orders, st.kv, cfg.Stripe.Currency)

	// --- Cron ---
	scheduler := jobs.NewScheduler(catalogSvc, dispatcher)
	if err := scheduler.Start(cfg.LowStockCron); err != nil {
		zap.S().Fatalf("❌ Planification du récapitulatif de stock: %v", err)
	}
	defer scheduler.Stop()

	// --- HTTP ---
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.MaxMultipartMemory = admin.MaxImageBytes

	routes.RegisterRoutes(r, routes.Handlers{
		Products: product.NewHandler(catalogSvc),
		Cart:     user.NewCartHandler(cartSvc),
		CartSync: user.NewCartSync(cartSvc, st.feed, cfg.CORSOrigins),
		Orders:   user.NewOrderHandler(orderSvc),
		Payments: payement.NewHandler(paymentSvc),
		Catalog:  admin.NewCatalogHandler(catalogSvc, st.uploader),
		Admin:    admin.NewOrdersHandler(orderSvc),
	}, st.kv, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infof("🚀 Serveur Mekassarat lancé sur le port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalf("❌ Serveur HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.S().Info("🛑 Arrêt du serveur...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Errorf("❌ Arrêt forcé: %v", err)
	}
}

// openStores choisit ScyllaDB/Redis ou la mémoire selon la configuration
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.InMemory() {
		zap.S().Warn("⚠️ SCYLLA_HOSTS absent: stockage en mémoire (développement)")
		products := memory.NewProducts()
		carts := memory.NewCarts()
		return &stores{
			products:   products,
			categories: products,
			movements:  products,
			orders:     memory.NewOrders(),
			carts:      carts,
			feed:       carts,
			kv:         cache.NewMemoryStore(),
			close:      func() {},
		}, nil
	}

	conns, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	products := repository.NewScyllaProducts(conns.Products)
	carts := repository.NewRedisCarts(conns.Redis)
	st := &stores{
		products:   products,
		categories: products,
		movements:  products,
		orders:     repository.NewScyllaOrders(conns.Orders),
		carts:      carts,
		feed:       carts,
		kv:         cache.NewRedisStore(conns.Redis),
		close:      conns.Close,
	}
	if conns.Elastic != nil {
		st.searcher = catalog.NewElasticSearcher(conns.Elastic)
	}
	if conns.MinIO != nil {
		images := media.NewMinioStore(conns.MinIO, cfg.MinIO.Bucket, cfg.MinIO.Endpoint, cfg.MinIO.UseSSL)
		st.uploader = images
		st.signer = images
	}
	return st, nil
}
