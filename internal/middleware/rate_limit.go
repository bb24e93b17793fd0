package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mekassarat_back_end/internal/cache"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// Limites par fenêtre d'une minute
	APIMaxRequests      = 100
	CartMaxRequests     = 20
	CheckoutMaxRequests = 5

	RateWindow = 1 * time.Minute
)

// limit compte les requêtes par clé dans le store partagé (Redis en production)
func limit(store cache.Store, prefix string, max int64, message string, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := key(c)
		if id == "" {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		count, err := store.Incr(ctx, prefix+id, RateWindow)
		cancel()
		if err != nil {
			// store indisponible: on laisse passer
			zap.L().Warn("⚠️ Rate limit indisponible", zap.String("prefix", prefix), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", max))
		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > max {
			c.Header("Retry-After", fmt.Sprintf("%d", int(RateWindow.Seconds())))
			abort(c, http.StatusTooManyRequests, "RateLimited", message)
			return
		}
		c.Next()
	}
}

func byIP(c *gin.Context) string { return c.ClientIP() }

func byUser(c *gin.Context) string {
	if id := CallerFrom(c).ID; id != "" {
		return id
	}
	return c.ClientIP()
}

// APIRateLimit limite le nombre de requêtes par IP (général)
func APIRateLimit(store cache.Store) gin.HandlerFunc {
	return limit(store, "api_requests:", APIMaxRequests, "Trop de requêtes. Réessayez dans 1 minute", byIP)
}

// CartRateLimit limite les modifications du panier (anti-spam)
func CartRateLimit(store cache.Store) gin.HandlerFunc {
	return limit(store, "cart_requests:", CartMaxRequests, "Trop de modifications du panier. Ralentissez un peu", byUser)
}

// CheckoutRateLimit limite les créations de commande et de paiement
func CheckoutRateLimit(store cache.Store) gin.HandlerFunc {
	return limit(store, "checkout_requests:", CheckoutMaxRequests, "Trop de tentatives de commande. Réessayez dans 1 minute", byUser)
}
