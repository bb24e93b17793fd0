package user

import (
	"context"
	"net/http"
	"time"

	"mekassarat_back_end/internal/middleware"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"
	"mekassarat_back_end/internal/services/cart"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const pingInterval = 30 * time.Second

// CartSync pousse le panier à jour à chaque modification, sur tous les onglets de l'utilisateur
type CartSync struct {
	cart     *cart.Service
	feed     repository.CartFeed
	upgrader websocket.Upgrader
}

// NewCartSync accepte les origines autorisées par CORS; une liste vide accepte tout
func NewCartSync(svc *cart.Service, feed repository.CartFeed, origins []string) *CartSync {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &CartSync{
		cart: svc,
		feed: feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

type cartMessage struct {
	Type  string       `json:"type"`
	Cart  *models.Cart `json:"cart,omitempty"`
	Error string       `json:"error,omitempty"`
}

// CartWebSocket gère la synchronisation temps réel du panier
func (h *CartSync) CartWebSocket(c *gin.Context) {
	userID := middleware.CallerFrom(c).ID
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "Non authentifié"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Warnf("❌ Erreur upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, stop, err := h.feed.Subscribe(ctx, userID)
	if err != nil {
		zap.S().Errorf("❌ Abonnement panier impossible: %v", err)
		if err := conn.WriteJSON(cartMessage{Type: "error", Error: "Synchronisation indisponible"}); err != nil {
			zap.S().Debugf("❌ Erreur envoi WebSocket: %v", err)
		}
		return
	}
	defer stop()

	// lecture en tâche de fond pour détecter la fermeture côté client
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.push(ctx, conn, userID, "connected"); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event != repository.CartEventUpdated && event != repository.CartEventCleared {
				continue
			}
			if err := h.push(ctx, conn, userID, "cart_"+event); err != nil {
				zap.S().Debugf("❌ Erreur envoi WebSocket: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *CartSync) push(ctx context.Context, conn *websocket.Conn, userID, kind string) error {
	current, err := h.cart.Raw(ctx, userID)
	if err != nil {
		return conn.WriteJSON(cartMessage{Type: "error", Error: "Panier indisponible"})
	}
	current.Recalculate()
	return conn.WriteJSON(cartMessage{Type: kind, Cart: current})
}
