package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/redis/go-redis/v9"
)

// CartTTL est la durée de vie d'un panier inactif
const CartTTL = 30 * 24 * time.Hour

func CartKey(userID string) string {
	return "cart:" + userID
}

// RedisCarts garde un document JSON par utilisateur sous "cart:<userID>"
type RedisCarts struct {
	rdb *redis.Client
}

func NewRedisCarts(rdb *redis.Client) *RedisCarts {
	return &RedisCarts{rdb: rdb}
}

func (r *RedisCarts) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	data, err := r.rdb.Get(ctx, CartKey(userID)).Result()
	if errors.Is(err, redis.Nil) || data == "" {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lecture panier: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal([]byte(data), &cart); err != nil {
		return nil, fmt.Errorf("panier illisible: %w", err)
	}
	cart.UserID = userID
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return &cart, nil
}

func (r *RedisCarts) SaveCart(ctx context.Context, cart *models.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("sérialisation panier: %w", err)
	}
	if err := r.rdb.Set(ctx, CartKey(cart.UserID), data, CartTTL).Err(); err != nil {
		return fmt.Errorf("enregistrement panier: %w", err)
	}
	return nil
}

func (r *RedisCarts) Publish(ctx context.Context, userID, event string) error {
	return r.rdb.Publish(ctx, CartKey(userID), event).Err()
}

func (r *RedisCarts) Subscribe(ctx context.Context, userID string) (<-chan string, func(), error) {
	pubsub := r.rdb.Subscribe(ctx, CartKey(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("abonnement panier: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			default:
			}
		}
	}()
	return out, func() { pubsub.Close() }, nil
}
