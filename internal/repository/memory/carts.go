package memory

import (
	"context"
	"sync"

	"mekassarat_back_end/internal/models"
)

// CartEvent est un message publié pour la synchro temps réel
type CartEvent struct {
	UserID string
	Event  string
}

type Carts struct {
	mu     sync.Mutex
	carts  map[string]models.Cart
	events []CartEvent
	subs   map[string]map[chan string]struct{}
}

func NewCarts() *Carts {
	return &Carts{carts: make(map[string]models.Cart), subs: make(map[string]map[chan string]struct{})}
}

func (s *Carts) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	c.Items = append([]models.CartItem{}, c.Items...)
	return &c, nil
}

func (s *Carts) SaveCart(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cart
	c.Items = append([]models.CartItem{}, cart.Items...)
	s.carts[cart.UserID] = c
	return nil
}

func (s *Carts) Publish(_ context.Context, userID, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, CartEvent{UserID: userID, Event: event})
	for ch := range s.subs[userID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (s *Carts) Subscribe(_ context.Context, userID string) (<-chan string, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan string, 16)
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[chan string]struct{})
	}
	s.subs[userID][ch] = struct{}{}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[userID], ch)
			close(ch)
		})
	}
	return ch, stop, nil
}

func (s *Carts) Events() []CartEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CartEvent(nil), s.events...)
}
