package memory

import (
	"context"
	"sort"
	"sync"

	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/repository"

	"github.com/gocql/gocql"
)

type Orders struct {
	mu       sync.Mutex
	orders   map[gocql.UUID]models.Order
	byIntent map[string]gocql.UUID
	// FailCreate simule une panne d'écriture (tests de compensation)
	FailCreate error
}

func NewOrders() *Orders {
	return &Orders{
		orders:   make(map[gocql.UUID]models.Order),
		byIntent: make(map[string]gocql.UUID),
	}
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	o.Timeline = append([]models.TimelineEvent(nil), o.Timeline...)
	if o.Refund != nil {
		r := *o.Refund
		o.Refund = &r
	}
	return o
}

func (s *Orders) CreateOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return s.FailCreate
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Orders) UpdateOrder(_ context.Context, o *models.Order, expected models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orders[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != expected {
		return repository.ErrConflict
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Orders) GetOrder(_ context.Context, id gocql.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := cloneOrder(o)
	return &clone, nil
}

func (s *Orders) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	return s.filter(func(o models.Order) bool { return o.UserID == userID }, 0), nil
}

func (s *Orders) ListOrders(_ context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	return s.filter(func(o models.Order) bool { return status == "" || o.Status == status }, limit), nil
}

func (s *Orders) filter(keep func(models.Order) bool, limit int) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Orders) ClaimIntent(_ context.Context, intentID string, orderID gocql.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byIntent[intentID]; taken {
		return false, nil
	}
	s.byIntent[intentID] = orderID
	return true, nil
}

func (s *Orders) ReleaseIntent(_ context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byIntent, intentID)
	return nil
}

func (s *Orders) MarkIntentRefunded(_ context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byIntent[intentID] = repository.RefundedIntent
	return nil
}

func (s *Orders) OrderIDForIntent(_ context.Context, intentID string) (gocql.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIntent[intentID]
	return id, ok, nil
}
