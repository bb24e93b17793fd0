package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"mekassarat_back_end/internal/models"

	"github.com/gocql/gocql"
)

const orderColumns = `order_id, order_number, user_id, customer_email, customer_name, status, payment_method, payment_status, transaction_id,
	paid_at, items, shipping_address, pricing, timeline, refund, notes, created_at, updated_at`

// ScyllaOrders stocke les commandes; les sous-documents sont sérialisés en JSON
type ScyllaOrders struct {
	session *gocql.Session
}

func NewScyllaOrders(session *gocql.Session) *ScyllaOrders {
	return &ScyllaOrders{session: session}
}

type orderDocs struct {
	items, address, pricing, timeline, refund string
}

func encodeOrder(o *models.Order) (orderDocs, error) {
	var (
		docs orderDocs
		err  error
		raw  []byte
	)
	if raw, err = json.Marshal(o.Items); err != nil {
		return docs, err
	}
	docs.items = string(raw)
	if raw, err = json.Marshal(o.ShippingAddress); err != nil {
		return docs, err
	}
	docs.address = string(raw)
	if raw, err = json.Marshal(o.Pricing); err != nil {
		return docs, err
	}
	docs.pricing = string(raw)
	if raw, err = json.Marshal(o.Timeline); err != nil {
		return docs, err
	}
	docs.timeline = string(raw)
	if o.Refund != nil {
		if raw, err = json.Marshal(o.Refund); err != nil {
			return docs, err
		}
		docs.refund = string(raw)
	}
	return docs, nil
}

func (s *ScyllaOrders) CreateOrder(ctx context.Context, o *models.Order) error {
	docs, err := encodeOrder(o)
	if err != nil {
		return fmt.Errorf("sérialisation commande: %w", err)
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderNumber, o.UserID, o.CustomerEmail, o.CustomerName, string(o.Status), o.Payment.Method, o.Payment.Status, o.Payment.TransactionID,
		o.Payment.PaidAt, docs.items, docs.address, docs.pricing, docs.timeline, docs.refund, o.Notes,
		o.CreatedAt, o.UpdatedAt)
	batch.Query(`INSERT INTO orders_by_user (user_id, created_at, order_id) VALUES (?, ?, ?)`,
		o.UserID, o.CreatedAt, o.ID)

	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("insertion commande %s: %w", o.OrderNumber, err)
	}
	return nil
}

func (s *ScyllaOrders) UpdateOrder(ctx context.Context, o *models.Order, expected models.OrderStatus) error {
	docs, err := encodeOrder(o)
	if err != nil {
		return fmt.Errorf("sérialisation commande: %w", err)
	}

	var current string
	applied, err := s.session.Query(`UPDATE orders SET status = ?, payment_status = ?, transaction_id = ?, paid_at = ?,
			timeline = ?, refund = ?, updated_at = ?
		WHERE order_id = ? IF status = ?`,
		string(o.Status), o.Payment.Status, o.Payment.TransactionID, o.Payment.PaidAt,
		docs.timeline, docs.refund, o.UpdatedAt, o.ID, string(expected)).WithContext(ctx).ScanCAS(&current)
	if err != nil {
		return fmt.Errorf("mise à jour commande %s: %w", o.ID, err)
	}
	if !applied {
		if current == "" {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *ScyllaOrders) GetOrder(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	iter := s.session.Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id).WithContext(ctx).Iter()
	o, err := scanOrder(iter)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func scanOrder(iter *gocql.Iter) (*models.Order, error) {
	var (
		o      models.Order
		status string
		docs   orderDocs
	)
	ok := iter.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CustomerEmail, &o.CustomerName, &status, &o.Payment.Method, &o.Payment.Status,
		&o.Payment.TransactionID, &o.Payment.PaidAt, &docs.items, &docs.address, &docs.pricing,
		&docs.timeline, &docs.refund, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if !ok {
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("lecture commandes: %w", err)
		}
		return nil, nil
	}
	o.Status = models.OrderStatus(status)

	decode := func(raw string, dst any) error {
		if raw == "" {
			return nil
		}
		return json.Unmarshal([]byte(raw), dst)
	}
	if err := errors.Join(
		decode(docs.items, &o.Items),
		decode(docs.address, &o.ShippingAddress),
		decode(docs.pricing, &o.Pricing),
		decode(docs.timeline, &o.Timeline),
	); err != nil {
		return nil, fmt.Errorf("commande %s illisible: %w", o.ID, err)
	}
	if docs.refund != "" {
		o.Refund = &models.RefundInfo{}
		if err := decode(docs.refund, o.Refund); err != nil {
			return nil, fmt.Errorf("remboursement %s illisible: %w", o.ID, err)
		}
	}
	return &o, nil
}

func (s *ScyllaOrders) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	iter := s.session.Query(`SELECT order_id FROM orders_by_user WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	var (
		ids []gocql.UUID
		id  gocql.UUID
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture commandes utilisateur: %w", err)
	}

	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetOrder(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (s *ScyllaOrders) ListOrders(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	iter := s.session.Query(`SELECT ` + orderColumns + ` FROM orders`).WithContext(ctx).Iter()

	var orders []models.Order
	for {
		o, err := scanOrder(iter)
		if err != nil {
			return nil, err
		}
		if o == nil {
			break
		}
		if status != "" && o.Status != status {
			continue
		}
		orders = append(orders, *o)
	}
	sortNewestFirst(orders)
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func sortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func (s *ScyllaOrders) ClaimIntent(ctx context.Context, intentID string, orderID gocql.UUID) (bool, error) {
	var existing gocql.UUID
	var existingIntent string
	applied, err := s.session.Query(`INSERT INTO orders_by_intent (intent_id, order_id) VALUES (?, ?) IF NOT EXISTS`,
		intentID, orderID).WithContext(ctx).ScanCAS(&existingIntent, &existing)
	if err != nil {
		return false, fmt.Errorf("réservation intent %s: %w", intentID, err)
	}
	return applied, nil
}

func (s *ScyllaOrders) ReleaseIntent(ctx context.Context, intentID string) error {
	// la ligne a été écrite en LWT: la suppression passe aussi par Paxos
	if _, err := s.session.Query(`DELETE FROM orders_by_intent WHERE intent_id = ? IF EXISTS`, intentID).
		WithContext(ctx).MapScanCAS(map[string]interface{}{}); err != nil {
		return fmt.Errorf("libération intent %s: %w", intentID, err)
	}
	return nil
}

func (s *ScyllaOrders) MarkIntentRefunded(ctx context.Context, intentID string) error {
	applied, err := s.session.Query(`UPDATE orders_by_intent SET order_id = ? WHERE intent_id = ? IF EXISTS`,
		RefundedIntent, intentID).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("marquage remboursement intent %s: %w", intentID, err)
	}
	if !applied {
		// lien déjà libéré: on pose le marqueur directement
		if _, err := s.session.Query(`INSERT INTO orders_by_intent (intent_id, order_id) VALUES (?, ?) IF NOT EXISTS`,
			intentID, RefundedIntent).WithContext(ctx).MapScanCAS(map[string]interface{}{}); err != nil {
			return fmt.Errorf("marquage remboursement intent %s: %w", intentID, err)
		}
	}
	return nil
}

func (s *ScyllaOrders) OrderIDForIntent(ctx context.Context, intentID string) (gocql.UUID, bool, error) {
	var id gocql.UUID
	err := s.session.Query(`SELECT order_id FROM orders_by_intent WHERE intent_id = ?`, intentID).WithContext(ctx).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return gocql.UUID{}, false, nil
	}
	if err != nil {
		return gocql.UUID{}, false, fmt.Errorf("lecture intent %s: %w", intentID, err)
	}
	return id, true, nil
}
