package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/cache"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository/memory"
	"mekassarat_back_end/internal/services/cart"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

type recordedEvents struct {
	mu      sync.Mutex
	placed  []models.Order
	changed []models.Order
}

func (r *recordedEvents) OrderPlaced(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, o)
}

func (r *recordedEvents) StatusChanged(o models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, o)
}

type fakeRefunder struct {
	calls []float64
	err   error
}

func (f *fakeRefunder) Refund(_ context.Context, _ string, amount float64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, amount)
	return "re_test", nil
}

type fixture struct {
	svc      *Service
	cart     *cart.Service
	store    *memory.Carts
	products *memory.Products
	orders   *memory.Orders
	events   *recordedEvents
	refunds  *fakeRefunder
}

func newFixture() *fixture {
	products := memory.NewProducts()
	orders := memory.NewOrders()
	store := memory.NewCarts()
	carts := cart.NewService(store, products)
	events := &recordedEvents{}
	refunds := &fakeRefunder{}
	svc := NewService(orders, products, products, carts, cache.NewMemoryStore(),
		pricing.NewCalculator(pricing.DefaultShippingPolicy(), 0),
		WithEvents(events), WithRefunder(refunds))
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return &fixture{svc: svc, cart: carts, store: store, products: products, orders: orders, events: events, refunds: refunds}
}

func (f *fixture) product(t *testing.T, name string, price float64, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:            gocql.TimeUUID(),
		Name:          name,
		Price:         price,
		WeightOptions: pricing.BuildWeightOptions(price, 250, 500, 1000),
		IsActive:      true,
		Inventory:     models.Inventory{Quantity: stock, TrackQuantity: true},
	}
	require.NoError(t, f.products.SaveProduct(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id gocql.UUID) int {
	t.Helper()
	p, err := f.products.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Inventory.Quantity
}

func (f *fixture) add(t *testing.T, p *models.Product, qty int) {
	t.Helper()
	_, err := f.cart.Add(context.Background(), userID, p.ID.String(), qty, nil)
	require.NoError(t, err)
}

func cairo() models.Address {
	return models.Address{FullName: "Sara", Phone: "0100000000", Street: "1 Nile St", City: "Cairo"}
}

func (f *fixture) place(method string) (*models.Order, error) {
	return f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:          userID,
		Email:           "sara@example.com",
		Name:            "Sara",
		ShippingAddress: cairo(),
		PaymentMethod:   method,
	})
}

func TestPlaceOrderAlmondsScenario(t *testing.T) {
	f := newFixture()
	almonds := f.product(t, "Almonds", 45, 10)
	f.add(t, almonds, 2)

	order, err := f.place(models.PaymentCOD)
	require.NoError(t, err)

	assert.Equal(t, 90.0, order.Pricing.ItemsPrice)
	assert.Equal(t, 70.0, order.Pricing.ShippingPrice)
	assert.Equal(t, 0.0, order.Pricing.TaxPrice)
	assert.Equal(t, 160.0, order.Pricing.TotalPrice)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "MK-20260314-0001", order.OrderNumber)
	require.Len(t, order.Timeline, 1)
	assert.Equal(t, 8, f.stock(t, almonds.ID))

	c, err := f.cart.Raw(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Len(t, f.events.placed, 1)
}

func TestTotalIsSumOfParts(t *testing.T) {
	f := newFixture()
	f.svc.calc = pricing.NewCalculator(pricing.DefaultShippingPolicy(), 0.14)
	f.add(t, f.product(t, "Cashews", 333.33, 50), 3)
	f.add(t, f.product(t, "Dates", 19.99, 50), 7)

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:          userID,
		ShippingAddress: models.Address{FullName: "Omar", Phone: "1", Street: "2 Rd", City: "Alexandria"},
		PaymentMethod:   models.PaymentCOD,
	})
	require.NoError(t, err)

	p := order.Pricing
	assert.Equal(t, p.ItemsPrice+p.TaxPrice+p.ShippingPrice, p.TotalPrice)
	assert.Equal(t, 100.0, p.ShippingPrice)
}

func TestPlaceOrderInsufficientStockLeavesInventory(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Pistachios", 500, 3)
	require.NoError(t, f.store.SaveCart(context.Background(), &models.Cart{
		UserID: userID,
		Items:  []models.CartItem{{ProductID: p.ID.String(), Name: p.Name, Price: 500, Quantity: 4}},
	}))

	_, err := f.place(models.PaymentCOD)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
	assert.Equal(t, 3, f.stock(t, p.ID))
}

func TestSequentialOrdersDrainStock(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Walnuts", 300, 5)

	for i := 0; i < 2; i++ {
		f.add(t, p, 2)
		_, err := f.place(models.PaymentCOD)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.stock(t, p.ID))

	_, err := f.cart.Add(context.Background(), userID, p.ID.String(), 2, nil)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))

	_, err = f.svc.Submit(context.Background(), Draft{
		UserID:          userID,
		ShippingAddress: cairo(),
		Lines:           []LineRequest{{ProductID: p.ID.String(), Quantity: 2}},
		Status:          models.OrderPending,
		Payment:         models.PaymentInfo{Method: models.PaymentCOD, Status: models.PaymentStatusPending},
	})
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
	assert.Equal(t, 1, f.stock(t, p.ID))
}

func TestPartialReservationIsRolledBack(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 100, 5)
	b := f.product(t, "B", 100, 1)

	// B passe la validation puis disparaît avant la réservation
	items, err := f.svc.Prepare(context.Background(), []LineRequest{
		{ProductID: a.ID.String(), Quantity: 2},
		{ProductID: b.ID.String(), Quantity: 1},
	})
	require.NoError(t, err)
	_, err = f.products.SetStock(context.Background(), b.ID, 0)
	require.NoError(t, err)

	_, err = f.svc.reserve(context.Background(), items)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 0, f.stock(t, b.ID))
}

func TestPersistFailureRestoresStock(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Hazelnuts", 200, 4)
	f.add(t, p, 3)
	f.orders.FailCreate = errors.New("scylla down")

	_, err := f.place(models.PaymentCOD)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Equal(t, 4, f.stock(t, p.ID))

	c, _ := f.cart.Raw(context.Background(), userID)
	assert.Len(t, c.Items, 1)
	assert.Empty(t, f.events.placed)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture()

	_, err := f.place(models.PaymentCOD)
	assert.Equal(t, apperr.EmptyCart, apperr.KindOf(err))

	f.add(t, f.product(t, "Figs", 80, 5), 1)
	_, err = f.place("bitcoin")
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:          userID,
		ShippingAddress: models.Address{FullName: "Sara"},
		PaymentMethod:   models.PaymentCOD,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "phone")
}

func TestInactiveProductIsUnavailable(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Raisins", 60, 5)
	f.add(t, p, 1)
	p.IsActive = false
	require.NoError(t, f.products.SaveProduct(context.Background(), p))

	_, err := f.place(models.PaymentCOD)
	assert.Equal(t, apperr.ProductUnavailable, apperr.KindOf(err))
}

func TestOrderNumbersAreSequential(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Peanuts", 50, 100)
	var numbers []string
	for i := 0; i < 3; i++ {
		f.add(t, p, 1)
		o, err := f.place(models.PaymentCOD)
		require.NoError(t, err)
		numbers = append(numbers, o.OrderNumber)
	}
	assert.Equal(t, []string{"MK-20260314-0001", "MK-20260314-0002", "MK-20260314-0003"}, numbers)
}

func TestCancelRestoresInventory(t *testing.T) {
	f := newFixture()
	a := f.product(t, "A", 100, 10)
	b := f.product(t, "B", 50, 10)
	f.add(t, a, 2)
	f.add(t, b, 1)

	order, err := f.place(models.PaymentCOD)
	require.NoError(t, err)
	assert.Equal(t, 8, f.stock(t, a.ID))
	assert.Equal(t, 9, f.stock(t, b.ID))

	cancelled, err := f.svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: userID}, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	require.Len(t, cancelled.Timeline, 2)
	assert.Equal(t, models.OrderCancelled, cancelled.Timeline[1].Status)
	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 10, f.stock(t, b.ID))

	movements, err := f.products.ListMovements(context.Background(), a.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementRestore, movements[0].Type)

	_, err = f.svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: userID}, "")
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))
	assert.Equal(t, 10, f.stock(t, a.ID))
}

func TestCancelPaidCardOrderRefunds(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Almonds", 45, 10)
	order, err := f.svc.Submit(context.Background(), Draft{
		UserID:          userID,
		ShippingAddress: cairo(),
		Lines:           []LineRequest{{ProductID: p.ID.String(), Quantity: 2}},
		Status:          models.OrderConfirmed,
		Payment:         models.PaymentInfo{Method: models.PaymentCard, Status: models.PaymentStatusCompleted, TransactionID: "pi_1"},
	})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: "admin", Role: models.RoleAdmin}, "rupture")
	require.NoError(t, err)
	assert.Equal(t, []float64{160}, f.refunds.calls)
	assert.Equal(t, models.PaymentStatusRefunded, cancelled.Payment.Status)
	require.NotNil(t, cancelled.Refund)
	assert.Equal(t, "re_test", cancelled.Refund.GatewayID)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCancelByStrangerIsDenied(t *testing.T) {
	f := newFixture()
	f.add(t, f.product(t, "A", 10, 10), 1)
	order, err := f.place(models.PaymentCOD)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: "someone-else"}, "")
	assert.Equal(t, apperr.AccessDenied, apperr.KindOf(err))

	_, err = f.svc.Get(context.Background(), order.ID.String(), models.Caller{ID: "someone-else"})
	assert.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestTransitionStateMachine(t *testing.T) {
	f := newFixture()
	f.add(t, f.product(t, "A", 10, 10), 1)
	order, err := f.place(models.PaymentCOD)
	require.NoError(t, err)
	admin := models.Caller{ID: "admin", Role: models.RoleAdmin}
	id := order.ID.String()

	_, err = f.svc.Transition(context.Background(), id, models.OrderShipped, admin, "")
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	for _, st := range []models.OrderStatus{models.OrderConfirmed, models.OrderProcessing, models.OrderShipped, models.OrderDelivered} {
		order, err = f.svc.Transition(context.Background(), id, st, admin, "")
		require.NoError(t, err)
	}
	assert.Equal(t, models.PaymentStatusCompleted, order.Payment.Status)
	assert.NotNil(t, order.Payment.PaidAt)
	assert.Len(t, order.Timeline, 5)

	_, err = f.svc.Transition(context.Background(), id, models.OrderCancelled, admin, "")
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	_, err = f.svc.Transition(context.Background(), id, models.OrderRefunded, admin, "")
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	order, err = f.svc.Transition(context.Background(), id, models.OrderCompleted, admin, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.Len(t, f.events.changed, 5)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.OrderStatus
		ok       bool
	}{
		{models.OrderPending, models.OrderConfirmed, true},
		{models.OrderPending, models.OrderCancelled, true},
		{models.OrderConfirmed, models.OrderCancelled, true},
		{models.OrderProcessing, models.OrderCancelled, false},
		{models.OrderDelivered, models.OrderRefunded, true},
		{models.OrderShipped, models.OrderRefunded, false},
		{models.OrderCompleted, models.OrderPending, false},
		{models.OrderCancelled, models.OrderConfirmed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

// racingOrders change le statut stocké juste après la lecture de la commande,
// comme une action administrateur concurrente
type racingOrders struct {
	*memory.Orders
	to    models.OrderStatus
	armed bool
}

func (r *racingOrders) GetOrder(ctx context.Context, id gocql.UUID) (*models.Order, error) {
	o, err := r.Orders.GetOrder(ctx, id)
	if err != nil || !r.armed {
		return o, err
	}
	r.armed = false
	moved := *o
	moved.Status = r.to
	if err := r.Orders.UpdateOrder(ctx, &moved, o.Status); err != nil {
		return nil, err
	}
	return o, nil
}

func (f *fixture) racing(to models.OrderStatus) (*Service, *racingOrders) {
	store := &racingOrders{Orders: f.orders, to: to}
	svc := NewService(store, f.products, f.products, f.cart, cache.NewMemoryStore(),
		pricing.NewCalculator(pricing.DefaultShippingPolicy(), 0),
		WithEvents(f.events), WithRefunder(f.refunds))
	svc.now = f.svc.now
	return svc, store
}

func (f *fixture) paidCardOrder(t *testing.T, svc *Service, p *models.Product) *models.Order {
	t.Helper()
	order, err := svc.Submit(context.Background(), Draft{
		UserID:          userID,
		ShippingAddress: cairo(),
		Lines:           []LineRequest{{ProductID: p.ID.String(), Quantity: 2}},
		Status:          models.OrderConfirmed,
		Payment:         models.PaymentInfo{Method: models.PaymentCard, Status: models.PaymentStatusCompleted, TransactionID: "pi_1"},
	})
	require.NoError(t, err)
	return order
}

func TestCancelRacingTransitionDoesNotRefund(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Almonds", 45, 10)
	svc, store := f.racing(models.OrderProcessing)
	order := f.paidCardOrder(t, svc, p)

	store.armed = true
	_, err := svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: userID}, "")
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))
	assert.Empty(t, f.refunds.calls)

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, stored.Status)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Payment.Status)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestCancelRestoresStatusWhenRefundFails(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Almonds", 45, 10)
	order := f.paidCardOrder(t, f.svc, p)

	f.refunds.err = errors.New("stripe down")
	_, err := f.svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: userID}, "")
	assert.Equal(t, apperr.Gateway, apperr.KindOf(err))

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, stored.Status)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Payment.Status)
	assert.Len(t, stored.Timeline, len(order.Timeline))
	assert.Equal(t, 8, f.stock(t, p.ID))

	f.refunds.err = nil
	cancelled, err := f.svc.Cancel(context.Background(), order.ID.String(), models.Caller{ID: userID}, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func (f *fixture) deliver(t *testing.T, svc *Service, order *models.Order) *models.Order {
	t.Helper()
	admin := models.Caller{ID: "admin", Role: models.RoleAdmin}
	var err error
	for _, st := range []models.OrderStatus{models.OrderProcessing, models.OrderShipped, models.OrderDelivered} {
		order, err = svc.Transition(context.Background(), order.ID.String(), st, admin, "")
		require.NoError(t, err)
	}
	return order
}

func TestRefundLocksStatusBeforeCharging(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Almonds", 45, 10)
	svc, store := f.racing(models.OrderCompleted)
	order := f.deliver(t, svc, f.paidCardOrder(t, svc, p))

	// la commande passe en completed entre la lecture et le remboursement
	store.armed = true
	loaded, err := svc.Load(context.Background(), order.ID)
	require.NoError(t, err)

	charged := 0
	_, err = svc.Refund(context.Background(), loaded, models.RefundInfo{Amount: 160, Reason: "abîmé", By: "admin"},
		func(context.Context) (string, error) {
			charged++
			return "re_1", nil
		})
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))
	assert.Zero(t, charged)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestRefundRestoresStatusWhenChargeFails(t *testing.T) {
	f := newFixture()
	p := f.product(t, "Almonds", 45, 10)
	order := f.deliver(t, f.svc, f.paidCardOrder(t, f.svc, p))

	_, err := f.svc.Refund(context.Background(), order, models.RefundInfo{Amount: 160, Reason: "abîmé", By: "admin"},
		func(context.Context) (string, error) { return "", errors.New("stripe down") })
	assert.Equal(t, apperr.Gateway, apperr.KindOf(err))

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, stored.Status)
	assert.Nil(t, stored.Refund)
	assert.Equal(t, 8, f.stock(t, p.ID))

	refunded, err := f.svc.Refund(context.Background(), stored, models.RefundInfo{Amount: 160, Reason: "abîmé", By: "admin"},
		func(context.Context) (string, error) { return "re_2", nil })
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, refunded.Status)
	assert.Equal(t, "re_2", refunded.Refund.GatewayID)
	assert.Equal(t, 10, f.stock(t, p.ID))
}
