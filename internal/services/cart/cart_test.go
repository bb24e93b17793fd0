package cart

import (
	"context"
	"math/rand"
	"testing"

	"mekassarat_back_end/internal/apperr"
	"mekassarat_back_end/internal/models"
	"mekassarat_back_end/internal/pricing"
	"mekassarat_back_end/internal/repository"
	"mekassarat_back_end/internal/repository/memory"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

type fixture struct {
	svc      *Service
	carts    *memory.Carts
	products *memory.Products
}

func newFixture() *fixture {
	carts := memory.NewCarts()
	products := memory.NewProducts()
	return &fixture{svc: NewService(carts, products), carts: carts, products: products}
}

func (f *fixture) product(t *testing.T, name string, price float64, stock int, mutate ...func(*models.Product)) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:            gocql.TimeUUID(),
		Name:          name,
		Price:         price,
		WeightOptions: pricing.BuildWeightOptions(price, 250, 500, 1000),
		ImageURLs:     []string{"http://img/" + name + ".jpg"},
		IsActive:      true,
		Inventory:     models.Inventory{Quantity: stock, TrackQuantity: true},
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(t, f.products.SaveProduct(context.Background(), p))
	return p
}

func assertTotals(t *testing.T, c *models.Cart) {
	t.Helper()
	var amount float64
	count := 0
	for _, it := range c.Items {
		amount += it.Price * float64(it.Quantity)
		count += it.Quantity
	}
	assert.InDelta(t, amount, c.TotalAmount, 1e-9)
	assert.Equal(t, count, c.TotalItems)
}

func TestAddMergesSameLine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Almonds", 45, 10)

	_, err := f.svc.Add(ctx, userID, p.ID.String(), 2, nil)
	require.NoError(t, err)
	c, err := f.svc.Add(ctx, userID, p.ID.String(), 3, nil)
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, 225.0, c.TotalAmount)
	assert.Equal(t, 5, c.TotalItems)
}

func TestAddKeepsVariantsSeparate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Cashews", 600, 50)

	_, err := f.svc.Add(ctx, userID, p.ID.String(), 1, &models.WeightOption{Label: "250g"})
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, p.ID.String(), 2, &models.WeightOption{Grams: 500})
	require.NoError(t, err)
	c, err := f.svc.Add(ctx, userID, p.ID.String(), 1, nil)
	require.NoError(t, err)

	require.Len(t, c.Items, 3)
	assert.Equal(t, 150.0, c.Items[0].Price)
	assert.Equal(t, 300.0, c.Items[1].Price)
	assert.Equal(t, "500g", c.Items[1].Weight.Label)
	assert.Equal(t, 600.0, c.Items[2].Price)
	assert.Equal(t, 150.0+2*300.0+600.0, c.TotalAmount)
}

func TestAddErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Almonds", 45, 3)
	inactive := f.product(t, "Old", 10, 3, func(p *models.Product) { p.IsActive = false })

	tests := []struct {
		name      string
		productID string
		qty       int
		weight    *models.WeightOption
		want      apperr.Kind
	}{
		{"produit inconnu", gocql.TimeUUID().String(), 1, nil, apperr.ProductNotFound},
		{"identifiant invalide", "xyz", 1, nil, apperr.ProductNotFound},
		{"produit inactif", inactive.ID.String(), 1, nil, apperr.ProductNotFound},
		{"variante absente", p.ID.String(), 1, &models.WeightOption{Label: "5kg"}, apperr.InvalidVariant},
		{"stock insuffisant", p.ID.String(), 4, nil, apperr.InsufficientStock},
		{"quantité nulle", p.ID.String(), 0, nil, apperr.InvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Add(ctx, userID, tt.productID, tt.qty, tt.weight)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestAddCountsExistingQuantityAgainstStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Almonds", 45, 3)

	_, err := f.svc.Add(ctx, userID, p.ID.String(), 2, nil)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, p.ID.String(), 2, nil)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
}

func TestAddCountsAllVariantsAgainstStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Cashews", 600, 3)

	_, err := f.svc.Add(ctx, userID, p.ID.String(), 2, &models.WeightOption{Label: "250g"})
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, p.ID.String(), 2, &models.WeightOption{Label: "500g"})
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
	_, err = f.svc.Add(ctx, userID, p.ID.String(), 2, nil)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))

	c, err := f.svc.Add(ctx, userID, p.ID.String(), 1, &models.WeightOption{Label: "500g"})
	require.NoError(t, err)
	assert.Equal(t, 3, c.TotalItems)

	_, err = f.svc.SetQuantity(ctx, userID, p.ID.String(), &models.WeightOption{Label: "500g"}, 2)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
}

func TestVariantLineMatchesByGrams(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Cashews", 600, 50)

	_, err := f.svc.Add(ctx, userID, p.ID.String(), 1, &models.WeightOption{Label: "500g"})
	require.NoError(t, err)
	c, err := f.svc.Add(ctx, userID, p.ID.String(), 1, &models.WeightOption{Grams: 500})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)

	c, err = f.svc.SetQuantity(ctx, userID, p.ID.String(), &models.WeightOption{Grams: 500}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items[0].Quantity)

	c, err = f.svc.Remove(ctx, userID, p.ID.String(), &models.WeightOption{Grams: 500})
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestAddWithBackorderOrUntracked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	backorder := f.product(t, "Dates", 120, 0, func(p *models.Product) { p.Inventory.AllowBackorder = true })
	untracked := f.product(t, "Figs", 200, 0, func(p *models.Product) { p.Inventory.TrackQuantity = false })

	_, err := f.svc.Add(ctx, userID, backorder.ID.String(), 5, nil)
	assert.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, untracked.ID.String(), 5, nil)
	assert.NoError(t, err)
}

func TestSetQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	almonds := f.product(t, "Almonds", 45, 10)
	dates := f.product(t, "Dates", 120, 10)

	_, err := f.svc.Add(ctx, userID, almonds.ID.String(), 2, nil)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, dates.ID.String(), 1, nil)
	require.NoError(t, err)

	c, err := f.svc.SetQuantity(ctx, userID, almonds.ID.String(), nil, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assertTotals(t, c)

	_, err = f.svc.SetQuantity(ctx, userID, almonds.ID.String(), nil, 11)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))

	_, err = f.svc.SetQuantity(ctx, userID, almonds.ID.String(), nil, -1)
	assert.Equal(t, apperr.InvalidQuantity, apperr.KindOf(err))

	_, err = f.svc.SetQuantity(ctx, userID, gocql.TimeUUID().String(), nil, 1)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	c, err = f.svc.SetQuantity(ctx, userID, almonds.ID.String(), nil, 0)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "Dates", c.Items[0].Name)
	assert.Equal(t, 120.0, c.TotalAmount)
	assert.Equal(t, 1, c.TotalItems)
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	almonds := f.product(t, "Almonds", 45, 10)
	dates := f.product(t, "Dates", 120, 10)

	_, err := f.svc.Add(ctx, userID, almonds.ID.String(), 2, nil)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, dates.ID.String(), 1, nil)
	require.NoError(t, err)

	once, err := f.svc.Remove(ctx, userID, almonds.ID.String(), nil)
	require.NoError(t, err)
	twice, err := f.svc.Remove(ctx, userID, almonds.ID.String(), nil)
	require.NoError(t, err)

	assert.Equal(t, once.Items, twice.Items)
	assert.Equal(t, once.TotalAmount, twice.TotalAmount)
	assert.Equal(t, once.TotalItems, twice.TotalItems)
}

func TestTotalsHoldAfterRandomMutations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	var ids []string
	for i, price := range []float64{45, 120.5, 600, 19.99} {
		p := f.product(t, string(rune('A'+i)), price, 1000)
		ids = append(ids, p.ID.String())
	}
	weights := []*models.WeightOption{nil, {Label: "250g"}, {Label: "500g"}}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 300; step++ {
		id := ids[rng.Intn(len(ids))]
		w := weights[rng.Intn(len(weights))]
		var (
			c   *models.Cart
			err error
		)
		switch rng.Intn(3) {
		case 0:
			c, err = f.svc.Add(ctx, userID, id, 1+rng.Intn(3), w)
		case 1:
			c, err = f.svc.SetQuantity(ctx, userID, id, w, rng.Intn(4))
			if apperr.Is(err, apperr.NotFound) {
				continue
			}
		default:
			c, err = f.svc.Remove(ctx, userID, id, w)
		}
		require.NoError(t, err)
		assertTotals(t, c)

		stored, err := f.carts.GetCart(ctx, userID)
		require.NoError(t, err)
		assertTotals(t, stored)
	}
}

func TestGetHealsStaleCart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	almonds := f.product(t, "Almonds", 45, 10)
	dates := f.product(t, "Dates", 120, 10)

	_, err := f.svc.Add(ctx, userID, almonds.ID.String(), 2, nil)
	require.NoError(t, err)
	_, err = f.svc.Add(ctx, userID, dates.ID.String(), 1, nil)
	require.NoError(t, err)

	dates.IsActive = false
	require.NoError(t, f.products.SaveProduct(ctx, dates))
	almonds.Price = 50
	almonds.Name = "Roasted Almonds"
	require.NoError(t, f.products.SaveProduct(ctx, almonds))

	c, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "Roasted Almonds", c.Items[0].Name)
	assert.Equal(t, 100.0, c.TotalAmount)

	stored, err := f.carts.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)
	assert.Equal(t, 100.0, stored.TotalAmount)
}

func TestClearPublishesEvent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.product(t, "Almonds", 45, 10)

	_, err := f.svc.Add(ctx, userID, p.ID.String(), 1, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, userID))

	c, err := f.svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, 0.0, c.TotalAmount)

	events := f.carts.Events()
	require.Len(t, events, 2)
	assert.Equal(t, repository.CartEventUpdated, events[0].Event)
	assert.Equal(t, repository.CartEventCleared, events[1].Event)
}
