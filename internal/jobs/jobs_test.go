package jobs

import (
	"context"
	"errors"
	"testing"

	"mekassarat_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) LowStock(ctx context.Context) ([]models.LowStockItem, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]models.LowStockItem)
	return items, args.Error(1)
}

type mockSink struct{ mock.Mock }

func (m *mockSink) LowStock(items []models.LowStockItem) {
	m.Called(items)
}

func TestRunLowStockSendsDigest(t *testing.T) {
	items := []models.LowStockItem{{Name: "Almonds", Quantity: 2, Threshold: 5}}
	source := &mockSource{}
	source.On("LowStock", mock.Anything).Return(items, nil)
	sink := &mockSink{}
	sink.On("LowStock", items).Return()

	n := NewScheduler(source, sink).RunLowStock(context.Background())
	assert.Equal(t, 1, n)
	sink.AssertExpectations(t)
}

func TestRunLowStockSkipsEmptyAndErrors(t *testing.T) {
	sink := &mockSink{}

	empty := &mockSource{}
	empty.On("LowStock", mock.Anything).Return(nil, nil)
	assert.Equal(t, 0, NewScheduler(empty, sink).RunLowStock(context.Background()))

	broken := &mockSource{}
	broken.On("LowStock", mock.Anything).Return(nil, errors.New("scylla down"))
	assert.Equal(t, 0, NewScheduler(broken, sink).RunLowStock(context.Background()))

	sink.AssertNotCalled(t, "LowStock", mock.Anything)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&mockSource{}, &mockSink{})
	require.Error(t, s.Start("not a cron"))
	require.NoError(t, s.Start("0 0 8 * * *"))
	s.Stop()
}
