// Package notifications envoie les e-mails liés aux commandes sans bloquer les requêtes.
package notifications

import (
	"context"
	"sync"
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Result rapporte l'issue d'un envoi, jamais propagée à l'appelant métier
type Result struct {
	Success bool
	Err     error
}

func ok() Result { return Result{Success: true} }

func failed(err error) Result { return Result{Err: err} }

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order models.Order, email, name string) Result
	SendAdminNotification(ctx context.Context, order models.Order) Result
	SendStatusUpdate(ctx context.Context, order models.Order) Result
	SendLowStockDigest(ctx context.Context, items []models.LowStockItem) Result
}

// SendTimeout borne chaque envoi exécuté par le pool
const SendTimeout = 60 * time.Second

// Dispatcher exécute les envois sur un pool ants borné
type Dispatcher struct {
	notifier Notifier
	pool     *ants.Pool
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, workers int) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			zap.L().Error("❌ Panique pendant un envoi de notification", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{notifier: notifier, pool: pool}, nil
}

func (d *Dispatcher) submit(kind, ref string, send func(ctx context.Context) Result) {
	d.wg.Add(1)
	err := d.pool.Submit(func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
		defer cancel()

		res := send(ctx)
		if !res.Success {
			zap.L().Warn("❌ Notification non envoyée", zap.String("kind", kind), zap.String("ref", ref), zap.Error(res.Err))
			return
		}
		zap.L().Info("📧 Notification envoyée", zap.String("kind", kind), zap.String("ref", ref))
	})
	if err != nil {
		d.wg.Done()
		zap.L().Warn("⚠️ Pool de notifications saturé", zap.String("kind", kind), zap.String("ref", ref), zap.Error(err))
	}
}

// OrderPlaced prévient le client, et l'équipe pour le paiement à la livraison ou déjà encaissé
func (d *Dispatcher) OrderPlaced(order models.Order) {
	d.submit("order_confirmation", order.OrderNumber, func(ctx context.Context) Result {
		return d.notifier.SendOrderConfirmation(ctx, order, order.CustomerEmail, order.CustomerName)
	})
	if order.Payment.Method == models.PaymentCOD || order.Payment.Status == models.PaymentStatusCompleted {
		d.submit("admin_notification", order.OrderNumber, func(ctx context.Context) Result {
			return d.notifier.SendAdminNotification(ctx, order)
		})
	}
}

func (d *Dispatcher) StatusChanged(order models.Order) {
	d.submit("status_update", order.OrderNumber, func(ctx context.Context) Result {
		return d.notifier.SendStatusUpdate(ctx, order)
	})
}

func (d *Dispatcher) LowStock(items []models.LowStockItem) {
	d.submit("low_stock_digest", "", func(ctx context.Context) Result {
		return d.notifier.SendLowStockDigest(ctx, items)
	})
}

// Close attend la fin des envois en cours puis libère le pool
func (d *Dispatcher) Close() {
	d.wg.Wait()
	d.pool.Release()
}
