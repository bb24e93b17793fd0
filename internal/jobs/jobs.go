// Package jobs planifie les tâches récurrentes (alerte de stock faible).
package jobs

import (
	"context"
	"time"

	"mekassarat_back_end/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// LowStockSource liste les produits sous leur seuil d'alerte
type LowStockSource interface {
	LowStock(ctx context.Context) ([]models.LowStockItem, error)
}

// LowStockSink reçoit le récapitulatif (envoi par mail)
type LowStockSink interface {
	LowStock(items []models.LowStockItem)
}

type Scheduler struct {
	sched  *cron.Cron
	source LowStockSource
	sink   LowStockSink
}

func NewScheduler(source LowStockSource, sink LowStockSink) *Scheduler {
	return &Scheduler{
		sched:  cron.New(cron.WithParser(cronParser)),
		source: source,
		sink:   sink,
	}
}

// Start enregistre l'alerte de stock faible (ex: "0 0 8 * * *") et lance le planificateur
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.sched.AddFunc(schedule, func() { s.RunLowStock(context.Background()) }); err != nil {
		return err
	}
	s.sched.Start()
	zap.L().Info("✅ Tâches planifiées démarrées", zap.String("low_stock", schedule))
	return nil
}

// RunLowStock envoie le récapitulatif s'il y a au moins un produit concerné
func (s *Scheduler) RunLowStock(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	items, err := s.source.LowStock(ctx)
	if err != nil {
		zap.L().Error("❌ Lecture du stock faible impossible", zap.Error(err))
		return 0
	}
	if len(items) == 0 {
		return 0
	}
	zap.L().Warn("⚠️ Produits en stock faible", zap.Int("count", len(items)))
	s.sink.LowStock(items)
	return len(items)
}

// Stop attend la fin des tâches en cours
func (s *Scheduler) Stop() {
	<-s.sched.Stop().Done()
}
