package worker

import (
	"context"
	"log"

	"pricing-service/internal/broker"
	"pricing-service/internal/cache"
	"pricing-service/internal/models"
	"pricing-service/internal/service"
)

// SyncWorker consumes catalog sync requests and drives the runner
type SyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(consumer *broker.Consumer, syncService *service.CatalogSyncService) *SyncWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnSyncRequested(syncService.RunJob)

	return &SyncWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *SyncWorker) Start(ctx context.Context) error {
	log.Println("Starting sync worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SyncWorker) Stop() error {
	log.Println("Stopping sync worker...")
	return w.consumer.Close()
}

// InvalidationWorker consumes RulesChanged events published by peer
// instances and applies the scoped cache invalidation locally
type InvalidationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewInvalidationWorker creates a new invalidation worker
func NewInvalidationWorker(consumer *broker.Consumer, c *cache.Cache) *InvalidationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnRulesChanged(func(ctx context.Context, event *models.RulesChangedEvent) error {
		var err error
		switch event.ScopeKind {
		case models.ScopeBundle:
			_, err = c.InvalidateByBundle(ctx, event.ScopeKey)
		case models.ScopeCountry:
			_, err = c.InvalidateByCountry(ctx, event.ScopeKey)
		default:
			_, err = c.InvalidateAll(ctx)
		}
		if err != nil {
			log.Printf("Cache invalidation from event failed: %v", err)
		}
		return nil
	})

	return &InvalidationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *InvalidationWorker) Start(ctx context.Context) error {
	log.Println("Starting invalidation worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InvalidationWorker) Stop() error {
	log.Println("Stopping invalidation worker...")
	return w.consumer.Close()
}
