// Package worker hosts the background consumers: automatic functional
// acknowledgment of inbound documents and compliance verdict cache
// refresh.
package worker

import (
	"context"

	"compliance-service/internal/broker"
	"compliance-service/internal/models"
	"compliance-service/internal/service"
	"compliance-service/internal/util"

	"go.uber.org/zap"
)

// ProcessedEventStore records which events a consumer has already acted
// on, so redelivered messages don't issue duplicate acknowledgments.
type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// VerdictCache is the cache refresh surface the compliance worker needs.
type VerdictCache interface {
	SetComplianceVerdict(ctx context.Context, listingID string, rvc *int64, qualifies *bool) error
	InvalidateComplianceVerdict(ctx context.Context, listingID string) error
}

// AcknowledgmentWorker issues a 997 for every inbound commercial
// document (850 and 820). Outbound documents are acknowledged by the
// trading partner, not by us.
type AcknowledgmentWorker struct {
	consumer  *broker.Consumer
	processed ProcessedEventStore
	edi       *service.EdiService
	enabled   bool
	logger    *zap.Logger
}

// NewAcknowledgmentWorker creates a new acknowledgment worker
func NewAcknowledgmentWorker(consumer *broker.Consumer, processed ProcessedEventStore, edi *service.EdiService, enabled bool) *AcknowledgmentWorker {
	return &AcknowledgmentWorker{
		consumer:  consumer,
		processed: processed,
		edi:       edi,
		enabled:   enabled,
		logger:    util.GetLogger(),
	}
}

// Start consumes TransactionCreated events until the context is
// cancelled.
func (w *AcknowledgmentWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnTransactionCreated(w.handleTransactionCreated)

	w.logger.Info("Acknowledgment worker starting", zap.Bool("auto_acknowledge", w.enabled))
	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *AcknowledgmentWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		w.logger.Warn("Error closing acknowledgment consumer", zap.Error(err))
	}
}

func (w *AcknowledgmentWorker) handleTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error {
	if !w.enabled {
		return nil
	}
	if event.Direction != models.DirectionInbound || event.TransactionType == models.TypeFunctionalAck {
		return nil
	}

	done, err := w.processed.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if done {
		w.logger.Debug("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	ack, err := w.edi.Generate997(ctx, event.TransactionID, &service.Generate997Request{})
	if err != nil {
		w.logger.Error("Failed to auto-acknowledge transaction",
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err))
		return err
	}

	w.logger.Info("Auto-acknowledged inbound transaction",
		zap.String("transaction_id", event.TransactionID),
		zap.String("acknowledgment_id", ack.ID),
		zap.String("transaction_type", event.TransactionType))

	return w.processed.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// CacheWorker mirrors the latest compliance verdict into Redis whenever
// a recalculation lands. Refreshes are idempotent, so no processed-event
// bookkeeping is needed.
type CacheWorker struct {
	consumer *broker.Consumer
	cache    VerdictCache
	logger   *zap.Logger
}

// NewCacheWorker creates a new cache refresh worker
func NewCacheWorker(consumer *broker.Consumer, cache VerdictCache) *CacheWorker {
	return &CacheWorker{
		consumer: consumer,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

// Start consumes ComplianceRecalculated events until the context is
// cancelled.
func (w *CacheWorker) Start(ctx context.Context) error {
	handler := broker.NewEventHandler()
	handler.OnComplianceRecalculated(w.handleComplianceRecalculated)

	w.logger.Info("Compliance cache worker starting")
	return w.consumer.StartConsuming(ctx, handler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *CacheWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		w.logger.Warn("Error closing cache consumer", zap.Error(err))
	}
}

func (w *CacheWorker) handleComplianceRecalculated(ctx context.Context, event *models.ComplianceRecalculatedEvent) error {
	var err error
	if event.RVC == nil {
		// no verdict to serve; drop any stale cached one
		err = w.cache.InvalidateComplianceVerdict(ctx, event.ListingID)
	} else {
		err = w.cache.SetComplianceVerdict(ctx, event.ListingID, event.RVC, event.Qualifies)
	}
	if err != nil {
		w.logger.Warn("Failed to refresh compliance verdict cache",
			zap.String("listing_id", event.ListingID),
			zap.Error(err))
		return err
	}

	w.logger.Debug("Compliance verdict cache refreshed", zap.String("listing_id", event.ListingID))
	return nil
}
