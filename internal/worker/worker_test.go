package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"compliance-service/internal/models"
	"compliance-service/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memListings struct {
	listings map[string]*models.Listing
}

func (s *memListings) GetListingByID(_ context.Context, id string) (*models.Listing, error) {
	return s.listings[id], nil
}

func (s *memListings) UpdateListingCompliance(_ context.Context, listingID string, block *models.ComplianceBlock) error {
	listing, ok := s.listings[listingID]
	if !ok {
		return fmt.Errorf("listing not found: %s", listingID)
	}
	listing.Compliance = block
	return nil
}

type memTxs struct {
	txs map[string]*models.EdiTransaction
}

func (s *memTxs) CreateTransaction(_ context.Context, tx *models.EdiTransaction) error {
	cp := *tx
	s.txs[tx.ID] = &cp
	return nil
}

func (s *memTxs) GetTransactionByID(_ context.Context, id string) (*models.EdiTransaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (s *memTxs) GetTransactionsByListingID(_ context.Context, listingID string) ([]models.EdiTransaction, error) {
	var out []models.EdiTransaction
	for _, tx := range s.txs {
		if tx.ListingID == listingID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *memTxs) UpdateTransaction(_ context.Context, tx *models.EdiTransaction) error {
	cp := *tx
	s.txs[tx.ID] = &cp
	return nil
}

func (s *memTxs) DeleteTransaction(_ context.Context, id string) (bool, error) {
	if _, ok := s.txs[id]; !ok {
		return false, nil
	}
	delete(s.txs, id)
	return true, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishComplianceRecalculated(context.Context, *models.ComplianceRecalculatedEvent) error {
	return nil
}
func (nopPublisher) PublishTransactionCreated(context.Context, *models.TransactionCreatedEvent) error {
	return nil
}
func (nopPublisher) PublishCertificateIssued(context.Context, *models.CertificateIssuedEvent) error {
	return nil
}

type memProcessed struct {
	events map[string]string
}

func (s *memProcessed) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *memProcessed) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	s.events[eventID] = eventType
	return nil
}

func ackTestSetup(t *testing.T, enabled bool) (*AcknowledgmentWorker, *memTxs, *memProcessed, *models.EdiTransaction) {
	t.Helper()

	listings := &memListings{listings: map[string]*models.Listing{
		"l1": {
			ID:     "l1",
			Name:   "Maple Desk",
			Seller: models.Party{Name: "Northwood Furniture"},
			Pricing: models.Pricing{
				BasePrice: decimal.RequireFromString("700.00"),
				Unit:      "unit",
				Currency:  "CAD",
			},
		},
	}}
	txs := &memTxs{txs: map[string]*models.EdiTransaction{}}
	processed := &memProcessed{events: map[string]string{}}
	edi := service.NewEdiService(listings, txs, nopPublisher{}, nil)

	po, err := edi.Generate850(context.Background(), "l1", &service.Generate850Request{
		Buyer: models.Party{Name: "Prairie Office Supply"},
	})
	require.NoError(t, err)

	return NewAcknowledgmentWorker(nil, processed, edi, enabled), txs, processed, po
}

func countByType(txs *memTxs, transactionType string) int {
	n := 0
	for _, tx := range txs.txs {
		if tx.TransactionType == transactionType {
			n++
		}
	}
	return n
}

func TestAutoAcknowledgeInboundTransaction(t *testing.T) {
	w, txs, processed, po := ackTestSetup(t, true)

	event := &models.TransactionCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeTransactionCreated,
			Timestamp: time.Now(),
		},
		TransactionID:   po.ID,
		ListingID:       "l1",
		TransactionType: models.TypePurchaseOrder,
		Direction:       models.DirectionInbound,
	}

	require.NoError(t, w.handleTransactionCreated(context.Background(), event))

	assert.Equal(t, 1, countByType(txs, models.TypeFunctionalAck))
	assert.Contains(t, processed.events, "evt-1")

	// redelivery of the same event must not issue a second 997
	require.NoError(t, w.handleTransactionCreated(context.Background(), event))
	assert.Equal(t, 1, countByType(txs, models.TypeFunctionalAck))
}

func TestAutoAcknowledgeSkipsOutboundAndAcks(t *testing.T) {
	w, txs, _, po := ackTestSetup(t, true)

	events := []*models.TransactionCreatedEvent{
		{
			BaseEvent:       models.BaseEvent{EventID: "evt-out", EventType: models.EventTypeTransactionCreated},
			TransactionID:   po.ID,
			ListingID:       "l1",
			TransactionType: models.TypeInvoice,
			Direction:       models.DirectionOutbound,
		},
		{
			BaseEvent:       models.BaseEvent{EventID: "evt-997", EventType: models.EventTypeTransactionCreated},
			TransactionID:   po.ID,
			ListingID:       "l1",
			TransactionType: models.TypeFunctionalAck,
			Direction:       models.DirectionInbound,
		},
	}

	for _, event := range events {
		require.NoError(t, w.handleTransactionCreated(context.Background(), event))
	}

	assert.Equal(t, 0, countByType(txs, models.TypeFunctionalAck))
}

type memCache struct {
	verdicts map[string]*int64
}

func (c *memCache) SetComplianceVerdict(_ context.Context, listingID string, rvc *int64, _ *bool) error {
	c.verdicts[listingID] = rvc
	return nil
}

func (c *memCache) InvalidateComplianceVerdict(_ context.Context, listingID string) error {
	delete(c.verdicts, listingID)
	return nil
}

func TestCacheWorkerRefreshesVerdict(t *testing.T) {
	cache := &memCache{verdicts: map[string]*int64{}}
	w := NewCacheWorker(nil, cache)

	rvc := int64(80)
	qualifies := true
	require.NoError(t, w.handleComplianceRecalculated(context.Background(), &models.ComplianceRecalculatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeComplianceRecalculated},
		ListingID: "l1",
		RVC:       &rvc,
		Qualifies: &qualifies,
	}))

	require.Contains(t, cache.verdicts, "l1")
	assert.Equal(t, int64(80), *cache.verdicts["l1"])

	// a recalculation with no verdict drops the cached one
	require.NoError(t, w.handleComplianceRecalculated(context.Background(), &models.ComplianceRecalculatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeComplianceRecalculated},
		ListingID: "l1",
	}))
	assert.NotContains(t, cache.verdicts, "l1")
}

func TestAutoAcknowledgeDisabled(t *testing.T) {
	w, txs, _, po := ackTestSetup(t, false)

	event := &models.TransactionCreatedEvent{
		BaseEvent:       models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeTransactionCreated},
		TransactionID:   po.ID,
		ListingID:       "l1",
		TransactionType: models.TypePurchaseOrder,
		Direction:       models.DirectionInbound,
	}

	require.NoError(t, w.handleTransactionCreated(context.Background(), event))
	assert.Equal(t, 0, countByType(txs, models.TypeFunctionalAck))
}
