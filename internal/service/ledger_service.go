package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"compliance-service/internal/errs"
	"compliance-service/internal/models"
	"compliance-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService owns the per-listing cost input ledger and the derived
// compliance block. Every mutation recalculates the block before
// returning, so callers never observe a stale verdict after a completed
// write.
type LedgerService struct {
	listings  ListingStore
	inputs    CostInputStore
	locker    ComplianceLocker
	events    EventPublisher
	logger    *zap.Logger
	threshold int
	lockTTL   time.Duration

	// per-listing in-process serialization of ledger writes
	listingMu sync.Map
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	listings ListingStore,
	inputs CostInputStore,
	locker ComplianceLocker,
	events EventPublisher,
	thresholdPercent int,
	lockTTL time.Duration,
) *LedgerService {
	return &LedgerService{
		listings:  listings,
		inputs:    inputs,
		locker:    locker,
		events:    events,
		logger:    util.GetLogger(),
		threshold: thresholdPercent,
		lockTTL:   lockTTL,
	}
}

// CostInputRequest carries a new cost contribution. Cost is a decimal
// string so malformed values surface as validation errors rather than
// silent float coercion.
type CostInputRequest struct {
	Name                string `json:"name" binding:"required"`
	Category            string `json:"category" binding:"required"`
	Country             string `json:"country" binding:"required"`
	Cost                string `json:"cost" binding:"required"`
	SupplierDeclaration string `json:"supplier_declaration"`
}

// CostInputUpdate carries a partial update; nil fields are left unchanged.
type CostInputUpdate struct {
	Name                *string `json:"name"`
	Category            *string `json:"category"`
	Country             *string `json:"country"`
	Cost                *string `json:"cost"`
	SupplierDeclaration *string `json:"supplier_declaration"`
}

// AddInput stores a cost contribution and recalculates the owning
// listing's compliance block before returning.
func (s *LedgerService) AddInput(ctx context.Context, listingID string, req *CostInputRequest) (*models.CostInput, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.AddInput")
	defer span.End()

	start := time.Now()
	defer func() {
		util.RVCRecalculationLatency.Observe(time.Since(start).Seconds())
	}()

	cost, err := parseCost(req.Cost)
	if err != nil {
		util.LedgerMutationsFailed.WithLabelValues("invalid_cost").Inc()
		return nil, err
	}
	if err := validateCategory(req.Category); err != nil {
		util.LedgerMutationsFailed.WithLabelValues("invalid_category").Inc()
		return nil, err
	}
	if err := validateCountry(req.Country); err != nil {
		util.LedgerMutationsFailed.WithLabelValues("invalid_country").Inc()
		return nil, err
	}

	unlock := s.lockListing(ctx, listingID)
	defer unlock()

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		util.LedgerMutationsFailed.WithLabelValues("listing_not_found").Inc()
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	input := &models.CostInput{
		ID:        uuid.New().String(),
		ListingID: listingID,
		Name:      req.Name,
		Category:  req.Category,
		Country:   req.Country,
		Cost:      cost,
	}
	if req.SupplierDeclaration != "" {
		decl := req.SupplierDeclaration
		input.SupplierDeclaration = &decl
	}

	if err := s.inputs.CreateCostInput(ctx, input); err != nil {
		util.LedgerMutationsFailed.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create cost input: %w", err)
	}

	if _, err := s.recalculate(ctx, listingID); err != nil {
		return nil, err
	}

	util.LedgerMutationsTotal.WithLabelValues("add").Inc()
	s.logger.Info("Cost input added",
		zap.String("listing_id", listingID),
		zap.String("input_id", input.ID),
		zap.String("country", input.Country))

	return input, nil
}

// UpdateInput applies a partial update to a cost input and recalculates
// the owning listing's compliance block.
func (s *LedgerService) UpdateInput(ctx context.Context, inputID string, upd *CostInputUpdate) (*models.CostInput, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.UpdateInput")
	defer span.End()

	input, err := s.inputs.GetCostInputByID(ctx, inputID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost input: %w", err)
	}
	if input == nil {
		return nil, &errs.NotFoundError{Kind: "cost input", ID: inputID}
	}

	unlock := s.lockListing(ctx, input.ListingID)
	defer unlock()

	if upd.Cost != nil {
		cost, err := parseCost(*upd.Cost)
		if err != nil {
			util.LedgerMutationsFailed.WithLabelValues("invalid_cost").Inc()
			return nil, err
		}
		input.Cost = cost
	}
	if upd.Category != nil {
		if err := validateCategory(*upd.Category); err != nil {
			util.LedgerMutationsFailed.WithLabelValues("invalid_category").Inc()
			return nil, err
		}
		input.Category = *upd.Category
	}
	if upd.Country != nil {
		if err := validateCountry(*upd.Country); err != nil {
			util.LedgerMutationsFailed.WithLabelValues("invalid_country").Inc()
			return nil, err
		}
		input.Country = *upd.Country
	}
	if upd.Name != nil {
		input.Name = *upd.Name
	}
	if upd.SupplierDeclaration != nil {
		input.SupplierDeclaration = upd.SupplierDeclaration
	}

	if err := s.inputs.UpdateCostInput(ctx, input); err != nil {
		util.LedgerMutationsFailed.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to update cost input: %w", err)
	}

	if _, err := s.recalculate(ctx, input.ListingID); err != nil {
		return nil, err
	}

	util.LedgerMutationsTotal.WithLabelValues("update").Inc()
	return input, nil
}

// DeleteInput removes a cost input and recalculates the owning listing's
// compliance block.
func (s *LedgerService) DeleteInput(ctx context.Context, inputID string) error {
	ctx, span := util.StartSpan(ctx, "LedgerService.DeleteInput")
	defer span.End()

	input, err := s.inputs.GetCostInputByID(ctx, inputID)
	if err != nil {
		return fmt.Errorf("failed to load cost input: %w", err)
	}
	if input == nil {
		return &errs.NotFoundError{Kind: "cost input", ID: inputID}
	}

	unlock := s.lockListing(ctx, input.ListingID)
	defer unlock()

	deleted, err := s.inputs.DeleteCostInput(ctx, inputID)
	if err != nil {
		util.LedgerMutationsFailed.WithLabelValues("db_error").Inc()
		return fmt.Errorf("failed to delete cost input: %w", err)
	}
	if !deleted {
		return &errs.NotFoundError{Kind: "cost input", ID: inputID}
	}

	if _, err := s.recalculate(ctx, input.ListingID); err != nil {
		return err
	}

	util.LedgerMutationsTotal.WithLabelValues("delete").Inc()
	return nil
}

// GetCompliance returns a listing's current compliance block and ledger
// without recalculating anything: the mutation paths already guarantee
// the persisted block is fresh. The Redis verdict cache is consulted
// first for the verdict fields and warmed on a miss; the persisted block
// stays the authority for everything else.
func (s *LedgerService) GetCompliance(ctx context.Context, listingID string) (*models.ComplianceBlock, []models.CostInput, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.GetCompliance")
	defer span.End()

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	inputs, err := s.inputs.GetCostInputsByListingID(ctx, listingID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	block := listing.Compliance
	if block == nil {
		block = &models.ComplianceBlock{Enabled: false}
	}

	if s.locker != nil {
		rvc, qualifies, found, err := s.locker.GetComplianceVerdict(ctx, listingID)
		switch {
		case err != nil:
			s.logger.Warn("Failed to read compliance verdict cache",
				zap.String("listing_id", listingID),
				zap.Error(err))
		case found:
			cached := *block
			cached.RVC = rvc
			cached.Qualifies = qualifies
			block = &cached
		case block.RVC != nil:
			if err := s.locker.SetComplianceVerdict(ctx, listingID, block.RVC, block.Qualifies); err != nil {
				s.logger.Warn("Failed to warm compliance verdict cache",
					zap.String("listing_id", listingID),
					zap.Error(err))
			}
		}
	}

	return block, inputs, nil
}

// ListInputs returns the full ledger for a listing
func (s *LedgerService) ListInputs(ctx context.Context, listingID string) ([]models.CostInput, error) {
	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	return s.inputs.GetCostInputsByListingID(ctx, listingID)
}

// EnableTracking turns on compliance tracking for a listing before any
// cost inputs exist. The verdict stays unset until the first input.
func (s *LedgerService) EnableTracking(ctx context.Context, listingID string) (*models.ComplianceBlock, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.EnableTracking")
	defer span.End()

	unlock := s.lockListing(ctx, listingID)
	defer unlock()

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	block := &models.ComplianceBlock{Enabled: true}
	if err := s.listings.UpdateListingCompliance(ctx, listingID, block); err != nil {
		return nil, fmt.Errorf("failed to enable compliance tracking: %w", err)
	}

	if s.locker != nil {
		if err := s.locker.InvalidateComplianceVerdict(ctx, listingID); err != nil {
			s.logger.Warn("Failed to drop stale compliance verdict cache",
				zap.String("listing_id", listingID),
				zap.Error(err))
		}
	}

	return block, nil
}

// Recalculate recomputes and persists the compliance block from the
// current ledger. Exposed for manual refresh; every mutation already
// calls it internally.
func (s *LedgerService) Recalculate(ctx context.Context, listingID string) (*models.ComplianceBlock, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Recalculate")
	defer span.End()

	unlock := s.lockListing(ctx, listingID)
	defer unlock()

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	return s.recalculate(ctx, listingID)
}

// recalculate must run with the listing's write lock held.
func (s *LedgerService) recalculate(ctx context.Context, listingID string) (*models.ComplianceBlock, error) {
	inputs, err := s.inputs.GetCostInputsByListingID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	block := CalculateRVC(inputs, s.threshold, time.Now().UTC())

	if err := s.listings.UpdateListingCompliance(ctx, listingID, block); err != nil {
		return nil, fmt.Errorf("failed to persist compliance block: %w", err)
	}

	util.RVCRecalculationsTotal.Inc()

	if s.locker != nil {
		var cacheErr error
		if block.RVC == nil {
			// no verdict to serve; an empty cache entry would shadow it
			cacheErr = s.locker.InvalidateComplianceVerdict(ctx, listingID)
		} else {
			cacheErr = s.locker.SetComplianceVerdict(ctx, listingID, block.RVC, block.Qualifies)
		}
		if cacheErr != nil {
			s.logger.Warn("Failed to refresh compliance verdict cache",
				zap.String("listing_id", listingID),
				zap.Error(cacheErr))
		}
	}

	totalCost := decimal.Zero
	if block.Breakdown != nil {
		totalCost = block.Breakdown.TotalCost
	}
	event := &models.ComplianceRecalculatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeComplianceRecalculated,
			Timestamp: time.Now(),
		},
		ListingID: listingID,
		RVC:       block.RVC,
		Qualifies: block.Qualifies,
		TotalCost: totalCost,
	}
	if err := s.events.PublishComplianceRecalculated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ComplianceRecalculated event", zap.Error(err))
	}

	return block, nil
}

// lockListing serializes ledger writes for one listing. The in-process
// mutex is authoritative; the Redis lock extends serialization across
// processes and degrades to local-only when Redis is unreachable.
func (s *LedgerService) lockListing(ctx context.Context, listingID string) func() {
	muIface, _ := s.listingMu.LoadOrStore(listingID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()

	if s.locker == nil {
		return mu.Unlock
	}

	token := uuid.New().String()
	acquired := false
	for attempt := 0; attempt < 20; attempt++ {
		ok, err := s.locker.AcquireLock(ctx, listingID, token, s.lockTTL)
		if err != nil {
			s.logger.Warn("Redis lock unavailable, serializing locally",
				zap.String("listing_id", listingID),
				zap.Error(err))
			break
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			attempt = 20
		case <-time.After(100 * time.Millisecond):
		}
	}

	return func() {
		if acquired {
			if err := s.locker.ReleaseLock(context.Background(), listingID, token); err != nil {
				s.logger.Warn("Failed to release listing lock",
					zap.String("listing_id", listingID),
					zap.Error(err))
			}
		}
		mu.Unlock()
	}
}

func parseCost(raw string) (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &errs.ValidationError{Field: "cost", Reason: fmt.Sprintf("not a valid decimal: %q", raw)}
	}
	if cost.IsNegative() {
		return decimal.Zero, &errs.ValidationError{Field: "cost", Reason: "must be non-negative"}
	}
	return cost, nil
}

func validateCategory(category string) error {
	for _, c := range models.CostInputCategories {
		if category == c {
			return nil
		}
	}
	return &errs.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
}

func validateCountry(country string) error {
	if len(country) != 3 {
		return &errs.ValidationError{Field: "country", Reason: "must be a 3-letter country code"}
	}
	return nil
}
