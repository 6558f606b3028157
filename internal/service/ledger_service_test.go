package service

import (
	"context"
	"testing"
	"time"

	"compliance-service/internal/errs"
	"compliance-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(listings ...*models.Listing) (*LedgerService, *fakeListingStore, *fakeCostInputStore, *fakeEventPublisher) {
	listingStore := newFakeListingStore(listings...)
	inputStore := newFakeCostInputStore()
	publisher := &fakeEventPublisher{}
	svc := NewLedgerService(listingStore, inputStore, newFakeLocker(), publisher, 60, 10*time.Second)
	return svc, listingStore, inputStore, publisher
}

func testListing(id string) *models.Listing {
	return &models.Listing{
		ID:     id,
		Name:   "Maple Desk",
		HSCode: "9403.30",
		Seller: models.Party{Name: "Northwood Furniture"},
	}
}

func TestAddInputRecalculatesCompliance(t *testing.T) {
	svc, listings, _, publisher := newTestLedger(testListing("l1"))
	ctx := context.Background()

	created, err := svc.AddInput(ctx, "l1", &CostInputRequest{
		Name:     "maple lumber",
		Category: models.CategoryRawMaterial,
		Country:  models.CountryCanada,
		Cost:     "80",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = svc.AddInput(ctx, "l1", &CostInputRequest{
		Name:     "hardware",
		Category: models.CategoryRawMaterial,
		Country:  "CHN",
		Cost:     "20",
	})
	require.NoError(t, err)

	block := listings.listings["l1"].Compliance
	require.NotNil(t, block)
	require.NotNil(t, block.RVC)
	assert.Equal(t, int64(80), *block.RVC)
	assert.True(t, *block.Qualifies)

	// one recalculation event per mutation
	assert.Len(t, publisher.complianceEvents, 2)
}

func TestAddInputValidation(t *testing.T) {
	svc, _, _, _ := newTestLedger(testListing("l1"))
	ctx := context.Background()

	tests := []struct {
		name  string
		req   *CostInputRequest
		field string
	}{
		{"negative cost", &CostInputRequest{Name: "x", Category: models.CategoryOther, Country: "CAN", Cost: "-5"}, "cost"},
		{"malformed cost", &CostInputRequest{Name: "x", Category: models.CategoryOther, Country: "CAN", Cost: "12.x"}, "cost"},
		{"unknown category", &CostInputRequest{Name: "x", Category: "tariffs", Country: "CAN", Cost: "5"}, "category"},
		{"bad country code", &CostInputRequest{Name: "x", Category: models.CategoryOther, Country: "CA", Cost: "5"}, "country"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddInput(ctx, "l1", tt.req)
			var validationErr *errs.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestAddInputListingNotFound(t *testing.T) {
	svc, _, _, _ := newTestLedger()

	_, err := svc.AddInput(context.Background(), "missing", &CostInputRequest{
		Name: "x", Category: models.CategoryOther, Country: "CAN", Cost: "5",
	})

	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "listing", notFound.Kind)
}

func TestUpdateInputRecalculates(t *testing.T) {
	svc, listings, _, _ := newTestLedger(testListing("l1"))
	ctx := context.Background()

	created, err := svc.AddInput(ctx, "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "50",
	})
	require.NoError(t, err)
	_, err = svc.AddInput(ctx, "l1", &CostInputRequest{
		Name: "hardware", Category: models.CategoryRawMaterial, Country: "CHN", Cost: "50",
	})
	require.NoError(t, err)

	require.Equal(t, int64(50), *listings.listings["l1"].Compliance.RVC)

	newCountry := "CHN"
	_, err = svc.UpdateInput(ctx, created.ID, &CostInputUpdate{Country: &newCountry})
	require.NoError(t, err)

	block := listings.listings["l1"].Compliance
	assert.Equal(t, int64(0), *block.RVC)
	assert.False(t, *block.Qualifies)
}

func TestDeleteLastInputDisablesVerdict(t *testing.T) {
	svc, listings, _, _ := newTestLedger(testListing("l1"))
	ctx := context.Background()

	created, err := svc.AddInput(ctx, "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "50",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteInput(ctx, created.ID))

	block := listings.listings["l1"].Compliance
	require.NotNil(t, block)
	assert.False(t, block.Enabled)
	assert.Nil(t, block.RVC)
}

func TestDeleteInputNotFound(t *testing.T) {
	svc, _, _, _ := newTestLedger(testListing("l1"))

	err := svc.DeleteInput(context.Background(), "missing")

	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEnableTracking(t *testing.T) {
	svc, listings, _, _ := newTestLedger(testListing("l1"))

	block, err := svc.EnableTracking(context.Background(), "l1")
	require.NoError(t, err)

	assert.True(t, block.Enabled)
	assert.Nil(t, block.RVC)
	assert.Same(t, block, listings.listings["l1"].Compliance)
}

func TestGetComplianceIsReadOnly(t *testing.T) {
	svc, listings, _, publisher := newTestLedger(testListing("l1"))
	ctx := context.Background()

	_, err := svc.EnableTracking(ctx, "l1")
	require.NoError(t, err)

	// reading back an enabled-but-empty ledger must not rewrite the flag
	block, inputs, err := svc.GetCompliance(ctx, "l1")
	require.NoError(t, err)

	assert.True(t, block.Enabled)
	assert.Nil(t, block.RVC)
	assert.Empty(t, inputs)
	assert.True(t, listings.listings["l1"].Compliance.Enabled)
	assert.Empty(t, publisher.complianceEvents)
}

func TestGetComplianceUntrackedListing(t *testing.T) {
	svc, _, _, _ := newTestLedger(testListing("l1"))

	block, inputs, err := svc.GetCompliance(context.Background(), "l1")
	require.NoError(t, err)

	assert.False(t, block.Enabled)
	assert.Empty(t, inputs)
}

func TestGetComplianceServesCachedVerdict(t *testing.T) {
	listingStore := newFakeListingStore(testListing("l1"))
	locker := newFakeLocker()
	svc := NewLedgerService(listingStore, newFakeCostInputStore(), locker, &fakeEventPublisher{}, 60, 10*time.Second)
	ctx := context.Background()

	_, err := svc.AddInput(ctx, "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "80",
	})
	require.NoError(t, err)

	// a fresher cross-process verdict in the cache wins over the local row
	fresher := int64(75)
	qualifies := true
	require.NoError(t, locker.SetComplianceVerdict(ctx, "l1", &fresher, &qualifies))

	block, _, err := svc.GetCompliance(ctx, "l1")
	require.NoError(t, err)
	require.NotNil(t, block.RVC)
	assert.Equal(t, int64(75), *block.RVC)
}

func TestGetComplianceWarmsCacheOnMiss(t *testing.T) {
	listingStore := newFakeListingStore(testListing("l1"))
	locker := newFakeLocker()
	svc := NewLedgerService(listingStore, newFakeCostInputStore(), locker, &fakeEventPublisher{}, 60, 10*time.Second)
	ctx := context.Background()

	_, err := svc.AddInput(ctx, "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "80",
	})
	require.NoError(t, err)
	require.NoError(t, locker.InvalidateComplianceVerdict(ctx, "l1"))

	_, _, err = svc.GetCompliance(ctx, "l1")
	require.NoError(t, err)

	verdict, ok := locker.verdicts["l1"]
	require.True(t, ok)
	require.NotNil(t, verdict.rvc)
	assert.Equal(t, int64(100), *verdict.rvc)
}

func TestRecalculateInvalidatesCacheWhenVerdictUnset(t *testing.T) {
	listingStore := newFakeListingStore(testListing("l1"))
	locker := newFakeLocker()
	svc := NewLedgerService(listingStore, newFakeCostInputStore(), locker, &fakeEventPublisher{}, 60, 10*time.Second)
	ctx := context.Background()

	created, err := svc.AddInput(ctx, "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "80",
	})
	require.NoError(t, err)
	require.Contains(t, locker.verdicts, "l1")

	require.NoError(t, svc.DeleteInput(ctx, created.ID))

	// an empty ledger has no verdict; a stale cached one must not survive
	assert.NotContains(t, locker.verdicts, "l1")
}

func TestRecalculateSurvivesRedisOutage(t *testing.T) {
	listingStore := newFakeListingStore(testListing("l1"))
	locker := newFakeLocker()
	locker.err = assert.AnError
	svc := NewLedgerService(listingStore, newFakeCostInputStore(), locker, &fakeEventPublisher{}, 60, 10*time.Second)

	_, err := svc.AddInput(context.Background(), "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "50",
	})

	// Redis being down degrades to local serialization, never fails the write
	require.NoError(t, err)
	require.NotNil(t, listingStore.listings["l1"].Compliance.RVC)
}

func TestLockReleasedAfterMutation(t *testing.T) {
	listingStore := newFakeListingStore(testListing("l1"))
	locker := newFakeLocker()
	svc := NewLedgerService(listingStore, newFakeCostInputStore(), locker, &fakeEventPublisher{}, 60, 10*time.Second)

	_, err := svc.AddInput(context.Background(), "l1", &CostInputRequest{
		Name: "lumber", Category: models.CategoryRawMaterial, Country: models.CountryCanada, Cost: "50",
	})
	require.NoError(t, err)

	assert.Equal(t, locker.acquires, locker.releases)
	assert.Positive(t, locker.acquires)
}
