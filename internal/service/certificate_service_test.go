package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"compliance-service/internal/errs"
	"compliance-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qualifyingListing() *models.Listing {
	rvc := int64(80)
	qualifies := true
	now := time.Now().UTC()
	listing := deskListing()
	listing.Compliance = &models.ComplianceBlock{
		Enabled:      true,
		RVC:          &rvc,
		Qualifies:    &qualifies,
		Threshold:    60,
		Method:       ComplianceMethodTransactionValue,
		CalculatedAt: &now,
	}
	return listing
}

func TestGenerateCertificate(t *testing.T) {
	listing := qualifyingListing()
	inputStore := newFakeCostInputStore()
	publisher := &fakeEventPublisher{}
	svc := NewCertificateService(newFakeListingStore(listing), inputStore, publisher)
	ctx := context.Background()

	require.NoError(t, inputStore.CreateCostInput(ctx, &models.CostInput{
		ID: "i1", ListingID: "l1", Name: "maple lumber",
		Category: models.CategoryRawMaterial, Country: models.CountryCanada,
		Cost: decimal.RequireFromString("80"),
	}))

	cert, err := svc.GenerateCertificate(ctx, "l1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cert.CertificateID, "COO-"))
	assert.Equal(t, "CBSA Form B232", cert.FormType)
	assert.Equal(t, "Northwood Furniture", cert.Exporter.Name)
	assert.Equal(t, "Maple Desk", cert.Product.Name)
	assert.Equal(t, "9403.30", cert.Product.HSCode)
	assert.Equal(t, int64(80), cert.OriginData.RVC)
	assert.Equal(t, "B", cert.OriginData.PreferenceCriterion)
	require.Len(t, cert.OriginData.Inputs, 1)
	assert.Equal(t, "maple lumber", cert.OriginData.Inputs[0].Name)
	assert.Contains(t, cert.Certification.Statement, "CUSMA/USMCA")
	assert.Equal(t, "DRAFT - REQUIRES SIGNATURE", cert.Certification.Status)

	require.Len(t, publisher.certificateEvents, 1)
	assert.Equal(t, cert.CertificateID, publisher.certificateEvents[0].CertificateID)
}

func TestGenerateCertificateNotQualified(t *testing.T) {
	notQualified := qualifyingListing()
	*notQualified.Compliance.Qualifies = false

	unset := deskListing()
	unset.ID = "l2"
	unset.Compliance = &models.ComplianceBlock{Enabled: true}

	untracked := deskListing()
	untracked.ID = "l3"

	svc := NewCertificateService(newFakeListingStore(notQualified, unset, untracked), newFakeCostInputStore(), &fakeEventPublisher{})
	ctx := context.Background()

	for _, id := range []string{"l1", "l2", "l3"} {
		_, err := svc.GenerateCertificate(ctx, id)
		var notQualifiedErr *errs.NotQualifiedError
		require.ErrorAs(t, err, &notQualifiedErr, "listing %s", id)
		assert.Equal(t, id, notQualifiedErr.ListingID)
	}
}

func TestGenerateCertificateListingNotFound(t *testing.T) {
	svc := NewCertificateService(newFakeListingStore(), newFakeCostInputStore(), &fakeEventPublisher{})

	_, err := svc.GenerateCertificate(context.Background(), "missing")

	var notFound *errs.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
