package service

import (
	"context"
	"fmt"
	"time"

	"compliance-service/internal/errs"
	"compliance-service/internal/models"
	"compliance-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	certificateFormType  = "CBSA Form B232"
	preferenceCriterionB = "B"
	certificateStatement = "I certify that the goods described in this document qualify as originating " +
		"goods for purposes of preferential tariff treatment under CUSMA/USMCA."
	certificateStatus = "DRAFT - REQUIRES SIGNATURE"
)

// CertificateService projects a qualifying listing's compliance state
// into a certificate of origin draft. Read-only: issuing a certificate
// never mutates the listing or its ledger.
type CertificateService struct {
	listings ListingStore
	inputs   CostInputStore
	events   EventPublisher
	logger   *zap.Logger
}

// NewCertificateService creates a new certificate service
func NewCertificateService(listings ListingStore, inputs CostInputStore, events EventPublisher) *CertificateService {
	return &CertificateService{
		listings: listings,
		inputs:   inputs,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// GenerateCertificate builds a certificate of origin draft for a listing
// whose latest persisted verdict qualifies. A missing, disabled, unset,
// or failing verdict yields NotQualifiedError.
func (s *CertificateService) GenerateCertificate(ctx context.Context, listingID string) (*models.Certificate, error) {
	ctx, span := util.StartSpan(ctx, "CertificateService.GenerateCertificate")
	defer span.End()

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	block := listing.Compliance
	if block == nil || !block.Enabled || block.Qualifies == nil || !*block.Qualifies || block.RVC == nil {
		util.CertificatesRejectedTotal.Inc()
		return nil, &errs.NotQualifiedError{ListingID: listingID}
	}

	inputs, err := s.inputs.GetCostInputsByListingID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	lineItems := make([]models.CertificateLineItem, 0, len(inputs))
	for _, in := range inputs {
		lineItems = append(lineItems, models.CertificateLineItem{
			Name:    in.Name,
			Country: in.Country,
			Cost:    in.Cost,
		})
	}

	now := time.Now().UTC()
	cert := &models.Certificate{
		CertificateID: fmt.Sprintf("COO-%d", now.UnixMilli()),
		FormType:      certificateFormType,
		GeneratedAt:   now,
		Exporter:      listing.Seller,
		Product: models.CertificateProduct{
			Name:        listing.Name,
			HSCode:      listing.HSCode,
			Description: listing.Description,
		},
		OriginData: models.CertificateOrigin{
			RVC:                 *block.RVC,
			Method:              block.Method,
			PreferenceCriterion: preferenceCriterionB,
			Inputs:              lineItems,
		},
		Certification: models.CertStatement{
			Statement: certificateStatement,
			Status:    certificateStatus,
		},
	}

	util.CertificatesIssuedTotal.Inc()

	event := &models.CertificateIssuedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCertificateIssued,
			Timestamp: now,
		},
		CertificateID: cert.CertificateID,
		ListingID:     listingID,
		RVC:           *block.RVC,
	}
	if err := s.events.PublishCertificateIssued(ctx, event); err != nil {
		s.logger.Error("Failed to publish CertificateIssued event", zap.Error(err))
	}

	s.logger.Info("Certificate of origin drafted",
		zap.String("listing_id", listingID),
		zap.String("certificate_id", cert.CertificateID),
		zap.Int64("rvc", *block.RVC))

	return cert, nil
}
