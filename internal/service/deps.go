package service

import (
	"context"
	"time"

	"compliance-service/internal/models"
)

// ListingStore is the listing collaborator surface the compliance engine
// consumes. The catalog itself (create/search/delete) lives elsewhere.
type ListingStore interface {
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
	UpdateListingCompliance(ctx context.Context, listingID string, block *models.ComplianceBlock) error
}

// CostInputStore persists the per-listing cost ledger
type CostInputStore interface {
	CreateCostInput(ctx context.Context, input *models.CostInput) error
	GetCostInputByID(ctx context.Context, id string) (*models.CostInput, error)
	GetCostInputsByListingID(ctx context.Context, listingID string) ([]models.CostInput, error)
	UpdateCostInput(ctx context.Context, input *models.CostInput) error
	DeleteCostInput(ctx context.Context, id string) (bool, error)
}

// TransactionStore persists EDI transactions
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.EdiTransaction) error
	GetTransactionByID(ctx context.Context, id string) (*models.EdiTransaction, error)
	GetTransactionsByListingID(ctx context.Context, listingID string) ([]models.EdiTransaction, error)
	UpdateTransaction(ctx context.Context, tx *models.EdiTransaction) error
	DeleteTransaction(ctx context.Context, id string) (bool, error)
}

// EventPublisher publishes domain events. Publish failures are logged by
// callers and never fail the triggering operation.
type EventPublisher interface {
	PublishComplianceRecalculated(ctx context.Context, event *models.ComplianceRecalculatedEvent) error
	PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error
	PublishCertificateIssued(ctx context.Context, event *models.CertificateIssuedEvent) error
}

// ComplianceLocker extends per-listing write serialization across
// processes and caches the latest verdict. Both are best effort; losing
// Redis degrades to in-process serialization plus Postgres reads only.
type ComplianceLocker interface {
	AcquireLock(ctx context.Context, listingID, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, listingID, token string) error
	SetComplianceVerdict(ctx context.Context, listingID string, rvc *int64, qualifies *bool) error
	GetComplianceVerdict(ctx context.Context, listingID string) (rvc *int64, qualifies *bool, found bool, err error)
	InvalidateComplianceVerdict(ctx context.Context, listingID string) error
}

// ContentGenerator is the optional AI drafting collaborator. Any error is
// a signal to fall back to basic generation, never a caller-visible
// failure.
type ContentGenerator interface {
	GenerateEDIContent(ctx context.Context, prompt string) (map[string]interface{}, error)
}
