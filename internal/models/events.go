package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeComplianceRecalculated = "COMPLIANCE_RECALCULATED"
	EventTypeTransactionCreated     = "EDI_TRANSACTION_CREATED"
	EventTypeCertificateIssued      = "CERTIFICATE_ISSUED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ComplianceRecalculatedEvent published after every ledger mutation once
// the listing's compliance block has been rewritten.
type ComplianceRecalculatedEvent struct {
	BaseEvent
	ListingID string          `json:"listing_id"`
	RVC       *int64          `json:"rvc"`
	Qualifies *bool           `json:"qualifies"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// TransactionCreatedEvent published when an EDI transaction is stored.
type TransactionCreatedEvent struct {
	BaseEvent
	TransactionID        string  `json:"transaction_id"`
	ListingID            string  `json:"listing_id"`
	TransactionType      string  `json:"transaction_type"`
	Direction            string  `json:"direction"`
	RelatedTransactionID *string `json:"related_transaction_id"`
	AIGenerated          bool    `json:"ai_generated"`
}

// CertificateIssuedEvent published when a certificate of origin is
// generated for a qualifying listing.
type CertificateIssuedEvent struct {
	BaseEvent
	CertificateID string `json:"certificate_id"`
	ListingID     string `json:"listing_id"`
	RVC           int64  `json:"rvc"`
}
