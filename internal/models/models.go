package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Cost input categories
const (
	CategoryRawMaterial = "raw_material"
	CategoryDirectLabor = "direct_labor"
	CategoryOverhead    = "overhead"
	CategoryPackaging   = "packaging"
	CategoryOther       = "other"
)

// CostInputCategories lists the accepted cost contribution categories.
var CostInputCategories = []string{
	CategoryRawMaterial,
	CategoryDirectLabor,
	CategoryOverhead,
	CategoryPackaging,
	CategoryOther,
}

// Qualifying origin countries under CUSMA/NAFTA. Any other country code
// buckets into OTHER.
const (
	CountryCanada = "CAN"
	CountryUSA    = "USA"
	CountryMexico = "MEX"
)

// EDI transaction types
const (
	TypePurchaseOrder  = "850"
	TypeAcknowledgment = "855"
	TypeShipNotice     = "856"
	TypeInvoice        = "810"
	TypePaymentOrder   = "820"
	TypeFunctionalAck  = "997"
)

// Transaction directions
const (
	DirectionInbound       = "inbound"
	DirectionOutbound      = "outbound"
	DirectionBidirectional = "bidirectional"
)

// Transaction statuses
const (
	StatusDraft   = "draft"
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Acknowledgment statuses
const (
	AckAccepted           = "accepted"
	AckRejected           = "rejected"
	AckPartial            = "partial"
	AckAcceptedWithErrors = "accepted_with_errors"
)

// TransactionTypeInfo describes one ANSI X12 document type as modeled here.
type TransactionTypeInfo struct {
	Name      string
	Direction string
}

// TransactionTypes is the set of supported document types. The direction is
// the default for documents of that type; 997 flows both ways.
var TransactionTypes = map[string]TransactionTypeInfo{
	TypePurchaseOrder:  {Name: "Purchase Order", Direction: DirectionInbound},
	TypeAcknowledgment: {Name: "Purchase Order Acknowledgment", Direction: DirectionOutbound},
	TypeShipNotice:     {Name: "Ship Notice/Manifest", Direction: DirectionOutbound},
	TypeInvoice:        {Name: "Invoice", Direction: DirectionOutbound},
	TypePaymentOrder:   {Name: "Payment Order/Remittance Advice", Direction: DirectionInbound},
	TypeFunctionalAck:  {Name: "Functional Acknowledgment", Direction: DirectionBidirectional},
}

// Party identifies one trading partner on a commercial document.
type Party struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// IsZero reports whether no party information is present.
func (p Party) IsZero() bool {
	return p == Party{}
}

func (p Party) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *Party) Scan(src interface{}) error {
	return scanJSON(p, src)
}

// Pricing is the listing's current price block.
type Pricing struct {
	BasePrice decimal.Decimal `json:"basePrice"`
	Unit      string          `json:"unit"`
	Currency  string          `json:"currency"`
}

func (p Pricing) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Pricing) Scan(src interface{}) error {
	return scanJSON(p, src)
}

// Listing is the marketplace record the compliance engine consumes. Only
// the Compliance block is owned (and written) by this service.
type Listing struct {
	ID          string           `db:"id" json:"id"`
	Name        string           `db:"name" json:"name"`
	Description string           `db:"description" json:"description"`
	HSCode      string           `db:"hs_code" json:"hs_code"`
	Seller      Party            `db:"seller" json:"seller"`
	Pricing     Pricing          `db:"pricing" json:"pricing"`
	Compliance  *ComplianceBlock `db:"compliance" json:"compliance"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// ComplianceBlock is the derived origin-qualification verdict cached on a
// listing. RVC and Qualifies are nil until the ledger has at least one
// cost input.
type ComplianceBlock struct {
	Enabled      bool                 `json:"enabled"`
	RVC          *int64               `json:"rvc"`
	Qualifies    *bool                `json:"qualifies"`
	Threshold    int                  `json:"threshold,omitempty"`
	Method       string               `json:"method,omitempty"`
	Breakdown    *ComplianceBreakdown `json:"breakdown"`
	CalculatedAt *time.Time           `json:"calculatedAt"`
}

func (b ComplianceBlock) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *ComplianceBlock) Scan(src interface{}) error {
	return scanJSON(b, src)
}

// ComplianceBreakdown holds per-origin percentages. Each percentage is
// rounded independently, so the four buckets may not sum to exactly 100.
type ComplianceBreakdown struct {
	Canada         int64           `json:"canada"`
	USA            int64           `json:"usa"`
	Mexico         int64           `json:"mexico"`
	Other          int64           `json:"other"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	QualifyingCost decimal.Decimal `json:"qualifyingCost"`
}

// CostInput is one cost contribution in a listing's origin ledger.
type CostInput struct {
	ID                  string          `db:"id" json:"id"`
	ListingID           string          `db:"listing_id" json:"listing_id"`
	Name                string          `db:"name" json:"name"`
	Category            string          `db:"category" json:"category"`
	Country             string          `db:"country" json:"country"`
	Cost                decimal.Decimal `db:"cost" json:"cost"`
	SupplierDeclaration *string         `db:"supplier_declaration" json:"supplier_declaration,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// TransactionItem is one line item on a commercial document. Which fields
// are populated depends on the document type: an 850 carries the ordered
// quantity and price, an 855 adds acknowledgment fields, an 856 shipping
// fields, an 810 invoicing fields and an 820 remittance fields.
type TransactionItem struct {
	ItemNumber           string           `json:"itemNumber"`
	Description          string           `json:"description,omitempty"`
	Quantity             int              `json:"quantity,omitempty"`
	Unit                 string           `json:"unit,omitempty"`
	UnitPrice            decimal.Decimal  `json:"unitPrice"`
	Currency             string           `json:"currency,omitempty"`
	TotalPrice           *decimal.Decimal `json:"totalPrice,omitempty"`
	AcknowledgedQuantity int              `json:"acknowledgedQuantity,omitempty"`
	Status               string           `json:"status,omitempty"`
	ExpectedShipDate     string           `json:"expectedShipDate,omitempty"`
	ShippedQuantity      int              `json:"shippedQuantity,omitempty"`
	TrackingNumber       string           `json:"trackingNumber,omitempty"`
	Carrier              string           `json:"carrier,omitempty"`
	InvoicedQuantity     int              `json:"invoicedQuantity,omitempty"`
	LineTotal            *decimal.Decimal `json:"lineTotal,omitempty"`
	InvoiceLineNumber    string           `json:"invoiceLineNumber,omitempty"`
	AmountPaid           *decimal.Decimal `json:"amountPaid,omitempty"`
}

// TransactionItems is the JSONB items column.
type TransactionItems []TransactionItem

func (t TransactionItems) Value() (driver.Value, error) {
	if t == nil {
		return json.Marshal([]TransactionItem{})
	}
	return json.Marshal(t)
}

func (t *TransactionItems) Scan(src interface{}) error {
	return scanJSON(t, src)
}

// TransactionDetails holds the type-specific scalar payload of a document.
type TransactionDetails struct {
	OrderDate                   *time.Time       `json:"orderDate,omitempty"`
	RequestedShipDate           string           `json:"requestedShipDate,omitempty"`
	ShippingAddress             string           `json:"shippingAddress,omitempty"`
	BillingAddress              string           `json:"billingAddress,omitempty"`
	Notes                       string           `json:"notes,omitempty"`
	AcknowledgmentDate          *time.Time       `json:"acknowledgmentDate,omitempty"`
	AcknowledgmentStatus        string           `json:"acknowledgmentStatus,omitempty"`
	ShipmentDate                *time.Time       `json:"shipmentDate,omitempty"`
	Carrier                     string           `json:"carrier,omitempty"`
	TrackingNumber              string           `json:"trackingNumber,omitempty"`
	InvoiceNumber               string           `json:"invoiceNumber,omitempty"`
	InvoiceDate                 *time.Time       `json:"invoiceDate,omitempty"`
	Subtotal                    *decimal.Decimal `json:"subtotal,omitempty"`
	Tax                         *decimal.Decimal `json:"tax,omitempty"`
	Shipping                    *decimal.Decimal `json:"shipping,omitempty"`
	Total                       *decimal.Decimal `json:"total,omitempty"`
	PaymentTerms                string           `json:"paymentTerms,omitempty"`
	DueDate                     string           `json:"dueDate,omitempty"`
	PaymentAmount               *decimal.Decimal `json:"paymentAmount,omitempty"`
	PaymentDate                 *time.Time       `json:"paymentDate,omitempty"`
	PaymentMethod               string           `json:"paymentMethod,omitempty"`
	ReferenceNumber             string           `json:"referenceNumber,omitempty"`
	AcknowledgedTransactionType string           `json:"acknowledgedTransactionType,omitempty"`
}

func (d TransactionDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *TransactionDetails) Scan(src interface{}) error {
	return scanJSON(d, src)
}

// EdiTransaction is one typed commercial document. RelatedTransactionID is
// the immutable back-reference to the predecessor in the document chain;
// the chain forms a forest rooted at 850 documents.
type EdiTransaction struct {
	ID                   string             `db:"id" json:"id"`
	ListingID            string             `db:"listing_id" json:"listing_id"`
	TransactionType      string             `db:"transaction_type" json:"transaction_type"`
	Direction            string             `db:"direction" json:"direction"`
	RelatedTransactionID *string            `db:"related_transaction_id" json:"related_transaction_id"`
	Buyer                Party              `db:"buyer" json:"buyer"`
	Seller               Party              `db:"seller" json:"seller"`
	Items                TransactionItems   `db:"items" json:"items"`
	Details              TransactionDetails `db:"details" json:"details"`
	Status               string             `db:"status" json:"status"`
	AIGenerated          bool               `db:"ai_generated" json:"ai_generated"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// Workflow groups a listing's transactions into the canonical
// order-to-payment pipeline. Each single-valued slot holds the first
// transaction found of that type.
type Workflow struct {
	PurchaseOrder   *EdiTransaction  `json:"purchaseOrder"`
	Acknowledgment  *EdiTransaction  `json:"acknowledgment"`
	ShipNotice      *EdiTransaction  `json:"shipNotice"`
	Invoice         *EdiTransaction  `json:"invoice"`
	Payment         *EdiTransaction  `json:"payment"`
	Acknowledgments []EdiTransaction `json:"acknowledgments"`
}

// Certificate is a Certificate-of-Origin projection for a qualifying
// listing. Never persisted.
type Certificate struct {
	CertificateID string            `json:"certificateId"`
	FormType      string            `json:"formType"`
	GeneratedAt   time.Time         `json:"generatedAt"`
	Exporter      Party             `json:"exporter"`
	Product       CertificateProduct `json:"product"`
	OriginData    CertificateOrigin  `json:"originData"`
	Certification CertStatement      `json:"certification"`
}

type CertificateProduct struct {
	Name        string `json:"name"`
	HSCode      string `json:"hsCode"`
	Description string `json:"description"`
}

type CertificateOrigin struct {
	RVC                 int64                 `json:"rvc"`
	Method              string                `json:"method"`
	PreferenceCriterion string                `json:"preferenceCriterion"`
	Inputs              []CertificateLineItem `json:"inputs"`
}

type CertificateLineItem struct {
	Name    string          `json:"name"`
	Country string          `json:"country"`
	Cost    decimal.Decimal `json:"cost"`
}

type CertStatement struct {
	Statement string `json:"statement"`
	Status    string `json:"status"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

func scanJSON(dst interface{}, src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
