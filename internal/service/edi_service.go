package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"compliance-service/internal/errs"
	"compliance-service/internal/models"
	"compliance-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultUnit         = "unit"
	defaultCurrency     = "CAD"
	defaultPaymentTerms = "Net 30"
	defaultPayMethod    = "ACH"
)

// EdiService owns the EDI transaction store and the document chain: each
// derivation reads its predecessor, copies what the successor document
// restates, and records the predecessor reference.
type EdiService struct {
	listings ListingStore
	txs      TransactionStore
	events   EventPublisher
	ai       ContentGenerator
	logger   *zap.Logger
}

// NewEdiService creates a new EDI service. The content generator may be
// nil; drafting then always uses basic generation.
func NewEdiService(listings ListingStore, txs TransactionStore, events EventPublisher, ai ContentGenerator) *EdiService {
	return &EdiService{
		listings: listings,
		txs:      txs,
		events:   events,
		ai:       ai,
		logger:   util.GetLogger(),
	}
}

// CreateTransactionRequest carries a raw document supplied by the caller
// rather than derived from a predecessor.
type CreateTransactionRequest struct {
	ListingID            string                    `json:"listing_id" binding:"required"`
	TransactionType      string                    `json:"transaction_type" binding:"required"`
	Direction            string                    `json:"direction"`
	RelatedTransactionID *string                   `json:"related_transaction_id"`
	Buyer                models.Party              `json:"buyer"`
	Seller               models.Party              `json:"seller"`
	Items                models.TransactionItems   `json:"items"`
	Details              models.TransactionDetails `json:"details"`
	Status               string                    `json:"status"`
}

// UpdateTransactionRequest is a partial update. Type, listing and
// predecessor reference are immutable once a document exists.
type UpdateTransactionRequest struct {
	Buyer   *models.Party              `json:"buyer"`
	Seller  *models.Party              `json:"seller"`
	Items   *models.TransactionItems   `json:"items"`
	Details *models.TransactionDetails `json:"details"`
	Status  *string                    `json:"status"`
}

// OrderDetails is the caller-supplied portion of a purchase order.
type OrderDetails struct {
	Quantity          int    `json:"quantity"`
	RequestedShipDate string `json:"requestedShipDate"`
	ShippingAddress   string `json:"shippingAddress"`
	BillingAddress    string `json:"billingAddress"`
	Notes             string `json:"notes"`
}

// Generate850Request opens a new document chain for a listing.
type Generate850Request struct {
	Buyer        models.Party `json:"buyer"`
	OrderDetails OrderDetails `json:"orderDetails"`
}

// ItemAcknowledgment overrides one line item's acknowledgment.
type ItemAcknowledgment struct {
	Quantity         int    `json:"quantity"`
	Status           string `json:"status"`
	ExpectedShipDate string `json:"expectedShipDate"`
}

// Generate855Request acknowledges a purchase order. Items is keyed by
// item number; absent items are acknowledged in full.
type Generate855Request struct {
	Status string                        `json:"status"`
	Items  map[string]ItemAcknowledgment `json:"items"`
	Notes  string                        `json:"notes"`
}

// ItemShipment overrides one line item's shipment.
type ItemShipment struct {
	Quantity       int    `json:"quantity"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

// Generate856Request announces a shipment against an acknowledgment.
type Generate856Request struct {
	ShipmentDate    *time.Time              `json:"shipmentDate"`
	Carrier         string                  `json:"carrier"`
	TrackingNumber  string                  `json:"trackingNumber"`
	ShippingAddress string                  `json:"shippingAddress"`
	Items           map[string]ItemShipment `json:"items"`
}

// Generate810Request invoices a shipment. Tax and Shipping are decimal
// strings; empty means zero.
type Generate810Request struct {
	InvoiceNumber string `json:"invoiceNumber"`
	Tax           string `json:"tax"`
	Shipping      string `json:"shipping"`
	PaymentTerms  string `json:"paymentTerms"`
	DueDate       string `json:"dueDate"`
}

// ItemPayment overrides one line item's remittance amount.
type ItemPayment struct {
	Amount string `json:"amount"`
}

// Generate820Request remits payment against an invoice. Amount is a
// decimal string; empty means the invoice total.
type Generate820Request struct {
	Amount          string                 `json:"amount"`
	PaymentDate     *time.Time             `json:"paymentDate"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ReferenceNumber string                 `json:"referenceNumber"`
	Items           map[string]ItemPayment `json:"items"`
}

// Generate997Request acknowledges receipt of any non-997 document.
type Generate997Request struct {
	Status string `json:"status"`
}

// DraftContext carries the business context handed to the drafting
// collaborator. Only whitelisted fields of the model's output are
// trusted; everything else comes from the listing.
type DraftContext struct {
	Buyer        *models.Party `json:"buyer,omitempty"`
	OrderDetails *OrderDetails `json:"orderDetails,omitempty"`
	Notes        string        `json:"notes,omitempty"`
}

// DraftRequest asks for an AI-assisted draft of a document.
type DraftRequest struct {
	TransactionType string       `json:"transaction_type"`
	Context         DraftContext `json:"context"`
}

// ValidationResult reports structural problems with a document. It is a
// report, not an error: an invalid document yields Valid=false, not a
// failed call.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// CreateTransaction stores a caller-supplied document after structural
// validation.
func (s *EdiService) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.CreateTransaction")
	defer span.End()

	typeInfo, ok := models.TransactionTypes[req.TransactionType]
	if !ok {
		util.TransactionsFailedTotal.WithLabelValues("unknown_type").Inc()
		return nil, &errs.ValidationError{Field: "transaction_type", Reason: fmt.Sprintf("unknown transaction type %q", req.TransactionType)}
	}

	listing, err := s.listings.GetListingByID(ctx, req.ListingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		util.TransactionsFailedTotal.WithLabelValues("listing_not_found").Inc()
		return nil, &errs.NotFoundError{Kind: "listing", ID: req.ListingID}
	}

	if req.RelatedTransactionID != nil {
		related, err := s.txs.GetTransactionByID(ctx, *req.RelatedTransactionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load related transaction: %w", err)
		}
		if related == nil {
			return nil, &errs.NotFoundError{Kind: "transaction", ID: *req.RelatedTransactionID}
		}
	}

	direction := req.Direction
	if direction == "" {
		direction = typeInfo.Direction
	}
	status := req.Status
	if status == "" {
		status = models.StatusDraft
	}
	if err := validateStatus(status); err != nil {
		return nil, err
	}

	tx := &models.EdiTransaction{
		ListingID:            req.ListingID,
		TransactionType:      req.TransactionType,
		Direction:            direction,
		RelatedTransactionID: req.RelatedTransactionID,
		Buyer:                req.Buyer,
		Seller:               req.Seller,
		Items:                req.Items,
		Details:              req.Details,
		Status:               status,
	}

	if result := s.ValidateTransaction(tx); !result.Valid {
		util.TransactionsFailedTotal.WithLabelValues("invalid").Inc()
		return nil, &errs.ValidationError{Field: "transaction", Reason: result.Errors[0]}
	}

	return s.create(ctx, tx)
}

// GetTransaction returns a document by ID
func (s *EdiService) GetTransaction(ctx context.Context, id string) (*models.EdiTransaction, error) {
	tx, err := s.txs.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx == nil {
		return nil, &errs.NotFoundError{Kind: "transaction", ID: id}
	}
	return tx, nil
}

// ListTransactions returns a listing's documents in creation order
func (s *EdiService) ListTransactions(ctx context.Context, listingID string) ([]models.EdiTransaction, error) {
	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}
	return s.txs.GetTransactionsByListingID(ctx, listingID)
}

// UpdateTransaction applies a partial update. Document type, owning
// listing and predecessor reference never change.
func (s *EdiService) UpdateTransaction(ctx context.Context, id string, upd *UpdateTransactionRequest) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.UpdateTransaction")
	defer span.End()

	tx, err := s.txs.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx == nil {
		return nil, &errs.NotFoundError{Kind: "transaction", ID: id}
	}

	if upd.Buyer != nil {
		tx.Buyer = *upd.Buyer
	}
	if upd.Seller != nil {
		tx.Seller = *upd.Seller
	}
	if upd.Items != nil {
		tx.Items = *upd.Items
	}
	if upd.Details != nil {
		tx.Details = *upd.Details
	}
	if upd.Status != nil {
		if err := validateStatus(*upd.Status); err != nil {
			return nil, err
		}
		tx.Status = *upd.Status
	}

	if err := s.txs.UpdateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return tx, nil
}

// DeleteTransaction removes a document. Successors that reference it
// keep their copied content; only the predecessor link is severed.
func (s *EdiService) DeleteTransaction(ctx context.Context, id string) error {
	deleted, err := s.txs.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if !deleted {
		return &errs.NotFoundError{Kind: "transaction", ID: id}
	}
	return nil
}

// Generate850 opens a new document chain with a purchase order for a
// listing. Item pricing snapshots the listing's current price block.
func (s *EdiService) Generate850(ctx context.Context, listingID string, req *Generate850Request) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.Generate850")
	defer span.End()

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		util.TransactionsFailedTotal.WithLabelValues("listing_not_found").Inc()
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}
	if req.Buyer.IsZero() {
		util.TransactionsFailedTotal.WithLabelValues("invalid").Inc()
		return nil, &errs.ValidationError{Field: "buyer", Reason: "buyer information is required"}
	}

	tx := s.buildPurchaseOrder(listing, req.Buyer, req.OrderDetails)
	tx.Status = models.StatusPending
	return s.create(ctx, tx)
}

// Generate855 acknowledges a purchase order. Line items absent from the
// request are acknowledged in full.
func (s *EdiService) Generate855(ctx context.Context, poID string, req *Generate855Request) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.Generate855")
	defer span.End()

	po, err := s.loadPredecessor(ctx, poID, models.TypePurchaseOrder)
	if err != nil {
		return nil, err
	}

	ackStatus := req.Status
	if ackStatus == "" {
		ackStatus = models.AckAccepted
	}
	if err := validateAckStatus(ackStatus); err != nil {
		return nil, err
	}

	items := make(models.TransactionItems, 0, len(po.Items))
	for _, item := range po.Items {
		ack := models.TransactionItem{
			ItemNumber:           item.ItemNumber,
			Description:          item.Description,
			Quantity:             item.Quantity,
			Unit:                 item.Unit,
			UnitPrice:            item.UnitPrice,
			Currency:             item.Currency,
			AcknowledgedQuantity: item.Quantity,
			Status:               models.AckAccepted,
		}
		if override, ok := req.Items[item.ItemNumber]; ok {
			if override.Quantity > 0 {
				ack.AcknowledgedQuantity = override.Quantity
			}
			if override.Status != "" {
				if err := validateAckStatus(override.Status); err != nil {
					return nil, err
				}
				ack.Status = override.Status
			}
			ack.ExpectedShipDate = override.ExpectedShipDate
		}
		items = append(items, ack)
	}

	now := time.Now().UTC()
	tx := &models.EdiTransaction{
		ListingID:            po.ListingID,
		TransactionType:      models.TypeAcknowledgment,
		Direction:            models.DirectionOutbound,
		RelatedTransactionID: &po.ID,
		Buyer:                po.Buyer,
		Seller:               po.Seller,
		Items:                items,
		Details: models.TransactionDetails{
			AcknowledgmentDate:   &now,
			AcknowledgmentStatus: ackStatus,
			Notes:                req.Notes,
		},
		Status: models.StatusSent,
	}
	return s.create(ctx, tx)
}

// Generate856 announces a shipment against an acknowledgment. Line items
// absent from the request ship their full acknowledged quantity.
func (s *EdiService) Generate856(ctx context.Context, ackID string, req *Generate856Request) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.Generate856")
	defer span.End()

	ack, err := s.loadPredecessor(ctx, ackID, models.TypeAcknowledgment)
	if err != nil {
		return nil, err
	}

	items := make(models.TransactionItems, 0, len(ack.Items))
	for _, item := range ack.Items {
		shipped := models.TransactionItem{
			ItemNumber:      item.ItemNumber,
			Description:     item.Description,
			Unit:            item.Unit,
			UnitPrice:       item.UnitPrice,
			Currency:        item.Currency,
			ShippedQuantity: item.AcknowledgedQuantity,
			TrackingNumber:  req.TrackingNumber,
			Carrier:         req.Carrier,
		}
		if override, ok := req.Items[item.ItemNumber]; ok {
			if override.Quantity > 0 {
				shipped.ShippedQuantity = override.Quantity
			}
			if override.TrackingNumber != "" {
				shipped.TrackingNumber = override.TrackingNumber
			}
			if override.Carrier != "" {
				shipped.Carrier = override.Carrier
			}
		}
		items = append(items, shipped)
	}

	shipmentDate := time.Now().UTC()
	if req.ShipmentDate != nil {
		shipmentDate = *req.ShipmentDate
	}

	tx := &models.EdiTransaction{
		ListingID:            ack.ListingID,
		TransactionType:      models.TypeShipNotice,
		Direction:            models.DirectionOutbound,
		RelatedTransactionID: &ack.ID,
		Buyer:                ack.Buyer,
		Seller:               ack.Seller,
		Items:                items,
		Details: models.TransactionDetails{
			ShipmentDate:    &shipmentDate,
			Carrier:         req.Carrier,
			TrackingNumber:  req.TrackingNumber,
			ShippingAddress: req.ShippingAddress,
		},
		Status: models.StatusDraft,
	}
	return s.create(ctx, tx)
}

// Generate810 invoices a shipment. The subtotal is recomputed from
// shipped quantities and unit prices rather than copied, so partial
// shipments invoice only what actually shipped.
func (s *EdiService) Generate810(ctx context.Context, shipID string, req *Generate810Request) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.Generate810")
	defer span.End()

	ship, err := s.loadPredecessor(ctx, shipID, models.TypeShipNotice)
	if err != nil {
		return nil, err
	}

	tax, err := parseAmount(req.Tax, "tax")
	if err != nil {
		return nil, err
	}
	shipping, err := parseAmount(req.Shipping, "shipping")
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	items := make(models.TransactionItems, 0, len(ship.Items))
	for _, item := range ship.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.ShippedQuantity)))
		subtotal = subtotal.Add(lineTotal)
		lt := lineTotal
		items = append(items, models.TransactionItem{
			ItemNumber:        item.ItemNumber,
			Description:       item.Description,
			Unit:              item.Unit,
			UnitPrice:         item.UnitPrice,
			Currency:          item.Currency,
			InvoicedQuantity:  item.ShippedQuantity,
			LineTotal:         &lt,
			InvoiceLineNumber: item.ItemNumber,
		})
	}

	total := subtotal.Add(tax).Add(shipping)

	now := time.Now().UTC()
	invoiceNumber := req.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = fmt.Sprintf("INV-%d", now.UnixMilli())
	}
	paymentTerms := req.PaymentTerms
	if paymentTerms == "" {
		paymentTerms = defaultPaymentTerms
	}

	tx := &models.EdiTransaction{
		ListingID:            ship.ListingID,
		TransactionType:      models.TypeInvoice,
		Direction:            models.DirectionOutbound,
		RelatedTransactionID: &ship.ID,
		Buyer:                ship.Buyer,
		Seller:               ship.Seller,
		Items:                items,
		Details: models.TransactionDetails{
			InvoiceNumber: invoiceNumber,
			InvoiceDate:   &now,
			Subtotal:      &subtotal,
			Tax:           &tax,
			Shipping:      &shipping,
			Total:         &total,
			PaymentTerms:  paymentTerms,
			DueDate:       req.DueDate,
		},
		Status: models.StatusDraft,
	}
	return s.create(ctx, tx)
}

// Generate820 remits payment against an invoice. The amount defaults to
// the invoice total and per-item remittances default to line totals.
func (s *EdiService) Generate820(ctx context.Context, invoiceID string, req *Generate820Request) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.Generate820")
	defer span.End()

	invoice, err := s.loadPredecessor(ctx, invoiceID, models.TypeInvoice)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if invoice.Details.Total != nil {
		amount = *invoice.Details.Total
	}
	if req.Amount != "" {
		amount, err = parseAmount(req.Amount, "amount")
		if err != nil {
			return nil, err
		}
	}

	items := make(models.TransactionItems, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		paid := decimal.Zero
		if item.LineTotal != nil {
			paid = *item.LineTotal
		}
		if override, ok := req.Items[item.ItemNumber]; ok && override.Amount != "" {
			paid, err = parseAmount(override.Amount, "items."+item.ItemNumber+".amount")
			if err != nil {
				return nil, err
			}
		}
		p := paid
		items = append(items, models.TransactionItem{
			ItemNumber:        item.ItemNumber,
			Description:       item.Description,
			InvoiceLineNumber: item.InvoiceLineNumber,
			AmountPaid:        &p,
		})
	}

	paymentDate := time.Now().UTC()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}
	method := req.PaymentMethod
	if method == "" {
		method = defaultPayMethod
	}

	tx := &models.EdiTransaction{
		ListingID:            invoice.ListingID,
		TransactionType:      models.TypePaymentOrder,
		Direction:            models.DirectionInbound,
		RelatedTransactionID: &invoice.ID,
		Buyer:                invoice.Buyer,
		Seller:               invoice.Seller,
		Items:                items,
		Details: models.TransactionDetails{
			PaymentAmount:   &amount,
			PaymentDate:     &paymentDate,
			PaymentMethod:   method,
			ReferenceNumber: req.ReferenceNumber,
			InvoiceNumber:   invoice.Details.InvoiceNumber,
		},
		Status: models.StatusDraft,
	}
	return s.create(ctx, tx)
}

// Generate997 acknowledges receipt of any document except another 997.
// The acknowledgment flows opposite to the document it acknowledges.
func (s *EdiService) Generate997(ctx context.Context, txID string, req *Generate997Request) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.Generate997")
	defer span.End()

	predecessor, err := s.txs.GetTransactionByID(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if predecessor == nil {
		return nil, &errs.NotFoundError{Kind: "transaction", ID: txID}
	}
	if predecessor.TransactionType == models.TypeFunctionalAck {
		return nil, &errs.ValidationError{Field: "transaction_id", Reason: "cannot acknowledge a functional acknowledgment"}
	}

	status := req.Status
	if status == "" {
		status = models.AckAccepted
	}
	if err := validate997Status(status); err != nil {
		return nil, err
	}

	direction := models.DirectionOutbound
	if predecessor.Direction == models.DirectionOutbound {
		direction = models.DirectionInbound
	}

	now := time.Now().UTC()
	tx := &models.EdiTransaction{
		ListingID:            predecessor.ListingID,
		TransactionType:      models.TypeFunctionalAck,
		Direction:            direction,
		RelatedTransactionID: &predecessor.ID,
		Buyer:                predecessor.Buyer,
		Seller:               predecessor.Seller,
		Items:                models.TransactionItems{},
		Details: models.TransactionDetails{
			AcknowledgmentDate:          &now,
			AcknowledgmentStatus:        status,
			AcknowledgedTransactionType: predecessor.TransactionType,
		},
		Status: models.StatusDraft,
	}

	created, err := s.create(ctx, tx)
	if err != nil {
		return nil, err
	}
	util.AcknowledgmentsIssuedTotal.Inc()
	return created, nil
}

// DraftWithAI asks the drafting collaborator for a draft of the
// requested document type and merges only whitelisted fields of its
// output. Any collaborator failure falls back to basic generation;
// drafting never fails because the model did.
func (s *EdiService) DraftWithAI(ctx context.Context, listingID string, req *DraftRequest) (*models.EdiTransaction, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.DraftWithAI")
	defer span.End()

	draftType := req.TransactionType
	if draftType == "" {
		draftType = models.TypePurchaseOrder
	}
	typeInfo, ok := models.TransactionTypes[draftType]
	if !ok {
		return nil, &errs.ValidationError{Field: "transaction_type", Reason: fmt.Sprintf("unknown transaction type %q", draftType)}
	}

	listing, err := s.listings.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, &errs.NotFoundError{Kind: "listing", ID: listingID}
	}

	buyer := models.Party{Name: "TBD"}
	if req.Context.Buyer != nil && !req.Context.Buyer.IsZero() {
		buyer = *req.Context.Buyer
	}
	details := OrderDetails{Notes: req.Context.Notes}
	if req.Context.OrderDetails != nil {
		details = *req.Context.OrderDetails
		if details.Notes == "" {
			details.Notes = req.Context.Notes
		}
	}

	var tx *models.EdiTransaction
	if draftType == models.TypePurchaseOrder {
		tx = s.buildPurchaseOrder(listing, buyer, details)
	} else {
		tx = &models.EdiTransaction{
			ListingID:       listing.ID,
			TransactionType: draftType,
			Direction:       typeInfo.Direction,
			Buyer:           buyer,
			Seller:          listing.Seller,
			Items:           models.TransactionItems{},
			Details:         models.TransactionDetails{Notes: details.Notes},
			Status:          models.StatusDraft,
		}
	}

	if s.ai != nil {
		start := time.Now()
		content, aiErr := s.ai.GenerateEDIContent(ctx, s.draftPrompt(listing, req))
		util.AIDraftLatency.Observe(time.Since(start).Seconds())
		if aiErr != nil {
			util.AIDraftFallbacksTotal.Inc()
			s.logger.Warn("AI draft failed, using basic generation",
				zap.String("listing_id", listingID),
				zap.Error(aiErr))
		} else {
			s.mergeDraftContent(tx, content)
			tx.AIGenerated = true
			util.AIDraftsTotal.Inc()
		}
	} else {
		util.AIDraftFallbacksTotal.Inc()
	}

	return s.create(ctx, tx)
}

// GetWorkflow assembles a listing's documents into the canonical
// order-to-payment pipeline. Single-valued slots take the oldest
// document of their type; every 997 lands in Acknowledgments.
func (s *EdiService) GetWorkflow(ctx context.Context, listingID string) (*models.Workflow, error) {
	ctx, span := util.StartSpan(ctx, "EdiService.GetWorkflow")
	defer span.End()

	txs, err := s.ListTransactions(ctx, listingID)
	if err != nil {
		return nil, err
	}

	wf := &models.Workflow{Acknowledgments: []models.EdiTransaction{}}
	for i := range txs {
		tx := &txs[i]
		switch tx.TransactionType {
		case models.TypePurchaseOrder:
			if wf.PurchaseOrder == nil {
				wf.PurchaseOrder = tx
			}
		case models.TypeAcknowledgment:
			if wf.Acknowledgment == nil {
				wf.Acknowledgment = tx
			}
		case models.TypeShipNotice:
			if wf.ShipNotice == nil {
				wf.ShipNotice = tx
			}
		case models.TypeInvoice:
			if wf.Invoice == nil {
				wf.Invoice = tx
			}
		case models.TypePaymentOrder:
			if wf.Payment == nil {
				wf.Payment = tx
			}
		case models.TypeFunctionalAck:
			wf.Acknowledgments = append(wf.Acknowledgments, *tx)
		}
	}
	return wf, nil
}

// ValidateTransaction reports structural problems with a document
// without touching storage.
func (s *EdiService) ValidateTransaction(tx *models.EdiTransaction) *ValidationResult {
	result := &ValidationResult{Valid: true, Errors: []string{}}
	fail := func(msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, msg)
	}

	if tx.TransactionType == "" {
		fail("transaction type is required")
	} else if _, ok := models.TransactionTypes[tx.TransactionType]; !ok {
		fail(fmt.Sprintf("unknown transaction type %q", tx.TransactionType))
	}
	if tx.ListingID == "" {
		fail("listing id is required")
	}
	if tx.TransactionType == models.TypePurchaseOrder && tx.Buyer.IsZero() {
		fail("purchase orders require buyer information")
	}
	if tx.TransactionType == models.TypeInvoice && tx.Details.InvoiceNumber == "" {
		fail("invoices require an invoice number")
	}
	return result
}

// create assigns identity, persists and announces a document. Publish
// failures are logged, never surfaced.
func (s *EdiService) create(ctx context.Context, tx *models.EdiTransaction) (*models.EdiTransaction, error) {
	tx.ID = uuid.New().String()
	if tx.Status == "" {
		tx.Status = models.StatusDraft
	}

	if err := s.txs.CreateTransaction(ctx, tx); err != nil {
		util.TransactionsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	util.TransactionsCreatedTotal.WithLabelValues(tx.TransactionType).Inc()

	event := &models.TransactionCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTransactionCreated,
			Timestamp: time.Now(),
		},
		TransactionID:        tx.ID,
		ListingID:            tx.ListingID,
		TransactionType:      tx.TransactionType,
		Direction:            tx.Direction,
		RelatedTransactionID: tx.RelatedTransactionID,
		AIGenerated:          tx.AIGenerated,
	}
	if err := s.events.PublishTransactionCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish TransactionCreated event", zap.Error(err))
	}

	s.logger.Info("EDI transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("listing_id", tx.ListingID),
		zap.String("transaction_type", tx.TransactionType))

	return tx, nil
}

// loadPredecessor fetches a chain predecessor and enforces its type.
func (s *EdiService) loadPredecessor(ctx context.Context, id, expectedType string) (*models.EdiTransaction, error) {
	tx, err := s.txs.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx == nil {
		util.TransactionsFailedTotal.WithLabelValues("predecessor_not_found").Inc()
		return nil, &errs.NotFoundError{Kind: "transaction", ID: id}
	}
	if tx.TransactionType != expectedType {
		util.TransactionsFailedTotal.WithLabelValues("invalid_predecessor").Inc()
		return nil, &errs.InvalidPredecessorError{
			TransactionID: id,
			ExpectedType:  expectedType,
			ActualType:    tx.TransactionType,
		}
	}
	return tx, nil
}

// buildPurchaseOrder derives an 850 skeleton from a listing's current
// catalog data. Quantity zero means one unit.
func (s *EdiService) buildPurchaseOrder(listing *models.Listing, buyer models.Party, details OrderDetails) *models.EdiTransaction {
	quantity := details.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	unit := listing.Pricing.Unit
	if unit == "" {
		unit = defaultUnit
	}
	currency := listing.Pricing.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	totalPrice := listing.Pricing.BasePrice.Mul(decimal.NewFromInt(int64(quantity)))

	now := time.Now().UTC()
	return &models.EdiTransaction{
		ListingID:       listing.ID,
		TransactionType: models.TypePurchaseOrder,
		Direction:       models.DirectionInbound,
		Buyer:           buyer,
		Seller:          listing.Seller,
		Items: models.TransactionItems{{
			ItemNumber:  "1",
			Description: listing.Name,
			Quantity:    quantity,
			Unit:        unit,
			UnitPrice:   listing.Pricing.BasePrice,
			Currency:    currency,
			TotalPrice:  &totalPrice,
		}},
		Details: models.TransactionDetails{
			OrderDate:         &now,
			RequestedShipDate: details.RequestedShipDate,
			ShippingAddress:   details.ShippingAddress,
			BillingAddress:    details.BillingAddress,
			Notes:             details.Notes,
		},
		Status: models.StatusDraft,
	}
}

// draftPrompt renders the listing and caller context for the model.
func (s *EdiService) draftPrompt(listing *models.Listing, req *DraftRequest) string {
	draftType := req.TransactionType
	if draftType == "" {
		draftType = models.TypePurchaseOrder
	}
	typeName := models.TransactionTypes[draftType].Name

	contextJSON, _ := json.Marshal(req.Context)
	return fmt.Sprintf(
		"Draft an ANSI X12 %s (%s) for the following product listing.\n\n"+
			"Listing: %s\nDescription: %s\nHS Code: %s\nSeller: %s\nUnit price: %s %s per %s\n\n"+
			"Business context (JSON): %s\n\n"+
			"Respond with a JSON object with optional keys \"buyer\" "+
			"({\"name\",\"location\",\"contact\"}), \"notes\" (string), and "+
			"\"quantity\" (number).",
		draftType, typeName,
		listing.Name, listing.Description, listing.HSCode, listing.Seller.Name,
		listing.Pricing.BasePrice.String(), listing.Pricing.Currency, listing.Pricing.Unit,
		string(contextJSON),
	)
}

// mergeDraftContent folds whitelisted model output into the basic draft.
// Identity, pricing and chain fields always come from the listing, never
// from the model.
func (s *EdiService) mergeDraftContent(tx *models.EdiTransaction, content map[string]interface{}) {
	if raw, ok := content["buyer"].(map[string]interface{}); ok {
		buyer := models.Party{}
		if v, ok := raw["name"].(string); ok {
			buyer.Name = v
		}
		if v, ok := raw["location"].(string); ok {
			buyer.Location = v
		}
		if v, ok := raw["contact"].(string); ok {
			buyer.Contact = v
		}
		if !buyer.IsZero() {
			tx.Buyer = buyer
		}
	}
	if notes, ok := content["notes"].(string); ok && notes != "" {
		tx.Details.Notes = notes
	}
	if qty, ok := content["quantity"].(float64); ok && qty >= 1 && len(tx.Items) == 1 {
		quantity := int(qty)
		total := tx.Items[0].UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
		tx.Items[0].Quantity = quantity
		tx.Items[0].TotalPrice = &total
	}
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &errs.ValidationError{Field: field, Reason: fmt.Sprintf("not a valid decimal: %q", raw)}
	}
	if amount.IsNegative() {
		return decimal.Zero, &errs.ValidationError{Field: field, Reason: "must be non-negative"}
	}
	return amount, nil
}

func validateStatus(status string) error {
	switch status {
	case models.StatusDraft, models.StatusPending, models.StatusSent:
		return nil
	}
	return &errs.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
}

func validateAckStatus(status string) error {
	switch status {
	case models.AckAccepted, models.AckRejected, models.AckPartial:
		return nil
	}
	return &errs.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown acknowledgment status %q", status)}
}

// 997s report receipt, so "partial" is not a meaningful outcome for them.
func validate997Status(status string) error {
	switch status {
	case models.AckAccepted, models.AckRejected, models.AckAcceptedWithErrors:
		return nil
	}
	return &errs.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown acknowledgment status %q", status)}
}
