package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"compliance-service/internal/models"
)

type fakeListingStore struct {
	listings map[string]*models.Listing
}

func newFakeListingStore(listings ...*models.Listing) *fakeListingStore {
	s := &fakeListingStore{listings: map[string]*models.Listing{}}
	for _, l := range listings {
		s.listings[l.ID] = l
	}
	return s
}

func (s *fakeListingStore) GetListingByID(_ context.Context, id string) (*models.Listing, error) {
	return s.listings[id], nil
}

func (s *fakeListingStore) UpdateListingCompliance(_ context.Context, listingID string, block *models.ComplianceBlock) error {
	listing, ok := s.listings[listingID]
	if !ok {
		return fmt.Errorf("listing not found: %s", listingID)
	}
	listing.Compliance = block
	return nil
}

type fakeCostInputStore struct {
	inputs map[string]*models.CostInput
	seq    int
}

func newFakeCostInputStore() *fakeCostInputStore {
	return &fakeCostInputStore{inputs: map[string]*models.CostInput{}}
}

func (s *fakeCostInputStore) CreateCostInput(_ context.Context, input *models.CostInput) error {
	s.seq++
	input.CreatedAt = time.Unix(int64(s.seq), 0)
	cp := *input
	s.inputs[input.ID] = &cp
	return nil
}

func (s *fakeCostInputStore) GetCostInputByID(_ context.Context, id string) (*models.CostInput, error) {
	input, ok := s.inputs[id]
	if !ok {
		return nil, nil
	}
	cp := *input
	return &cp, nil
}

func (s *fakeCostInputStore) GetCostInputsByListingID(_ context.Context, listingID string) ([]models.CostInput, error) {
	var out []models.CostInput
	for _, input := range s.inputs {
		if input.ListingID == listingID {
			out = append(out, *input)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeCostInputStore) UpdateCostInput(_ context.Context, input *models.CostInput) error {
	if _, ok := s.inputs[input.ID]; !ok {
		return fmt.Errorf("cost input not found: %s", input.ID)
	}
	created := s.inputs[input.ID].CreatedAt
	cp := *input
	cp.CreatedAt = created
	s.inputs[input.ID] = &cp
	return nil
}

func (s *fakeCostInputStore) DeleteCostInput(_ context.Context, id string) (bool, error) {
	if _, ok := s.inputs[id]; !ok {
		return false, nil
	}
	delete(s.inputs, id)
	return true, nil
}

type fakeTransactionStore struct {
	txs map[string]*models.EdiTransaction
	seq int
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{txs: map[string]*models.EdiTransaction{}}
}

func (s *fakeTransactionStore) CreateTransaction(_ context.Context, tx *models.EdiTransaction) error {
	s.seq++
	tx.CreatedAt = time.Unix(int64(s.seq), 0)
	cp := *tx
	s.txs[tx.ID] = &cp
	return nil
}

func (s *fakeTransactionStore) GetTransactionByID(_ context.Context, id string) (*models.EdiTransaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (s *fakeTransactionStore) GetTransactionsByListingID(_ context.Context, listingID string) ([]models.EdiTransaction, error) {
	var out []models.EdiTransaction
	for _, tx := range s.txs {
		if tx.ListingID == listingID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeTransactionStore) UpdateTransaction(_ context.Context, tx *models.EdiTransaction) error {
	if _, ok := s.txs[tx.ID]; !ok {
		return fmt.Errorf("transaction not found: %s", tx.ID)
	}
	cp := *tx
	s.txs[tx.ID] = &cp
	return nil
}

func (s *fakeTransactionStore) DeleteTransaction(_ context.Context, id string) (bool, error) {
	if _, ok := s.txs[id]; !ok {
		return false, nil
	}
	delete(s.txs, id)
	return true, nil
}

type fakeEventPublisher struct {
	complianceEvents  []*models.ComplianceRecalculatedEvent
	transactionEvents []*models.TransactionCreatedEvent
	certificateEvents []*models.CertificateIssuedEvent
	publishErr        error
}

func (p *fakeEventPublisher) PublishComplianceRecalculated(_ context.Context, event *models.ComplianceRecalculatedEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.complianceEvents = append(p.complianceEvents, event)
	return nil
}

func (p *fakeEventPublisher) PublishTransactionCreated(_ context.Context, event *models.TransactionCreatedEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.transactionEvents = append(p.transactionEvents, event)
	return nil
}

func (p *fakeEventPublisher) PublishCertificateIssued(_ context.Context, event *models.CertificateIssuedEvent) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.certificateEvents = append(p.certificateEvents, event)
	return nil
}

type cachedVerdict struct {
	rvc       *int64
	qualifies *bool
}

type fakeLocker struct {
	acquires int
	releases int
	verdicts map[string]cachedVerdict
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{verdicts: map[string]cachedVerdict{}}
}

func (l *fakeLocker) AcquireLock(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.acquires++
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _, _ string) error {
	l.releases++
	return nil
}

func (l *fakeLocker) SetComplianceVerdict(_ context.Context, listingID string, rvc *int64, qualifies *bool) error {
	if l.err != nil {
		return l.err
	}
	l.verdicts[listingID] = cachedVerdict{rvc: rvc, qualifies: qualifies}
	return nil
}

func (l *fakeLocker) GetComplianceVerdict(_ context.Context, listingID string) (*int64, *bool, bool, error) {
	if l.err != nil {
		return nil, nil, false, l.err
	}
	verdict, found := l.verdicts[listingID]
	return verdict.rvc, verdict.qualifies, found, nil
}

func (l *fakeLocker) InvalidateComplianceVerdict(_ context.Context, listingID string) error {
	if l.err != nil {
		return l.err
	}
	delete(l.verdicts, listingID)
	return nil
}

type fakeGenerator struct {
	content map[string]interface{}
	err     error
	prompts []string
}

func (g *fakeGenerator) GenerateEDIContent(_ context.Context, prompt string) (map[string]interface{}, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	return g.content, nil
}
