package store

import (
	"context"
	"database/sql"

	"compliance-service/internal/models"
)

// CreateTransaction stores a new EDI transaction
func (s *Store) CreateTransaction(ctx context.Context, tx *models.EdiTransaction) error {
	query := `
		INSERT INTO edi_transactions
			(id, listing_id, transaction_type, direction, related_transaction_id,
			 buyer, seller, items, details, status, ai_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		tx.ID, tx.ListingID, tx.TransactionType, tx.Direction, tx.RelatedTransactionID,
		tx.Buyer, tx.Seller, tx.Items, tx.Details, tx.Status, tx.AIGenerated)
	return row.Scan(&tx.CreatedAt, &tx.UpdatedAt)
}

// GetTransactionByID retrieves a transaction, or nil when it does not exist.
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.EdiTransaction, error) {
	var tx models.EdiTransaction
	err := s.db.GetContext(ctx, &tx, "SELECT * FROM edi_transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionsByListingID retrieves all transactions for a listing in
// stable creation order.
func (s *Store) GetTransactionsByListingID(ctx context.Context, listingID string) ([]models.EdiTransaction, error) {
	txs := []models.EdiTransaction{}
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM edi_transactions WHERE listing_id = $1 ORDER BY created_at, id", listingID)
	return txs, err
}

// UpdateTransaction rewrites the correctable fields of a transaction.
// Transaction type and lineage are immutable after creation.
func (s *Store) UpdateTransaction(ctx context.Context, tx *models.EdiTransaction) error {
	query := `
		UPDATE edi_transactions
		SET buyer = $1, seller = $2, items = $3, details = $4, status = $5,
		    updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		tx.Buyer, tx.Seller, tx.Items, tx.Details, tx.Status, tx.ID)
	return row.Scan(&tx.UpdatedAt)
}

// DeleteTransaction removes a transaction, reporting whether a row existed
func (s *Store) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM edi_transactions WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
