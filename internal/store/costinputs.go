package store

import (
	"context"
	"database/sql"

	"compliance-service/internal/models"
)

// CreateCostInput stores a new cost input
func (s *Store) CreateCostInput(ctx context.Context, input *models.CostInput) error {
	query := `
		INSERT INTO cost_inputs (id, listing_id, name, category, country, cost, supplier_declaration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		input.ID, input.ListingID, input.Name, input.Category,
		input.Country, input.Cost, input.SupplierDeclaration)
	return row.Scan(&input.CreatedAt, &input.UpdatedAt)
}

// GetCostInputByID retrieves a cost input, or nil when it does not exist.
func (s *Store) GetCostInputByID(ctx context.Context, id string) (*models.CostInput, error) {
	var input models.CostInput
	err := s.db.GetContext(ctx, &input, "SELECT * FROM cost_inputs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &input, nil
}

// GetCostInputsByListingID retrieves the full ledger for a listing
func (s *Store) GetCostInputsByListingID(ctx context.Context, listingID string) ([]models.CostInput, error) {
	inputs := []models.CostInput{}
	err := s.db.SelectContext(ctx, &inputs,
		"SELECT * FROM cost_inputs WHERE listing_id = $1 ORDER BY created_at, id", listingID)
	return inputs, err
}

// UpdateCostInput rewrites the mutable fields of a cost input
func (s *Store) UpdateCostInput(ctx context.Context, input *models.CostInput) error {
	query := `
		UPDATE cost_inputs
		SET name = $1, category = $2, country = $3, cost = $4,
		    supplier_declaration = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		input.Name, input.Category, input.Country, input.Cost,
		input.SupplierDeclaration, input.ID)
	return row.Scan(&input.UpdatedAt)
}

// DeleteCostInput removes a cost input, reporting whether a row existed
func (s *Store) DeleteCostInput(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cost_inputs WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
