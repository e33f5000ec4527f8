package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mastdeals10/sapj/internal/domain/entity"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/sqlite"
)

// CatalogRepository writes the reference rows invoice lines point at:
// parties, products, batches and delivery lines.
type CatalogRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *sqlite.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// CreateParty inserts a customer or supplier
func (r *CatalogRepository) CreateParty(ctx context.Context, name, partyType string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		"INSERT INTO parties (id, name, party_type) VALUES (?, ?, ?)",
		id.String(), name, partyType)
	if err != nil {
		r.logger.Error("Failed to create party", zap.String("name", name), zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to create party: %w", sqlite.TranslateError(err))
	}
	return id, nil
}

// CreateProduct inserts a product with an opening stock
func (r *CatalogRepository) CreateProduct(ctx context.Context, code, name string, openingStock decimal.Decimal) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		"INSERT INTO products (id, code, name, current_stock) VALUES (?, ?, ?, ?)",
		id.String(), code, name, openingStock.String())
	if err != nil {
		r.logger.Error("Failed to create product", zap.String("code", code), zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to create product: %w", sqlite.TranslateError(err))
	}
	return id, nil
}

// CreateBatch inserts a batch of a product with an opening stock
func (r *CatalogRepository) CreateBatch(ctx context.Context, productID uuid.UUID, batchNumber string, openingStock decimal.Decimal) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.Executor(ctx).ExecContext(ctx,
		"INSERT INTO batches (id, product_id, batch_number, current_stock) VALUES (?, ?, ?, ?)",
		id.String(), productID.String(), batchNumber, openingStock.String())
	if err != nil {
		r.logger.Error("Failed to create batch", zap.String("batch_number", batchNumber), zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to create batch: %w", sqlite.TranslateError(err))
	}
	return id, nil
}

// DeliveryLine is one line of a delivery record
type DeliveryLine struct {
	ProductID uuid.UUID
	BatchID   *uuid.UUID
	Quantity  decimal.Decimal
}

// CreateDelivery inserts a delivery record with its lines and returns the
// line identifiers in input order
func (r *CatalogRepository) CreateDelivery(ctx context.Context, number string, partyID uuid.UUID, date time.Time, lines []DeliveryLine) ([]uuid.UUID, error) {
	var lineIDs []uuid.UUID

	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		deliveryID := uuid.New()
		exec := r.db.Executor(ctx)

		if _, err := exec.ExecContext(ctx,
			"INSERT INTO deliveries (id, delivery_number, party_id, delivery_date) VALUES (?, ?, ?, ?)",
			deliveryID.String(), number, partyID.String(), date.Format(entity.DateLayout),
		); err != nil {
			return fmt.Errorf("failed to create delivery: %w", sqlite.TranslateError(err))
		}

		for _, line := range lines {
			lineID := uuid.New()
			if _, err := exec.ExecContext(ctx,
				"INSERT INTO delivery_lines (id, delivery_id, product_id, batch_id, quantity) VALUES (?, ?, ?, ?, ?)",
				lineID.String(), deliveryID.String(), line.ProductID.String(), uuidArg(line.BatchID), line.Quantity.String(),
			); err != nil {
				return fmt.Errorf("failed to create delivery line: %w", sqlite.TranslateError(err))
			}
			lineIDs = append(lineIDs, lineID)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create delivery", zap.String("number", number), zap.Error(err))
		return nil, err
	}

	return lineIDs, nil
}
