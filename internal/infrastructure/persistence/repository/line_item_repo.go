package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mastdeals10/sapj/internal/application/port"
	"github.com/mastdeals10/sapj/internal/domain/entity"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/sqlite"
)

const lineItemColumns = `id, invoice_id, line_number, product_id, batch_id, delivery_line_id,
	quantity, unit_price, tax_rate, line_total, max_quantity`

// LineItemRepository implements port.LineItemRepository
type LineItemRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewLineItemRepository creates a new invoice line repository
func NewLineItemRepository(db *sqlite.DB, logger *zap.Logger) *LineItemRepository {
	return &LineItemRepository{
		db:     db,
		logger: logger,
	}
}

// DeleteByInvoiceID deletes all lines of an invoice and returns them in
// line order
func (r *LineItemRepository) DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	query := `DELETE FROM invoice_items WHERE invoice_id = ? RETURNING ` + lineItemColumns

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, invoiceID.String())
	if err != nil {
		r.logger.Error("Failed to delete invoice items",
			zap.String("invoice_id", invoiceID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to delete invoice items: %w", sqlite.TranslateError(err))
	}
	defer rows.Close()

	items, err := scanLineItems(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to delete invoice items: %w", sqlite.TranslateError(err))
	}

	// RETURNING does not guarantee order
	sort.Slice(items, func(i, j int) bool {
		return items[i].LineNumber < items[j].LineNumber
	})

	return items, nil
}

// Insert adds a single line
func (r *LineItemRepository) Insert(ctx context.Context, item *entity.LineItem) error {
	query := `INSERT INTO invoice_items (` + lineItemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.ID.String(),
		item.InvoiceID.String(),
		item.LineNumber,
		item.ProductID.String(),
		uuidArg(item.BatchID),
		uuidArg(item.DeliveryLineID),
		item.Quantity.String(),
		item.UnitPrice.String(),
		item.TaxRate.String(),
		item.LineTotal.String(),
		decimalArg(item.MaxQuantity),
	)
	if err != nil {
		r.logger.Error("Failed to insert invoice item",
			zap.String("invoice_id", item.InvoiceID.String()),
			zap.Int("line_number", item.LineNumber),
			zap.String("product_id", item.ProductID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to insert invoice item %d: %w", item.LineNumber, sqlite.TranslateError(err))
	}

	return nil
}

// ListByInvoiceID retrieves the lines of an invoice ordered by line number
func (r *LineItemRepository) ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	query := `SELECT ` + lineItemColumns + ` FROM invoice_items WHERE invoice_id = ? ORDER BY line_number`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, invoiceID.String())
	if err != nil {
		r.logger.Error("Failed to list invoice items",
			zap.String("invoice_id", invoiceID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer rows.Close()

	return scanLineItems(rows)
}

// scanLineItems scans multiple line rows
func scanLineItems(rows *sql.Rows) ([]entity.LineItem, error) {
	items := []entity.LineItem{}

	for rows.Next() {
		var item entity.LineItem
		var batchID, deliveryLineID uuid.NullUUID
		var maxQuantity decimal.NullDecimal

		err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.LineNumber,
			&item.ProductID,
			&batchID,
			&deliveryLineID,
			&item.Quantity,
			&item.UnitPrice,
			&item.TaxRate,
			&item.LineTotal,
			&maxQuantity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}

		if batchID.Valid {
			id := batchID.UUID
			item.BatchID = &id
		}
		if deliveryLineID.Valid {
			id := deliveryLineID.UUID
			item.DeliveryLineID = &id
		}
		if maxQuantity.Valid {
			q := maxQuantity.Decimal
			item.MaxQuantity = &q
		}

		items = append(items, item)
	}

	return items, rows.Err()
}

// Verify interface compliance
var _ port.LineItemRepository = (*LineItemRepository)(nil)
