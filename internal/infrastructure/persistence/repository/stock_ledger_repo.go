package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mastdeals10/sapj/internal/application/port"
	"github.com/mastdeals10/sapj/internal/domain/entity"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/sqlite"
)

// StockLedgerRepository implements port.StockLedger on the products and
// batches stock counters. Every adjustment appends a stock_movements row.
//
// Counters are read and rewritten inside the caller's transaction; the
// immediate transaction lock keeps the read-modify-write free of lost updates.
type StockLedgerRepository struct {
	db     *sqlite.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewStockLedgerRepository creates a new stock ledger
func NewStockLedgerRepository(db *sqlite.DB, logger *zap.Logger) *StockLedgerRepository {
	return &StockLedgerRepository{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

// Restore adds the line quantity back to the product and batch
func (r *StockLedgerRepository) Restore(ctx context.Context, item entity.LineItem) error {
	return r.adjust(ctx, item, item.Quantity)
}

// Deduct removes the line quantity from the product and batch
func (r *StockLedgerRepository) Deduct(ctx context.Context, item entity.LineItem) error {
	if item.MaxQuantity != nil && item.Quantity.GreaterThan(*item.MaxQuantity) {
		return fmt.Errorf("line %d: %w (%s > %s)",
			item.LineNumber, entity.ErrMaxQuantityExceeded, item.Quantity, item.MaxQuantity)
	}
	return r.adjust(ctx, item, item.Quantity.Neg())
}

func (r *StockLedgerRepository) adjust(ctx context.Context, item entity.LineItem, delta decimal.Decimal) error {
	if !sqlite.InTransaction(ctx) {
		return fmt.Errorf("stock adjustment requires a transaction")
	}
	exec := r.db.Executor(ctx)

	productStock, err := r.readProductStock(ctx, item.ProductID)
	if err != nil {
		return fmt.Errorf("product %s: %w", item.ProductID, err)
	}
	newProductStock := productStock.Add(delta)
	if newProductStock.IsNegative() {
		return fmt.Errorf("product %s: %w (on hand %s, requested %s)",
			item.ProductID, entity.ErrInsufficientStock, productStock, delta.Neg())
	}

	if item.BatchID != nil {
		batchProductID, batchStock, err := r.readBatchStock(ctx, *item.BatchID)
		if err != nil {
			return fmt.Errorf("batch %s: %w", *item.BatchID, err)
		}
		if batchProductID != item.ProductID {
			return fmt.Errorf("batch %s: %w: belongs to product %s, not %s",
				*item.BatchID, entity.ErrReferentialIntegrity, batchProductID, item.ProductID)
		}
		newBatchStock := batchStock.Add(delta)
		if newBatchStock.IsNegative() {
			return fmt.Errorf("batch %s: %w (on hand %s, requested %s)",
				*item.BatchID, entity.ErrInsufficientStock, batchStock, delta.Neg())
		}
		if _, err := exec.ExecContext(ctx,
			"UPDATE batches SET current_stock = ? WHERE id = ?",
			newBatchStock.String(), item.BatchID.String(),
		); err != nil {
			return fmt.Errorf("failed to update batch stock: %w", sqlite.TranslateError(err))
		}
	}

	if _, err := exec.ExecContext(ctx,
		"UPDATE products SET current_stock = ? WHERE id = ?",
		newProductStock.String(), item.ProductID.String(),
	); err != nil {
		return fmt.Errorf("failed to update product stock: %w", sqlite.TranslateError(err))
	}

	if _, err := exec.ExecContext(ctx, `
		INSERT INTO stock_movements (product_id, batch_id, qty_delta, doc_type, doc_id, doc_line_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ProductID.String(),
		uuidArg(item.BatchID),
		delta.String(),
		entity.DocTypeSalesInvoice,
		item.InvoiceID.String(),
		item.ID.String(),
		formatTimestamp(r.now()),
	); err != nil {
		return fmt.Errorf("failed to record stock movement: %w", sqlite.TranslateError(err))
	}

	r.logger.Debug("Stock adjusted",
		zap.String("product_id", item.ProductID.String()),
		zap.String("delta", delta.String()),
		zap.String("on_hand", newProductStock.String()))

	return nil
}

func (r *StockLedgerRepository) readProductStock(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var stock decimal.Decimal
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT current_stock FROM products WHERE id = ?", id.String(),
	).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: not found", entity.ErrReferentialIntegrity)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read stock: %w", err)
	}
	return stock, nil
}

// readBatchStock returns the owning product with the on-hand quantity so a
// line can be checked against the batch it cites.
func (r *StockLedgerRepository) readBatchStock(ctx context.Context, id uuid.UUID) (uuid.UUID, decimal.Decimal, error) {
	var productID uuid.UUID
	var stock decimal.Decimal
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT product_id, current_stock FROM batches WHERE id = ?", id.String(),
	).Scan(&productID, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, decimal.Zero, fmt.Errorf("%w: not found", entity.ErrReferentialIntegrity)
	}
	if err != nil {
		return uuid.Nil, decimal.Zero, fmt.Errorf("failed to read stock: %w", err)
	}
	return productID, stock, nil
}

// GetProduct retrieves a product with its on-hand quantity
func (r *StockLedgerRepository) GetProduct(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	var p entity.Product
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT id, code, name, current_stock FROM products WHERE id = ?", id.String(),
	).Scan(&p.ID, &p.Code, &p.Name, &p.CurrentStock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get product", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetBatch retrieves a batch with its on-hand quantity
func (r *StockLedgerRepository) GetBatch(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	var b entity.Batch
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT id, product_id, batch_number, current_stock FROM batches WHERE id = ?", id.String(),
	).Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.CurrentStock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get batch", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

// ListMovements returns the ledger entries recorded for a document
func (r *StockLedgerRepository) ListMovements(ctx context.Context, docID uuid.UUID) ([]entity.StockMovement, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, product_id, batch_id, qty_delta, doc_type, doc_id, doc_line_id, created_at
		FROM stock_movements
		WHERE doc_id = ?
		ORDER BY id`, docID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	defer rows.Close()

	var movements []entity.StockMovement
	for rows.Next() {
		var m entity.StockMovement
		var batchID uuid.NullUUID
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ProductID, &batchID, &m.QtyDelta, &m.DocType, &m.DocID, &m.DocLineID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		if batchID.Valid {
			id := batchID.UUID
			m.BatchID = &id
		}
		if m.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

// Verify interface compliance
var _ port.StockLedger = (*StockLedgerRepository)(nil)
