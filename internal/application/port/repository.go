package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mastdeals10/sapj/internal/domain/entity"
)

// InvoiceRepository defines persistence operations for invoice headers
type InvoiceRepository interface {
	// Create inserts a new header
	Create(ctx context.Context, invoice *entity.Invoice) error

	// GetByID returns the header without items, or entity.ErrInvoiceNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)

	// PatchHeader applies the non-nil patch members, keeps every other column
	// and stamps updated_at. found is false when no row matched id.
	PatchHeader(ctx context.Context, id uuid.UUID, patch entity.HeaderPatch, updatedAt time.Time) (found bool, err error)
}

// LineItemRepository defines persistence operations for invoice lines
type LineItemRepository interface {
	// DeleteByInvoiceID removes every line of the invoice and returns them
	DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error)

	// Insert adds one line
	Insert(ctx context.Context, item *entity.LineItem) error

	// ListByInvoiceID returns the lines ordered by line number
	ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error)
}

// StockLedger adjusts on-hand quantities for invoice lines. It runs inside
// the caller's transaction.
type StockLedger interface {
	// Restore returns the line's quantity to stock
	Restore(ctx context.Context, item entity.LineItem) error

	// Deduct takes the line's quantity from stock, failing with
	// entity.ErrInsufficientStock or entity.ErrMaxQuantityExceeded
	Deduct(ctx context.Context, item entity.LineItem) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// WithReadTransaction runs fn against one consistent snapshot without
	// taking the write lock. fn must not write.
	WithReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
