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

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sqlite.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice header
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, invoice_number, party_id, invoice_date, due_date,
			subtotal, tax_amount, discount_amount, total_amount,
			po_number, payment_terms, payment_terms_days, notes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		invoice.ID.String(),
		invoice.InvoiceNumber,
		invoice.PartyID.String(),
		invoice.InvoiceDate.Format(entity.DateLayout),
		dateArg(invoice.DueDate),
		formatMoney(invoice.Subtotal),
		formatMoney(invoice.TaxAmount),
		formatMoney(invoice.DiscountAmount),
		formatMoney(invoice.TotalAmount),
		stringArg(invoice.PONumber),
		stringArg(invoice.PaymentTerms),
		intArg(invoice.PaymentTermsDays),
		invoice.Notes,
		formatTimestamp(invoice.CreatedAt),
		formatTimestamp(invoice.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create invoice",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", sqlite.TranslateError(err))
	}

	return nil
}

// GetByID retrieves an invoice header by its ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	query := `
		SELECT id, invoice_number, party_id, invoice_date, due_date,
			subtotal, tax_amount, discount_amount, total_amount,
			po_number, payment_terms, payment_terms_days, notes,
			created_at, updated_at
		FROM invoices
		WHERE id = ?
	`

	invoice, err := scanInvoice(r.db.Executor(ctx).QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrInvoiceNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID",
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return invoice, nil
}

// PatchHeader updates the patched columns with COALESCE fallback so nil
// members keep the stored value, and always stamps updated_at.
func (r *InvoiceRepository) PatchHeader(ctx context.Context, id uuid.UUID, patch entity.HeaderPatch, updatedAt time.Time) (bool, error) {
	query := `
		UPDATE invoices SET
			invoice_date       = COALESCE(?, invoice_date),
			due_date           = COALESCE(?, due_date),
			party_id           = COALESCE(?, party_id),
			subtotal           = COALESCE(?, subtotal),
			tax_amount         = COALESCE(?, tax_amount),
			total_amount       = COALESCE(?, total_amount),
			discount_amount    = COALESCE(?, discount_amount),
			po_number          = COALESCE(?, po_number),
			payment_terms_days = COALESCE(?, payment_terms_days),
			notes              = COALESCE(?, notes),
			payment_terms      = COALESCE(?, payment_terms),
			updated_at         = ?
		WHERE id = ?
		RETURNING id
	`

	var returned string
	err := r.db.Executor(ctx).QueryRowContext(ctx, query,
		dateArg(patch.InvoiceDate),
		dateArg(patch.DueDate),
		uuidArg(patch.PartyID),
		moneyArg(patch.Subtotal),
		moneyArg(patch.TaxAmount),
		moneyArg(patch.TotalAmount),
		moneyArg(patch.DiscountAmount),
		stringArg(patch.PONumber),
		intArg(patch.PaymentTermsDays),
		stringArg(patch.Notes),
		stringArg(patch.PaymentTerms),
		formatTimestamp(updatedAt),
		id.String(),
	).Scan(&returned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to patch invoice header",
			zap.String("id", id.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to patch invoice header: %w", sqlite.TranslateError(err))
	}

	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanInvoice scans a single invoice row
func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var invoice entity.Invoice
	var invoiceDate, createdAt, updatedAt string
	var dueDate, poNumber, paymentTerms sql.NullString
	var paymentTermsDays sql.NullInt64

	err := row.Scan(
		&invoice.ID,
		&invoice.InvoiceNumber,
		&invoice.PartyID,
		&invoiceDate,
		&dueDate,
		&invoice.Subtotal,
		&invoice.TaxAmount,
		&invoice.DiscountAmount,
		&invoice.TotalAmount,
		&poNumber,
		&paymentTerms,
		&paymentTermsDays,
		&invoice.Notes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if invoice.InvoiceDate, err = time.Parse(entity.DateLayout, invoiceDate); err != nil {
		return nil, fmt.Errorf("invalid invoice_date %q: %w", invoiceDate, err)
	}
	if dueDate.Valid {
		d, err := time.Parse(entity.DateLayout, dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid due_date %q: %w", dueDate.String, err)
		}
		invoice.DueDate = &d
	}
	if poNumber.Valid {
		invoice.PONumber = &poNumber.String
	}
	if paymentTerms.Valid {
		invoice.PaymentTerms = &paymentTerms.String
	}
	if paymentTermsDays.Valid {
		days := int(paymentTermsDays.Int64)
		invoice.PaymentTermsDays = &days
	}
	if invoice.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if invoice.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &invoice, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Argument helpers: a nil pointer binds SQL NULL so COALESCE keeps the column.

func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(entity.DateLayout)
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

// Money columns keep two decimal places so stored amounts read back with cents.
func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return formatMoney(*d)
}

func uuidArg(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func stringArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func intArg(i *int) interface{} {
	if i == nil {
		return nil
	}
	return int64(*i)
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
