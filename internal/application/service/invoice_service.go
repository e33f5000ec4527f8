package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mastdeals10/sapj/internal/application/port"
	"github.com/mastdeals10/sapj/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics receives the outcome of every invoice update
type Metrics interface {
	ObserveInvoiceUpdate(outcome string, duration time.Duration)
}

// Update outcomes reported to Metrics
const (
	OutcomeOK           = "ok"
	OutcomeNotFound     = "not_found"
	OutcomeCoercion     = "type_coercion"
	OutcomeReferential  = "referential_integrity"
	OutcomeConstraint   = "constraint_violation"
	OutcomeInternalFail = "error"
)

// Outcome classifies an update error for metrics and logs
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, entity.ErrInvoiceNotFound):
		return OutcomeNotFound
	case errors.Is(err, entity.ErrTypeCoercion):
		return OutcomeCoercion
	case errors.Is(err, entity.ErrReferentialIntegrity):
		return OutcomeReferential
	case errors.Is(err, entity.ErrConstraintViolation):
		return OutcomeConstraint
	default:
		return OutcomeInternalFail
	}
}

// InvoiceService manages sales invoices
type InvoiceService interface {
	// ApplyInvoiceUpdate atomically replaces the invoice's lines and patches
	// its header. Nothing is kept when any step fails.
	ApplyInvoiceUpdate(ctx context.Context, invoiceID uuid.UUID, patch entity.HeaderPatch, items []entity.LineItemInput) (uuid.UUID, error)

	// ApplyRawInvoiceUpdate coerces an untyped payload, then applies it
	ApplyRawInvoiceUpdate(ctx context.Context, invoiceID string, patch entity.RawHeaderPatch, items []entity.RawLineItem) (uuid.UUID, error)

	CreateInvoice(ctx context.Context, inv entity.NewInvoice) (*entity.Invoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
}

// Option customizes the invoice service
type Option func(*invoiceServiceImpl)

// WithClock overrides the clock used for created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *invoiceServiceImpl) {
		s.now = now
	}
}

type invoiceServiceImpl struct {
	invoiceRepo port.InvoiceRepository
	itemRepo    port.LineItemRepository
	stockLedger port.StockLedger
	txManager   port.TransactionManager
	metrics     Metrics
	logger      Logger
	now         func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo port.InvoiceRepository,
	itemRepo port.LineItemRepository,
	stockLedger port.StockLedger,
	txManager port.TransactionManager,
	metrics Metrics,
	logger Logger,
	opts ...Option,
) InvoiceService {
	s := &invoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		itemRepo:    itemRepo,
		stockLedger: stockLedger,
		txManager:   txManager,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyInvoiceUpdate runs delete, header patch and insert in one transaction.
// Deletes go first so restored stock is available to the new lines.
func (s *invoiceServiceImpl) ApplyInvoiceUpdate(ctx context.Context, invoiceID uuid.UUID, patch entity.HeaderPatch, items []entity.LineItemInput) (uuid.UUID, error) {
	start := time.Now()
	s.logger.Info("Applying invoice update", "invoice_id", invoiceID.String(), "items", len(items))

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		removed, err := s.itemRepo.DeleteByInvoiceID(ctx, invoiceID)
		if err != nil {
			return err
		}
		for _, item := range removed {
			if err := s.stockLedger.Restore(ctx, item); err != nil {
				return fmt.Errorf("restore stock for line %d: %w", item.LineNumber, err)
			}
		}

		found, err := s.invoiceRepo.PatchHeader(ctx, invoiceID, patch, s.now().UTC())
		if err != nil {
			return err
		}
		if !found {
			return entity.ErrInvoiceNotFound
		}

		for i, input := range items {
			item := input.ToLineItem(invoiceID, i+1)
			if err := s.itemRepo.Insert(ctx, &item); err != nil {
				return err
			}
			if err := s.stockLedger.Deduct(ctx, item); err != nil {
				return fmt.Errorf("deduct stock for line %d: %w", item.LineNumber, err)
			}
		}

		return nil
	})

	outcome := Outcome(err)
	s.metrics.ObserveInvoiceUpdate(outcome, time.Since(start))

	if err != nil {
		s.logger.Error("Invoice update failed",
			"invoice_id", invoiceID.String(),
			"outcome", outcome,
			"error", err)
		return uuid.Nil, fmt.Errorf("apply invoice update %s: %w", invoiceID, err)
	}

	s.logger.Info("Invoice updated", "invoice_id", invoiceID.String(), "items", len(items))
	return invoiceID, nil
}

// ApplyRawInvoiceUpdate coerces every value before opening the transaction,
// so a coercion failure writes nothing.
func (s *invoiceServiceImpl) ApplyRawInvoiceUpdate(ctx context.Context, invoiceID string, raw entity.RawHeaderPatch, rawItems []entity.RawLineItem) (uuid.UUID, error) {
	id, patch, items, err := coerceUpdate(invoiceID, raw, rawItems)
	if err != nil {
		s.metrics.ObserveInvoiceUpdate(OutcomeCoercion, 0)
		s.logger.Error("Invoice update rejected", "invoice_id", invoiceID, "error", err)
		return uuid.Nil, fmt.Errorf("apply invoice update %s: %w", invoiceID, err)
	}
	return s.ApplyInvoiceUpdate(ctx, id, patch, items)
}

func coerceUpdate(invoiceID string, raw entity.RawHeaderPatch, rawItems []entity.RawLineItem) (uuid.UUID, entity.HeaderPatch, []entity.LineItemInput, error) {
	id, err := entity.ParseID("invoice_id", invoiceID)
	if err != nil {
		return uuid.Nil, entity.HeaderPatch{}, nil, err
	}
	patch, err := entity.ParseHeaderPatch(raw)
	if err != nil {
		return uuid.Nil, entity.HeaderPatch{}, nil, err
	}
	items, err := entity.ParseLineItems(rawItems)
	if err != nil {
		return uuid.Nil, entity.HeaderPatch{}, nil, err
	}
	return id, patch, items, nil
}

// CreateInvoice inserts the header and its lines, deducting stock per line
func (s *invoiceServiceImpl) CreateInvoice(ctx context.Context, inv entity.NewInvoice) (*entity.Invoice, error) {
	now := s.now().UTC()
	invoice := &entity.Invoice{
		ID:               uuid.New(),
		InvoiceNumber:    inv.InvoiceNumber,
		PartyID:          inv.PartyID,
		InvoiceDate:      inv.InvoiceDate,
		DueDate:          inv.DueDate,
		Subtotal:         inv.Subtotal,
		TaxAmount:        inv.TaxAmount,
		DiscountAmount:   inv.DiscountAmount,
		TotalAmount:      inv.TotalAmount,
		PONumber:         inv.PONumber,
		PaymentTerms:     inv.PaymentTerms,
		PaymentTermsDays: inv.PaymentTermsDays,
		Notes:            inv.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            make([]entity.LineItem, 0, len(inv.Items)),
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
			return err
		}
		for i, input := range inv.Items {
			item := input.ToLineItem(invoice.ID, i+1)
			if err := s.itemRepo.Insert(ctx, &item); err != nil {
				return err
			}
			if err := s.stockLedger.Deduct(ctx, item); err != nil {
				return fmt.Errorf("deduct stock for line %d: %w", item.LineNumber, err)
			}
			invoice.Items = append(invoice.Items, item)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create invoice", "invoice_number", inv.InvoiceNumber, "error", err)
		return nil, fmt.Errorf("create invoice %s: %w", inv.InvoiceNumber, err)
	}

	s.logger.Info("Invoice created", "invoice_id", invoice.ID.String(), "invoice_number", invoice.InvoiceNumber)
	return invoice, nil
}

// GetInvoice reads header and lines in one read transaction so the two always
// belong to the same committed state
func (s *invoiceServiceImpl) GetInvoice(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	var invoice *entity.Invoice

	err := s.txManager.WithReadTransaction(ctx, func(ctx context.Context) error {
		header, err := s.invoiceRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		items, err := s.itemRepo.ListByInvoiceID(ctx, id)
		if err != nil {
			return err
		}
		header.Items = items
		invoice = header
		return nil
	})
	if err != nil {
		return nil, err
	}

	return invoice, nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveInvoiceUpdate(string, time.Duration) {}
