package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mastdeals10/sapj/internal/domain/entity"
)

// callLog records the order in which collaborators are invoked
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

type mockInvoiceRepo struct {
	log       *callLog
	found     bool
	patchErr  error
	patchedAt time.Time
	patch     entity.HeaderPatch
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *entity.Invoice) error {
	m.log.add("create")
	return nil
}

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	return &entity.Invoice{ID: id}, nil
}

func (m *mockInvoiceRepo) PatchHeader(ctx context.Context, id uuid.UUID, patch entity.HeaderPatch, updatedAt time.Time) (bool, error) {
	m.log.add("patch")
	m.patch = patch
	m.patchedAt = updatedAt
	return m.found, m.patchErr
}

type mockItemRepo struct {
	log       *callLog
	existing  []entity.LineItem
	inserted  []entity.LineItem
	insertErr error
}

func (m *mockItemRepo) DeleteByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	m.log.add("delete")
	return m.existing, nil
}

func (m *mockItemRepo) Insert(ctx context.Context, item *entity.LineItem) error {
	m.log.add("insert %d", item.LineNumber)
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, *item)
	return nil
}

func (m *mockItemRepo) ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	return m.inserted, nil
}

type mockLedger struct {
	log       *callLog
	deductErr error
}

func (m *mockLedger) Restore(ctx context.Context, item entity.LineItem) error {
	m.log.add("restore %d", item.LineNumber)
	return nil
}

func (m *mockLedger) Deduct(ctx context.Context, item entity.LineItem) error {
	m.log.add("deduct %d", item.LineNumber)
	return m.deductErr
}

type mockTxManager struct {
	log *callLog
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.log.add("begin")
	if err := fn(ctx); err != nil {
		m.log.add("rollback")
		return err
	}
	m.log.add("commit")
	return nil
}

func (m *mockTxManager) WithReadTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.log.add("read")
	return fn(ctx)
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) ObserveInvoiceUpdate(outcome string, duration time.Duration) {
	m.Called(outcome)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func newTestService(log *callLog, invoices *mockInvoiceRepo, items *mockItemRepo, ledger *mockLedger, metrics Metrics, now time.Time) InvoiceService {
	return NewInvoiceService(invoices, items, ledger, &mockTxManager{log: log}, metrics, &mockLogger{},
		WithClock(func() time.Time { return now }))
}

func lineInput(qty string) entity.LineItemInput {
	return entity.LineItemInput{
		ProductID: uuid.New(),
		Quantity:  decimal.RequireFromString(qty),
		UnitPrice: decimal.RequireFromString("10"),
	}
}

func TestInvoiceService_ApplyInvoiceUpdate_Order(t *testing.T) {
	log := &callLog{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	invoices := &mockInvoiceRepo{log: log, found: true}
	items := &mockItemRepo{log: log, existing: []entity.LineItem{{LineNumber: 1}, {LineNumber: 2}}}
	ledger := &mockLedger{log: log}
	metrics := &mockMetrics{}
	metrics.On("ObserveInvoiceUpdate", OutcomeOK).Once()

	svc := newTestService(log, invoices, items, ledger, metrics, now)
	id := uuid.New()
	po := "PO-9"

	got, err := svc.ApplyInvoiceUpdate(context.Background(), id, entity.HeaderPatch{PONumber: &po},
		[]entity.LineItemInput{lineInput("1"), lineInput("2"), lineInput("3")})

	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, []string{
		"begin",
		"delete", "restore 1", "restore 2",
		"patch",
		"insert 1", "deduct 1", "insert 2", "deduct 2", "insert 3", "deduct 3",
		"commit",
	}, log.calls)
	assert.Equal(t, now, invoices.patchedAt)
	assert.Equal(t, "PO-9", *invoices.patch.PONumber)
	require.Len(t, items.inserted, 3)
	for i, item := range items.inserted {
		assert.Equal(t, id, item.InvoiceID)
		assert.Equal(t, i+1, item.LineNumber)
	}
	metrics.AssertExpectations(t)
}

func TestInvoiceService_ApplyInvoiceUpdate_Failures(t *testing.T) {
	tests := []struct {
		name        string
		found       bool
		insertErr   error
		deductErr   error
		wantErr     error
		wantOutcome string
		wantLast    string
	}{
		{
			name:        "invoice not found",
			found:       false,
			wantErr:     entity.ErrInvoiceNotFound,
			wantOutcome: OutcomeNotFound,
			wantLast:    "patch",
		},
		{
			name:        "foreign key failure on insert",
			found:       true,
			insertErr:   fmt.Errorf("%w: product", entity.ErrReferentialIntegrity),
			wantErr:     entity.ErrReferentialIntegrity,
			wantOutcome: OutcomeReferential,
			wantLast:    "insert 1",
		},
		{
			name:        "insufficient stock",
			found:       true,
			deductErr:   entity.ErrInsufficientStock,
			wantErr:     entity.ErrConstraintViolation,
			wantOutcome: OutcomeConstraint,
			wantLast:    "deduct 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callLog{}
			invoices := &mockInvoiceRepo{log: log, found: tt.found}
			items := &mockItemRepo{log: log, insertErr: tt.insertErr}
			ledger := &mockLedger{log: log, deductErr: tt.deductErr}
			metrics := &mockMetrics{}
			metrics.On("ObserveInvoiceUpdate", tt.wantOutcome).Once()

			svc := newTestService(log, invoices, items, ledger, metrics, time.Now())

			got, err := svc.ApplyInvoiceUpdate(context.Background(), uuid.New(), entity.HeaderPatch{},
				[]entity.LineItemInput{lineInput("1")})

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, uuid.Nil, got)
			require.GreaterOrEqual(t, len(log.calls), 2)
			assert.Equal(t, tt.wantLast, log.calls[len(log.calls)-2])
			assert.Equal(t, "rollback", log.calls[len(log.calls)-1])
			metrics.AssertExpectations(t)
		})
	}
}

func TestInvoiceService_ApplyRawInvoiceUpdate(t *testing.T) {
	t.Run("coercion failure never opens a transaction", func(t *testing.T) {
		log := &callLog{}
		metrics := &mockMetrics{}
		metrics.On("ObserveInvoiceUpdate", OutcomeCoercion).Once()
		svc := newTestService(log, &mockInvoiceRepo{log: log}, &mockItemRepo{log: log}, &mockLedger{log: log}, metrics, time.Now())

		_, err := svc.ApplyRawInvoiceUpdate(context.Background(), uuid.NewString(),
			entity.RawHeaderPatch{"invoice_date": "not-a-date"},
			[]entity.RawLineItem{{"product_id": uuid.NewString(), "quantity": "1", "unit_price": "1"}})

		assert.ErrorIs(t, err, entity.ErrTypeCoercion)
		assert.Empty(t, log.calls)
		metrics.AssertExpectations(t)
	})

	t.Run("malformed invoice id", func(t *testing.T) {
		log := &callLog{}
		svc := newTestService(log, &mockInvoiceRepo{log: log}, &mockItemRepo{log: log}, &mockLedger{log: log}, nil, time.Now())

		_, err := svc.ApplyRawInvoiceUpdate(context.Background(), "42", nil, nil)

		assert.ErrorIs(t, err, entity.ErrTypeCoercion)
		assert.Empty(t, log.calls)
	})

	t.Run("valid payload is applied", func(t *testing.T) {
		log := &callLog{}
		invoices := &mockInvoiceRepo{log: log, found: true}
		svc := newTestService(log, invoices, &mockItemRepo{log: log}, &mockLedger{log: log}, nil, time.Now())
		id := uuid.New()

		got, err := svc.ApplyRawInvoiceUpdate(context.Background(), id.String(),
			entity.RawHeaderPatch{"discount_amount": "50.00"}, nil)

		require.NoError(t, err)
		assert.Equal(t, id, got)
		assert.Equal(t, "50.00", invoices.patch.DiscountAmount.StringFixed(2))
	})
}

func TestInvoiceService_GetInvoice_UsesReadTransaction(t *testing.T) {
	log := &callLog{}
	svc := newTestService(log, &mockInvoiceRepo{log: log}, &mockItemRepo{log: log}, &mockLedger{log: log}, nil, time.Now())
	id := uuid.New()

	got, err := svc.GetInvoice(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, []string{"read"}, log.calls)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeNotFound, Outcome(fmt.Errorf("x: %w", entity.ErrInvoiceNotFound)))
	assert.Equal(t, OutcomeConstraint, Outcome(entity.ErrMaxQuantityExceeded))
	assert.Equal(t, OutcomeInternalFail, Outcome(errors.New("disk full")))
}
