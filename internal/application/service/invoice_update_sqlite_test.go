package service_test

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mastdeals10/sapj/internal/application/service"
	"github.com/mastdeals10/sapj/internal/domain/entity"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/repository"
	"github.com/mastdeals10/sapj/internal/infrastructure/persistence/sqlite"
	"github.com/mastdeals10/sapj/migrations"
	"github.com/mastdeals10/sapj/pkg/database"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// fixture is a migrated database holding one invoice with two lines of
// product 10 units each, deducted from an opening stock of 100.
type fixture struct {
	db      *sqlite.DB
	svc     service.InvoiceService
	ledger  *repository.StockLedgerRepository
	catalog *repository.CatalogRepository
	clock   *fakeClock

	partyID   uuid.UUID
	productID uuid.UUID
	batchID   uuid.UUID
	invoice   *entity.Invoice
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	cfg := database.Config{Path: filepath.Join(t.TempDir(), "sapj.db")}
	conn, err := database.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = database.NewMigrator(conn, logger).RunMigrations(ctx, migrations.FS)
	require.NoError(t, err)

	reader, err := database.NewReader(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })

	db := sqlite.NewDB(conn.DB, logger, sqlite.WithReader(reader.DB))
	f := &fixture{
		db:      db,
		ledger:  repository.NewStockLedgerRepository(db, logger),
		catalog: repository.NewCatalogRepository(db, logger),
		clock:   &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = service.NewInvoiceService(
		repository.NewInvoiceRepository(db, logger),
		repository.NewLineItemRepository(db, logger),
		f.ledger,
		db,
		nil,
		nopLogger{},
		service.WithClock(f.clock.Now),
	)

	f.partyID, err = f.catalog.CreateParty(ctx, "Acme Pharma", "customer")
	require.NoError(t, err)
	f.productID, err = f.catalog.CreateProduct(ctx, "P-001", "Paracetamol 500mg", decimal.NewFromInt(100))
	require.NoError(t, err)
	f.batchID, err = f.catalog.CreateBatch(ctx, f.productID, "B-24-01", decimal.NewFromInt(100))
	require.NoError(t, err)

	po := "PO-OLD"
	f.invoice, err = f.svc.CreateInvoice(ctx, entity.NewInvoice{
		InvoiceNumber: "INV-0001",
		PartyID:       f.partyID,
		InvoiceDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Subtotal:      decimal.NewFromInt(100),
		TotalAmount:   decimal.NewFromInt(100),
		PONumber:      &po,
		Notes:         "first draft",
		Items: []entity.LineItemInput{
			f.line("4", true),
			f.line("6", true),
		},
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) line(qty string, withBatch bool) entity.LineItemInput {
	in := entity.LineItemInput{
		ProductID: f.productID,
		Quantity:  decimal.RequireFromString(qty),
		UnitPrice: decimal.NewFromInt(10),
	}
	in.LineTotal = entity.ComputeLineTotal(in.Quantity, in.UnitPrice, in.TaxRate)
	if withBatch {
		id := f.batchID
		in.BatchID = &id
	}
	return in
}

func (f *fixture) productStock(t *testing.T) decimal.Decimal {
	t.Helper()
	p, err := f.ledger.GetProduct(context.Background(), f.productID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.CurrentStock
}

func (f *fixture) batchStock(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.GetBatch(context.Background(), f.batchID)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.CurrentStock
}

func (f *fixture) itemCount(t *testing.T, invoiceID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM invoice_items WHERE invoice_id = ?", invoiceID.String()).Scan(&n))
	return n
}

func (f *fixture) get(t *testing.T) *entity.Invoice {
	t.Helper()
	inv, err := f.svc.GetInvoice(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	return inv
}

func TestApplyInvoiceUpdate_PartialHeader(t *testing.T) {
	f := newFixture(t)
	before := f.get(t)
	later := time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC)
	f.clock.Set(later)

	_, err := f.svc.ApplyRawInvoiceUpdate(context.Background(), f.invoice.ID.String(),
		entity.RawHeaderPatch{"po_number": "PO-123", "discount_amount": "50.00"},
		[]entity.RawLineItem{{"product_id": f.productID.String(), "quantity": "3", "unit_price": "10"}})
	require.NoError(t, err)

	after := f.get(t)
	require.NotNil(t, after.PONumber)
	assert.Equal(t, "PO-123", *after.PONumber)
	assert.Equal(t, "50.00", after.DiscountAmount.StringFixed(2))

	var stored string
	require.NoError(t, f.db.QueryRowContext(context.Background(),
		"SELECT discount_amount FROM invoices WHERE id = ?", f.invoice.ID.String()).Scan(&stored))
	assert.Equal(t, "50.00", stored)

	assert.Equal(t, before.InvoiceNumber, after.InvoiceNumber)
	assert.Equal(t, before.PartyID, after.PartyID)
	assert.Equal(t, before.InvoiceDate, after.InvoiceDate)
	assert.True(t, before.Subtotal.Equal(after.Subtotal))
	assert.True(t, before.TotalAmount.Equal(after.TotalAmount))
	assert.Equal(t, before.Notes, after.Notes)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.True(t, after.UpdatedAt.Equal(later))
}

func TestApplyInvoiceUpdate_ReplacesItems(t *testing.T) {
	tests := []struct {
		name  string
		items []string
	}{
		{name: "more lines", items: []string{"1", "2", "3"}},
		{name: "single line", items: []string{"7"}},
		{name: "no lines", items: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			inputs := make([]entity.LineItemInput, 0, len(tt.items))
			for _, q := range tt.items {
				inputs = append(inputs, f.line(q, false))
			}

			_, err := f.svc.ApplyInvoiceUpdate(context.Background(), f.invoice.ID, entity.HeaderPatch{}, inputs)
			require.NoError(t, err)

			got := f.get(t)
			require.Len(t, got.Items, len(tt.items))
			for i, item := range got.Items {
				assert.Equal(t, i+1, item.LineNumber)
				assert.True(t, item.Quantity.Equal(decimal.RequireFromString(tt.items[i])))
				assert.Nil(t, item.BatchID)
			}
		})
	}
}

func TestApplyInvoiceUpdate_StockLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 100 opening, 10 deducted by the two original lines
	require.True(t, f.productStock(t).Equal(decimal.NewFromInt(90)))
	require.True(t, f.batchStock(t).Equal(decimal.NewFromInt(90)))

	t.Run("restores old lines before deducting new ones", func(t *testing.T) {
		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{},
			[]entity.LineItemInput{f.line("20", true), f.line("5", false)})
		require.NoError(t, err)

		assert.True(t, f.productStock(t).Equal(decimal.NewFromInt(75)), "got %s", f.productStock(t))
		assert.True(t, f.batchStock(t).Equal(decimal.NewFromInt(80)), "got %s", f.batchStock(t))

		movements, err := f.ledger.ListMovements(ctx, f.invoice.ID)
		require.NoError(t, err)
		// 2 create deductions, 2 restores, 2 new deductions
		assert.Len(t, movements, 6)
	})

	t.Run("new lines may use stock released by the old ones", func(t *testing.T) {
		// 75 on hand plus 25 released
		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{},
			[]entity.LineItemInput{f.line("100", false)})
		require.NoError(t, err)
		assert.True(t, f.productStock(t).IsZero())
	})

	t.Run("insufficient stock rolls everything back", func(t *testing.T) {
		productBefore := f.productStock(t)
		batchBefore := f.batchStock(t)
		itemsBefore := f.get(t).Items

		notes := "should not stick"
		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{Notes: &notes},
			[]entity.LineItemInput{f.line("101", false)})
		require.Error(t, err)
		assert.ErrorIs(t, err, entity.ErrInsufficientStock)
		assert.ErrorIs(t, err, entity.ErrConstraintViolation)

		assert.True(t, f.productStock(t).Equal(productBefore))
		assert.True(t, f.batchStock(t).Equal(batchBefore))
		after := f.get(t)
		assert.NotEqual(t, notes, after.Notes)
		require.Len(t, after.Items, len(itemsBefore))
		assert.Equal(t, itemsBefore[0].ID, after.Items[0].ID)
	})

	t.Run("max quantity is enforced", func(t *testing.T) {
		in := f.line("5", false)
		limit := decimal.NewFromInt(4)
		in.MaxQuantity = &limit

		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{}, []entity.LineItemInput{in})
		assert.ErrorIs(t, err, entity.ErrMaxQuantityExceeded)
	})
}

func TestApplyInvoiceUpdate_NotFound(t *testing.T) {
	f := newFixture(t)
	missing := uuid.New()
	stockBefore := f.productStock(t)

	_, err := f.svc.ApplyInvoiceUpdate(context.Background(), missing, entity.HeaderPatch{},
		[]entity.LineItemInput{f.line("1", false)})

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrInvoiceNotFound)
	assert.Equal(t, 0, f.itemCount(t, missing))
	assert.True(t, f.productStock(t).Equal(stockBefore))
}

func TestApplyInvoiceUpdate_CoercionWritesNothing(t *testing.T) {
	f := newFixture(t)
	before := f.get(t)

	_, err := f.svc.ApplyRawInvoiceUpdate(context.Background(), f.invoice.ID.String(),
		entity.RawHeaderPatch{"invoice_date": "not-a-date", "po_number": "PO-NEW"},
		[]entity.RawLineItem{{"product_id": f.productID.String(), "quantity": "1", "unit_price": "1"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrTypeCoercion)

	after := f.get(t)
	assert.Equal(t, *before.PONumber, *after.PONumber)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	require.Len(t, after.Items, 2)
	assert.Equal(t, before.Items[0].ID, after.Items[0].ID)
}

func TestApplyInvoiceUpdate_ReferentialIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.get(t)

	t.Run("unknown product", func(t *testing.T) {
		in := f.line("1", false)
		in.ProductID = uuid.New()

		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{}, []entity.LineItemInput{in})
		assert.ErrorIs(t, err, entity.ErrReferentialIntegrity)
	})

	t.Run("unknown party in header", func(t *testing.T) {
		party := uuid.New()
		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{PartyID: &party}, nil)
		assert.ErrorIs(t, err, entity.ErrReferentialIntegrity)
	})

	t.Run("due date before invoice date", func(t *testing.T) {
		due := before.InvoiceDate.AddDate(0, 0, -1)
		_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{DueDate: &due}, nil)
		assert.ErrorIs(t, err, entity.ErrConstraintViolation)
	})

	after := f.get(t)
	require.Len(t, after.Items, 2)
	assert.Equal(t, before.Items[1].ID, after.Items[1].ID)
	assert.Equal(t, before.PartyID, after.PartyID)
}

func TestApplyInvoiceUpdate_BatchOfAnotherProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.get(t)

	otherID, err := f.catalog.CreateProduct(ctx, "P-002", "Ibuprofen 200mg", decimal.NewFromInt(500))
	require.NoError(t, err)

	in := f.line("50", true)
	in.ProductID = otherID

	_, err = f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{}, []entity.LineItemInput{in})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrReferentialIntegrity)

	other, err := f.ledger.GetProduct(ctx, otherID)
	require.NoError(t, err)
	assert.True(t, other.CurrentStock.Equal(decimal.NewFromInt(500)), "got %s", other.CurrentStock)
	assert.True(t, f.productStock(t).Equal(decimal.NewFromInt(90)))
	assert.True(t, f.batchStock(t).Equal(decimal.NewFromInt(90)))

	after := f.get(t)
	require.Len(t, after.Items, 2)
	assert.Equal(t, before.Items[0].ID, after.Items[0].ID)
	assert.Equal(t, before.Items[1].ID, after.Items[1].ID)
}

func TestApplyInvoiceUpdate_DeliveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lineIDs, err := f.catalog.CreateDelivery(ctx, "DO-0001", f.partyID, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		[]repository.DeliveryLine{{ProductID: f.productID, Quantity: decimal.NewFromInt(5)}})
	require.NoError(t, err)
	require.Len(t, lineIDs, 1)

	in := f.line("5", false)
	in.DeliveryLineID = &lineIDs[0]
	_, err = f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{}, []entity.LineItemInput{in})
	require.NoError(t, err)

	got := f.get(t)
	require.Len(t, got.Items, 1)
	require.NotNil(t, got.Items[0].DeliveryLineID)
	assert.Equal(t, lineIDs[0], *got.Items[0].DeliveryLineID)
}

func TestApplyInvoiceUpdate_ReadersSeeWholeStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldPO := *f.invoice.PONumber
	newPO := "PO-123"

	var wg sync.WaitGroup
	done := make(chan struct{})
	var observed []*entity.Invoice
	var readErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			inv, err := f.svc.GetInvoice(ctx, f.invoice.ID)
			if err != nil {
				readErr = err
				return
			}
			observed = append(observed, inv)
		}
	}()

	_, err := f.svc.ApplyInvoiceUpdate(ctx, f.invoice.ID, entity.HeaderPatch{PONumber: &newPO},
		[]entity.LineItemInput{f.line("1", false), f.line("1", false), f.line("1", false)})
	close(done)
	wg.Wait()

	require.NoError(t, err)
	require.NoError(t, readErr)

	for _, inv := range observed {
		require.NotNil(t, inv.PONumber)
		switch *inv.PONumber {
		case oldPO:
			assert.Len(t, inv.Items, 2)
		case newPO:
			assert.Len(t, inv.Items, 3)
		default:
			t.Fatalf("unexpected po_number %q", *inv.PONumber)
		}
	}
}

func TestGetInvoice_DuringOpenWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.db.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := f.db.Executor(txCtx).ExecContext(txCtx,
			"UPDATE invoices SET notes = 'in flight' WHERE id = ?", f.invoice.ID.String()); err != nil {
			return err
		}

		inv, err := f.svc.GetInvoice(ctx, f.invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, "first draft", inv.Notes)
		assert.Len(t, inv.Items, 2)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "in flight", f.get(t).Notes)
}

func TestExportInvoice(t *testing.T) {
	f := newFixture(t)
	exporter := service.NewExportService(f.svc, nopLogger{})

	var buf bytes.Buffer
	require.NoError(t, exporter.ExportInvoice(context.Background(), f.invoice.ID, &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	number, err := wb.GetCellValue("Invoice", "B1")
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", number)

	rows, err := wb.GetRows("Invoice")
	require.NoError(t, err)
	// 11 header rows, 2 blank, item header, 2 lines
	require.Len(t, rows, 16)
	assert.Equal(t, "Product", rows[13][1])
	assert.Equal(t, "40.00", rows[14][6])

	t.Run("missing invoice", func(t *testing.T) {
		err := exporter.ExportInvoice(context.Background(), uuid.New(), &bytes.Buffer{})
		assert.ErrorIs(t, err, entity.ErrInvoiceNotFound)
	})
}
