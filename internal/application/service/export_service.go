package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mastdeals10/sapj/internal/domain/entity"
)

const exportSheet = "Invoice"

// itemHeaderRow is the first row of the line table in the exported sheet
const itemHeaderRow = 14

// ExportService renders invoices as Excel workbooks
type ExportService interface {
	ExportInvoice(ctx context.Context, id uuid.UUID, w io.Writer) error
}

type exportServiceImpl struct {
	invoices InvoiceService
	logger   Logger
}

// NewExportService creates a new ExportService
func NewExportService(invoices InvoiceService, logger Logger) ExportService {
	return &exportServiceImpl{
		invoices: invoices,
		logger:   logger,
	}
}

// ExportInvoice writes the header block and one row per line item
func (s *exportServiceImpl) ExportInvoice(ctx context.Context, id uuid.UUID, w io.Writer) error {
	invoice, err := s.invoices.GetInvoice(ctx, id)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := [][2]interface{}{
		{"Invoice Number", invoice.InvoiceNumber},
		{"Invoice Date", invoice.InvoiceDate.Format(entity.DateLayout)},
		{"Due Date", formatOptionalDate(invoice)},
		{"Customer", invoice.PartyID.String()},
		{"PO Number", derefString(invoice.PONumber)},
		{"Payment Terms", derefString(invoice.PaymentTerms)},
		{"Subtotal", invoice.Subtotal.StringFixed(2)},
		{"Tax", invoice.TaxAmount.StringFixed(2)},
		{"Discount", invoice.DiscountAmount.StringFixed(2)},
		{"Total", invoice.TotalAmount.StringFixed(2)},
		{"Notes", invoice.Notes},
	}
	for i, kv := range header {
		row := i + 1
		if err := s.setRow(f, row, kv[0], kv[1]); err != nil {
			return err
		}
	}

	if err := s.setRow(f, itemHeaderRow, "#", "Product", "Batch", "Quantity", "Unit Price", "Tax Rate %", "Line Total"); err != nil {
		return err
	}
	for i, item := range invoice.Items {
		batch := ""
		if item.BatchID != nil {
			batch = item.BatchID.String()
		}
		if err := s.setRow(f, itemHeaderRow+1+i,
			item.LineNumber,
			item.ProductID.String(),
			batch,
			item.Quantity.String(),
			item.UnitPrice.StringFixed(2),
			item.TaxRate.String(),
			item.LineTotal.StringFixed(2),
		); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Invoice exported", "invoice_id", id.String(), "items", len(invoice.Items))
	return nil
}

func (s *exportServiceImpl) setRow(f *excelize.File, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to set row %d: %w", row, err)
	}
	return nil
}

func formatOptionalDate(invoice *entity.Invoice) string {
	if invoice.DueDate == nil {
		return ""
	}
	return invoice.DueDate.Format(entity.DateLayout)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
