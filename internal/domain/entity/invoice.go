package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

// Invoice is a sales invoice header together with its line items.
type Invoice struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	PartyID       uuid.UUID `json:"customer_or_supplier_id"`

	InvoiceDate time.Time  `json:"invoice_date"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`

	PONumber         *string `json:"po_number,omitempty"`
	PaymentTerms     *string `json:"payment_terms,omitempty"`
	PaymentTermsDays *int    `json:"payment_terms_days,omitempty"`
	Notes            string  `json:"notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []LineItem `json:"items"`
}

// ExpectedTotal returns subtotal + tax - discount. Callers decide whether
// TotalAmount has to match it; the update path stores what it is given.
func (i *Invoice) ExpectedTotal() decimal.Decimal {
	return i.Subtotal.Add(i.TaxAmount).Sub(i.DiscountAmount)
}

// LineItem is one persisted invoice line. Lines are never edited in place:
// an update deletes all of them and inserts the replacement set.
type LineItem struct {
	ID             uuid.UUID        `json:"id"`
	InvoiceID      uuid.UUID        `json:"invoice_id"`
	LineNumber     int              `json:"line_number"`
	ProductID      uuid.UUID        `json:"product_id"`
	BatchID        *uuid.UUID       `json:"batch_id,omitempty"`
	DeliveryLineID *uuid.UUID       `json:"delivery_line_id,omitempty"`
	Quantity       decimal.Decimal  `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	TaxRate        decimal.Decimal  `json:"tax_rate"`
	LineTotal      decimal.Decimal  `json:"line_total"`
	MaxQuantity    *decimal.Decimal `json:"max_quantity,omitempty"`
}

// LineItemInput is a fully specified replacement line.
type LineItemInput struct {
	ProductID      uuid.UUID
	BatchID        *uuid.UUID
	DeliveryLineID *uuid.UUID
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	TaxRate        decimal.Decimal
	LineTotal      decimal.Decimal
	MaxQuantity    *decimal.Decimal
}

// ToLineItem binds the input to an invoice under a fresh identifier.
func (in LineItemInput) ToLineItem(invoiceID uuid.UUID, lineNumber int) LineItem {
	return LineItem{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		LineNumber:     lineNumber,
		ProductID:      in.ProductID,
		BatchID:        in.BatchID,
		DeliveryLineID: in.DeliveryLineID,
		Quantity:       in.Quantity,
		UnitPrice:      in.UnitPrice,
		TaxRate:        in.TaxRate,
		LineTotal:      in.LineTotal,
		MaxQuantity:    in.MaxQuantity,
	}
}

// ComputeLineTotal returns quantity * unit price including tax, rounded to cents.
func ComputeLineTotal(quantity, unitPrice, taxRate decimal.Decimal) decimal.Decimal {
	net := quantity.Mul(unitPrice)
	tax := net.Mul(taxRate).Div(decimal.NewFromInt(100))
	return net.Add(tax).Round(2)
}

// NewInvoice holds everything needed to create an invoice.
type NewInvoice struct {
	InvoiceNumber    string
	PartyID          uuid.UUID
	InvoiceDate      time.Time
	DueDate          *time.Time
	Subtotal         decimal.Decimal
	TaxAmount        decimal.Decimal
	DiscountAmount   decimal.Decimal
	TotalAmount      decimal.Decimal
	PONumber         *string
	PaymentTerms     *string
	PaymentTermsDays *int
	Notes            string
	Items            []LineItemInput
}

// HeaderPatch is a sparse header update. A nil member leaves the stored
// column unchanged; there is no way to clear a column through a patch.
type HeaderPatch struct {
	InvoiceDate      *time.Time
	DueDate          *time.Time
	PartyID          *uuid.UUID
	Subtotal         *decimal.Decimal
	TaxAmount        *decimal.Decimal
	TotalAmount      *decimal.Decimal
	DiscountAmount   *decimal.Decimal
	PONumber         *string
	PaymentTermsDays *int
	Notes            *string
	PaymentTerms     *string
}

// IsEmpty reports whether the patch changes no header column.
func (p HeaderPatch) IsEmpty() bool {
	return p.InvoiceDate == nil && p.DueDate == nil && p.PartyID == nil &&
		p.Subtotal == nil && p.TaxAmount == nil && p.TotalAmount == nil &&
		p.DiscountAmount == nil && p.PONumber == nil && p.PaymentTermsDays == nil &&
		p.Notes == nil && p.PaymentTerms == nil
}
