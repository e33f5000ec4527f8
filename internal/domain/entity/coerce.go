package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawHeaderPatch is the untyped header payload as decoded from JSON.
// Decoders should call UseNumber so numeric values arrive as json.Number.
type RawHeaderPatch map[string]interface{}

// RawLineItem is one untyped replacement line as decoded from JSON.
type RawLineItem map[string]interface{}

// Updatable header fields
const (
	FieldInvoiceDate      = "invoice_date"
	FieldDueDate          = "due_date"
	FieldPartyID          = "customer_or_supplier_id"
	FieldSubtotal         = "subtotal"
	FieldTaxAmount        = "tax_amount"
	FieldTotalAmount      = "total_amount"
	FieldDiscountAmount   = "discount_amount"
	FieldPONumber         = "po_number"
	FieldPaymentTermsDays = "payment_terms_days"
	FieldNotes            = "notes"
	FieldPaymentTerms     = "payment_terms"
)

// ParseHeaderPatch coerces a raw payload into a HeaderPatch. Absent keys,
// nulls and empty strings leave the field unset; unknown keys are ignored.
func ParseHeaderPatch(raw RawHeaderPatch) (HeaderPatch, error) {
	var p HeaderPatch
	var err error

	if p.InvoiceDate, err = optDate(raw, FieldInvoiceDate); err != nil {
		return HeaderPatch{}, err
	}
	if p.DueDate, err = optDate(raw, FieldDueDate); err != nil {
		return HeaderPatch{}, err
	}
	if p.PartyID, err = optUUID(raw, FieldPartyID); err != nil {
		return HeaderPatch{}, err
	}
	if p.Subtotal, err = optDecimal(raw, FieldSubtotal); err != nil {
		return HeaderPatch{}, err
	}
	if p.TaxAmount, err = optDecimal(raw, FieldTaxAmount); err != nil {
		return HeaderPatch{}, err
	}
	if p.TotalAmount, err = optDecimal(raw, FieldTotalAmount); err != nil {
		return HeaderPatch{}, err
	}
	if p.DiscountAmount, err = optDecimal(raw, FieldDiscountAmount); err != nil {
		return HeaderPatch{}, err
	}
	if p.PONumber, err = optText(raw, FieldPONumber); err != nil {
		return HeaderPatch{}, err
	}
	if p.PaymentTermsDays, err = optInt(raw, FieldPaymentTermsDays); err != nil {
		return HeaderPatch{}, err
	}
	if p.Notes, err = optText(raw, FieldNotes); err != nil {
		return HeaderPatch{}, err
	}
	if p.PaymentTerms, err = optText(raw, FieldPaymentTerms); err != nil {
		return HeaderPatch{}, err
	}

	return p, nil
}

// ParseLineItems coerces every raw line, keeping the input order.
func ParseLineItems(raw []RawLineItem) ([]LineItemInput, error) {
	items := make([]LineItemInput, 0, len(raw))
	for i, r := range raw {
		item, err := ParseLineItem(r)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ParseLineItem coerces one raw line. product_id, quantity and unit_price
// are required; tax_rate defaults to zero and line_total is computed when
// omitted.
func ParseLineItem(raw RawLineItem) (LineItemInput, error) {
	var item LineItemInput

	productID, err := optUUID(raw, "product_id")
	if err != nil {
		return item, err
	}
	if productID == nil {
		return item, &CoercionError{Field: "product_id", Value: raw["product_id"], Kind: "uuid"}
	}
	item.ProductID = *productID

	if item.BatchID, err = optUUID(raw, "batch_id"); err != nil {
		return item, err
	}
	if item.DeliveryLineID, err = optUUID(raw, "delivery_line_id"); err != nil {
		return item, err
	}

	quantity, err := optDecimal(raw, "quantity")
	if err != nil {
		return item, err
	}
	if quantity == nil {
		return item, &CoercionError{Field: "quantity", Value: raw["quantity"], Kind: "numeric"}
	}
	item.Quantity = *quantity

	unitPrice, err := optDecimal(raw, "unit_price")
	if err != nil {
		return item, err
	}
	if unitPrice == nil {
		return item, &CoercionError{Field: "unit_price", Value: raw["unit_price"], Kind: "numeric"}
	}
	item.UnitPrice = *unitPrice

	taxRate, err := optDecimal(raw, "tax_rate")
	if err != nil {
		return item, err
	}
	if taxRate != nil {
		item.TaxRate = *taxRate
	}

	lineTotal, err := optDecimal(raw, "line_total")
	if err != nil {
		return item, err
	}
	if lineTotal != nil {
		item.LineTotal = *lineTotal
	} else {
		item.LineTotal = ComputeLineTotal(item.Quantity, item.UnitPrice, item.TaxRate)
	}

	if item.MaxQuantity, err = optDecimal(raw, "max_quantity"); err != nil {
		return item, err
	}

	return item, nil
}

// ParseNewInvoice coerces a creation payload. invoice_number, invoice_date
// and customer_or_supplier_id are required; missing amounts default to zero.
func ParseNewInvoice(raw RawHeaderPatch, rawItems []RawLineItem) (NewInvoice, error) {
	var inv NewInvoice

	number, err := optText(raw, "invoice_number")
	if err != nil {
		return inv, err
	}
	if number == nil {
		return inv, &CoercionError{Field: "invoice_number", Value: raw["invoice_number"], Kind: "text"}
	}
	inv.InvoiceNumber = *number

	header, err := ParseHeaderPatch(raw)
	if err != nil {
		return inv, err
	}
	if header.InvoiceDate == nil {
		return inv, &CoercionError{Field: FieldInvoiceDate, Value: raw[FieldInvoiceDate], Kind: "date"}
	}
	if header.PartyID == nil {
		return inv, &CoercionError{Field: FieldPartyID, Value: raw[FieldPartyID], Kind: "uuid"}
	}

	inv.InvoiceDate = *header.InvoiceDate
	inv.DueDate = header.DueDate
	inv.PartyID = *header.PartyID
	inv.Subtotal = decimalOrZero(header.Subtotal)
	inv.TaxAmount = decimalOrZero(header.TaxAmount)
	inv.DiscountAmount = decimalOrZero(header.DiscountAmount)
	inv.TotalAmount = decimalOrZero(header.TotalAmount)
	inv.PONumber = header.PONumber
	inv.PaymentTerms = header.PaymentTerms
	inv.PaymentTermsDays = header.PaymentTermsDays
	if header.Notes != nil {
		inv.Notes = *header.Notes
	}

	if inv.Items, err = ParseLineItems(rawItems); err != nil {
		return inv, err
	}

	return inv, nil
}

// ParseID coerces an invoice, product or party identifier.
func ParseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &CoercionError{Field: field, Value: s, Kind: "uuid", Err: err}
	}
	return id, nil
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// blank reports whether a value is the "leave unchanged" marker.
func blank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func lookup(raw map[string]interface{}, field string) (interface{}, bool) {
	v, ok := raw[field]
	if !ok || blank(v) {
		return nil, false
	}
	return v, true
}

func optDate(raw map[string]interface{}, field string) (*time.Time, error) {
	v, ok := lookup(raw, field)
	if !ok {
		return nil, nil
	}
	s, isString := v.(string)
	if !isString {
		return nil, &CoercionError{Field: field, Value: v, Kind: "date"}
	}
	s = strings.TrimSpace(s)

	if t, err := time.Parse(DateLayout, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, &CoercionError{Field: field, Value: v, Kind: "date", Err: err}
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

func optDecimal(raw map[string]interface{}, field string) (*decimal.Decimal, error) {
	v, ok := lookup(raw, field)
	if !ok {
		return nil, nil
	}

	var d decimal.Decimal
	var err error
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case decimal.Decimal:
		d = n
	default:
		return nil, &CoercionError{Field: field, Value: v, Kind: "numeric"}
	}
	if err != nil {
		return nil, &CoercionError{Field: field, Value: v, Kind: "numeric", Err: err}
	}
	return &d, nil
}

func optInt(raw map[string]interface{}, field string) (*int, error) {
	v, ok := lookup(raw, field)
	if !ok {
		return nil, nil
	}

	var i int64
	var err error
	switch n := v.(type) {
	case json.Number:
		i, err = n.Int64()
	case string:
		i, err = strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case float64:
		if n != math.Trunc(n) {
			err = fmt.Errorf("not an integer")
		}
		i = int64(n)
	case int:
		i = int64(n)
	case int64:
		i = n
	default:
		return nil, &CoercionError{Field: field, Value: v, Kind: "integer"}
	}
	if err == nil && (i > math.MaxInt32 || i < math.MinInt32) {
		err = fmt.Errorf("out of range")
	}
	if err != nil {
		return nil, &CoercionError{Field: field, Value: v, Kind: "integer", Err: err}
	}

	out := int(i)
	return &out, nil
}

func optUUID(raw map[string]interface{}, field string) (*uuid.UUID, error) {
	v, ok := lookup(raw, field)
	if !ok {
		return nil, nil
	}
	s, isString := v.(string)
	if !isString {
		return nil, &CoercionError{Field: field, Value: v, Kind: "uuid"}
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, &CoercionError{Field: field, Value: v, Kind: "uuid", Err: err}
	}
	return &id, nil
}

func optText(raw map[string]interface{}, field string) (*string, error) {
	v, ok := lookup(raw, field)
	if !ok {
		return nil, nil
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil, &CoercionError{Field: field, Value: v, Kind: "text"}
	}
	return &s, nil
}
