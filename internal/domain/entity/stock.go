package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stock movement document types
const (
	DocTypeSalesInvoice = "SALES_INVOICE"
)

// Product is a stocked article.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
}

// Batch tracks stock of one production lot of a product.
type Batch struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	BatchNumber  string          `json:"batch_number"`
	CurrentStock decimal.Decimal `json:"current_stock"`
}

// StockMovement is one append-only ledger entry. QtyDelta is positive for
// restorations and negative for deductions.
type StockMovement struct {
	ID        int64           `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	BatchID   *uuid.UUID      `json:"batch_id,omitempty"`
	QtyDelta  decimal.Decimal `json:"qty_delta"`
	DocType   string          `json:"doc_type"`
	DocID     uuid.UUID       `json:"doc_id"`
	DocLineID uuid.UUID       `json:"doc_line_id"`
	CreatedAt time.Time       `json:"created_at"`
}
