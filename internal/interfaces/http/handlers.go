package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mastdeals10/sapj/internal/application/service"
	"github.com/mastdeals10/sapj/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	invoiceService service.InvoiceService
	exportService  service.ExportService
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	invoiceService service.InvoiceService,
	exportService service.ExportService,
	logger Logger,
) *Handlers {
	return &Handlers{
		invoiceService: invoiceService,
		exportService:  exportService,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// InvoicePayload is the body of create and update requests. Values stay
// untyped here; the domain coercion decides what they mean.
type InvoicePayload struct {
	Header entity.RawHeaderPatch `json:"header"`
	Items  *[]entity.RawLineItem `json:"items"`
}

// UpdateResponse is returned by a successful update
type UpdateResponse struct {
	ID string `json:"id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateInvoice handles POST /api/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	payload, err := decodePayload(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	var items []entity.RawLineItem
	if payload.Items != nil {
		items = *payload.Items
	}

	input, err := entity.ParseNewInvoice(payload.Header, items)
	if err != nil {
		h.fail(c, "Invalid invoice", err)
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), input)
	if err != nil {
		h.fail(c, "Failed to create invoice", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: invoice})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get invoice", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// UpdateInvoice handles PATCH /api/invoices/:id. The items array replaces
// every existing line and must be present, even when empty.
func (h *Handlers) UpdateInvoice(c *gin.Context) {
	payload, err := decodePayload(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	if payload.Items == nil {
		h.badRequest(c, errors.New("items is required; send [] to remove every line"))
		return
	}

	id, err := h.invoiceService.ApplyRawInvoiceUpdate(c.Request.Context(), c.Param("id"), payload.Header, *payload.Items)
	if err != nil {
		h.fail(c, "Failed to update invoice", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: UpdateResponse{ID: id.String()}})
}

// ExportInvoice handles GET /api/invoices/:id/export
func (h *Handlers) ExportInvoice(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.exportService.ExportInvoice(c.Request.Context(), id, &buf); err != nil {
		h.fail(c, "Failed to export invoice", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handlers) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := entity.ParseID("id", c.Param("id"))
	if err != nil {
		h.fail(c, "Invalid invoice ID", err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.logger.Error("Invalid request body", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	h.logger.Error(msg, "path", c.Request.URL.Path, "status", status, "error", err)

	body := Response{Success: false, Error: err.Error()}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	c.JSON(status, body)
}

// decodePayload keeps JSON numbers as json.Number so decimals are not
// rounded through float64
func decodePayload(c *gin.Context) (InvoicePayload, error) {
	var payload InvoicePayload
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return InvoicePayload{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	return payload, nil
}

// StatusFor maps domain errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrTypeCoercion):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrReferentialIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrConstraintViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
