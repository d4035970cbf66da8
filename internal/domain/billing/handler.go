package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

// Handler exposes billing over HTTP.
type Handler struct {
	service    *Service
	aggregator *Aggregator
}

func NewHandler(service *Service, aggregator *Aggregator) *Handler {
	return &Handler{service: service, aggregator: aggregator}
}

// actor returns the caller's display name as a nullable column value.
func actor(c echo.Context) *string {
	name := auth.UserName(c)
	if name == "" {
		return nil
	}
	return &name
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/bills", h.createBill)
	g.GET("/bills", h.listBills)
	g.GET("/bills/:id", h.getBill)
	g.GET("/bills/:id/items", h.listItems)
	g.GET("/bills/:id/payments", h.listPayments)
	g.GET("/bills/:id/adjustments", h.listAdjustments)
	g.POST("/bills/:id/payments", h.recordPayment)
	g.POST("/bills/:id/adjustments", h.adjustBill)
	g.GET("/summary", h.summary)
	g.GET("/admissions/:id/bill", h.proposedBill)
	g.POST("/admissions/:id/bill", h.finalizeBill)
}

type createBillRequest struct {
	PatientID   uuid.UUID       `json:"patient_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description"`
	BillType    BillType        `json:"bill_type" validate:"required,oneof=medical_service inpatient lab_test"`
}

func (h *Handler) createBill(c echo.Context) error {
	var req createBillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	bill, err := h.service.CreateBill(c.Request().Context(), CreateBillInput{
		PatientID:   req.PatientID,
		Amount:      req.Amount,
		Description: req.Description,
		BillType:    req.BillType,
		CreatedBy:   actor(c),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, billResponse(bill))
}

func (h *Handler) listBills(c echo.Context) error {
	var filter BillFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.QueryParam("bill_type"); v != "" {
		bt := BillType(v)
		if !validBillTypes[bt] {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid bill_type")
		}
		filter.BillType = &bt
	}
	filter.Unpaid = c.QueryParam("unpaid") == "true"

	p := pagination.FromContext(c)
	bills, total, err := h.service.ListBills(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list bills")
	}

	out := make([]map[string]interface{}, 0, len(bills))
	for _, b := range bills {
		out = append(out, billResponse(b))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, p.Limit, p.Offset))
}

func (h *Handler) getBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	bill, err := h.service.GetBill(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, billResponse(bill))
}

func (h *Handler) listItems(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	items, err := h.service.BillItems(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) listPayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	payments, err := h.service.Payments(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) listAdjustments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	adjustments, err := h.service.Adjustments(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, adjustments)
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Method string          `json:"method" validate:"required,oneof=cash card transfer pos"`
}

func (h *Handler) recordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	var req recordPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	bill, err := h.service.RecordPayment(c.Request().Context(), RecordPaymentInput{
		BillID: id,
		Amount: req.Amount,
		Method: req.Method,
		PaidBy: actor(c),
	})
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, billResponse(bill))
}

type adjustBillRequest struct {
	Type      AdjustmentType  `json:"type" validate:"required,oneof=adjust void"`
	NewAmount decimal.Decimal `json:"new_amount"`
	Reason    string          `json:"reason" validate:"required"`
}

func (h *Handler) adjustBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bill id")
	}
	var req adjustBillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	adjustedBy := auth.UserName(c)
	if adjustedBy == "" {
		adjustedBy = "system"
	}
	bill, err := h.service.AdjustBill(c.Request().Context(), AdjustBillInput{
		BillID:     id,
		Type:       req.Type,
		NewAmount:  req.NewAmount,
		Reason:     req.Reason,
		AdjustedBy: adjustedBy,
	})
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, billResponse(bill))
}

func (h *Handler) summary(c echo.Context) error {
	summary, err := h.service.Summary(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute summary")
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) proposedBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	proposed, err := h.aggregator.ComputeBill(c.Request().Context(), id)
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusOK, proposed)
}

func (h *Handler) finalizeBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	bill, err := h.aggregator.Finalize(c.Request().Context(), id, actor(c))
	if err != nil {
		return billError(err)
	}
	return c.JSON(http.StatusCreated, billResponse(bill))
}

// billResponse augments the stored row with the derived payment status and
// outstanding balance.
func billResponse(b *Bill) map[string]interface{} {
	return map[string]interface{}{
		"id":             b.ID,
		"patient_id":     b.PatientID,
		"admission_id":   b.AdmissionID,
		"amount":         b.Amount,
		"amount_paid":    b.AmountPaid,
		"outstanding":    b.Outstanding(),
		"is_paid":        b.IsPaid,
		"payment_status": b.PaymentStatus(),
		"description":    b.Description,
		"bill_type":      b.BillType,
		"created_by":     b.CreatedBy,
		"paid_by":        b.PaidBy,
		"payment_method": b.PaymentMethod,
		"paid_at":        b.PaidAt,
		"created_at":     b.CreatedAt,
		"updated_at":     b.UpdatedAt,
	}
}

func billError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateBill):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
