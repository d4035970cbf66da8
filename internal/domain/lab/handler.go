package lab

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/tests", h.createTest)
	g.GET("/tests", h.listTests)
	g.PUT("/tests/:id", h.updateTest)
	g.POST("/orders", h.order)
	g.GET("/orders", h.listOrders)
	g.GET("/orders/:id", h.getOrder)
	g.POST("/orders/:id/status", h.updateOrderStatus)
}

type testRequest struct {
	Name     string          `json:"name" validate:"required"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price" validate:"required"`
	Active   *bool           `json:"active"`
}

func (h *Handler) createTest(c echo.Context) error {
	var req testRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	t, err := h.service.CreateTest(c.Request().Context(), CreateTestInput{
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) listTests(c echo.Context) error {
	p := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	tests, total, err := h.service.ListTests(c.Request().Context(), activeOnly, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list lab tests")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(tests, total, p.Limit, p.Offset))
}

func (h *Handler) updateTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid test id")
	}
	var req testRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	t, err := h.service.GetTest(c.Request().Context(), id)
	if err != nil {
		return labError(err)
	}
	t.Name = req.Name
	t.Category = req.Category
	t.Price = req.Price
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := h.service.UpdateTest(c.Request().Context(), t); err != nil {
		return labError(err)
	}
	return c.JSON(http.StatusOK, t)
}

type orderRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	TestID    uuid.UUID `json:"test_id" validate:"required"`
}

func (h *Handler) order(c echo.Context) error {
	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var orderedBy *string
	if name := auth.UserName(c); name != "" {
		orderedBy = &name
	}
	o, err := h.service.Order(c.Request().Context(), OrderInput{
		PatientID: req.PatientID,
		TestID:    req.TestID,
		OrderedBy: orderedBy,
	})
	if err != nil {
		return labError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) listOrders(c echo.Context) error {
	var filter OrderFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st := OrderStatus(v)
		filter.Status = &st
	}

	p := pagination.FromContext(c)
	orders, total, err := h.service.ListOrders(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list lab orders")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, p.Limit, p.Offset))
}

func (h *Handler) getOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	o, err := h.service.GetOrder(c.Request().Context(), id)
	if err != nil {
		return labError(err)
	}
	return c.JSON(http.StatusOK, o)
}

type orderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=in_progress completed cancelled"`
	Result *string     `json:"result"`
}

func (h *Handler) updateOrderStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	var req orderStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	o, err := h.service.UpdateOrderStatus(c.Request().Context(), id, req.Status, req.Result)
	if err != nil {
		return labError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func labError(err error) error {
	switch {
	case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBadTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
