package pharmacy

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.add)
	g.GET("", h.search)
	g.GET("/low-stock", h.lowStock)
	g.GET("/near-expiry", h.nearExpiry)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
	g.POST("/:id/restock", h.restock)
	g.POST("/:id/dispense", h.dispense)
}

type medicationRequest struct {
	Name          string          `json:"name" validate:"required"`
	Category      string          `json:"category"`
	UnitPrice     decimal.Decimal `json:"unit_price" validate:"required"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
	ReorderLevel  int             `json:"reorder_level" validate:"gte=0"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
}

func (h *Handler) add(c echo.Context) error {
	var req medicationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.service.AddMedication(c.Request().Context(), AddMedicationInput{
		Name:          req.Name,
		Category:      req.Category,
		UnitPrice:     req.UnitPrice,
		StockQuantity: req.StockQuantity,
		ReorderLevel:  req.ReorderLevel,
		ExpiryDate:    req.ExpiryDate,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) search(c echo.Context) error {
	p := pagination.FromContext(c)
	meds, total, err := h.service.Search(c.Request().Context(), c.QueryParam("q"), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search medications")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(meds, total, p.Limit, p.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	m, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return medicationError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	var req medicationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return medicationError(err)
	}
	m.Name = req.Name
	m.Category = req.Category
	m.UnitPrice = req.UnitPrice
	m.ReorderLevel = req.ReorderLevel
	m.ExpiryDate = req.ExpiryDate
	if err := h.service.UpdateDetails(c.Request().Context(), m); err != nil {
		return medicationError(err)
	}
	return c.JSON(http.StatusOK, m)
}

type stockRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) restock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	var req stockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.service.Restock(c.Request().Context(), id, req.Quantity)
	if err != nil {
		return medicationError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) dispense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	var req stockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.service.Dispense(c.Request().Context(), id, req.Quantity)
	if err != nil {
		return medicationError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) lowStock(c echo.Context) error {
	meds, err := h.service.LowStock(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load low stock report")
	}
	return c.JSON(http.StatusOK, meds)
}

func (h *Handler) nearExpiry(c echo.Context) error {
	meds, err := h.service.NearExpiry(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load expiry report")
	}
	return c.JSON(http.StatusOK, meds)
}

func medicationError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientStock):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
