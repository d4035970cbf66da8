package scheduling

import (
	"errors"
	"net/http"
	"time"

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
	g.POST("", h.schedule)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/checkin", h.checkIn)
	g.POST("/:id/complete", h.complete)
	g.POST("/:id/cancel", h.cancel)
}

type scheduleRequest struct {
	PatientID       uuid.UUID       `json:"patient_id" validate:"required"`
	DoctorName      string          `json:"doctor_name" validate:"required"`
	ScheduledAt     time.Time       `json:"scheduled_at" validate:"required"`
	DurationMinutes int             `json:"duration_minutes" validate:"omitempty,min=1"`
	Reason          string          `json:"reason"`
	Fee             decimal.Decimal `json:"fee"`
}

func (h *Handler) schedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := h.service.Schedule(c.Request().Context(), ScheduleInput{
		PatientID:       req.PatientID,
		DoctorName:      req.DoctorName,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Fee:             req.Fee,
	})
	if err != nil {
		return appointmentError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) checkIn(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	a, err := h.service.CheckIn(c.Request().Context(), id)
	if err != nil {
		return appointmentError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) list(c echo.Context) error {
	var filter Filter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		filter.Status = &st
	}
	if v := c.QueryParam("date"); v != "" {
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		filter.Day = &day
	}

	p := pagination.FromContext(c)
	appointments, total, err := h.service.List(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list appointments")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appointments, total, p.Limit, p.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	a, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return appointmentError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	var completedBy *string
	if name := auth.UserName(c); name != "" {
		completedBy = &name
	}
	a, err := h.service.Complete(c.Request().Context(), id, completedBy)
	if err != nil {
		return appointmentError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type cancelRequest struct {
	Status Status `json:"status" validate:"required,oneof=cancelled no_show"`
}

func (h *Handler) cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := h.service.Cancel(c.Request().Context(), id, req.Status)
	if err != nil {
		return appointmentError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func appointmentError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBadTransition), errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
