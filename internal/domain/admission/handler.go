package admission

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

func actor(c echo.Context) *string {
	name := auth.UserName(c)
	if name == "" {
		return nil
	}
	return &name
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.admit)
	g.GET("", h.list)
	g.GET("/:id", h.timeline)
	g.POST("/:id/services", h.addService)
	g.POST("/:id/medications", h.administer)
	g.POST("/:id/discharge", h.discharge)
}

type admitRequest struct {
	PatientID uuid.UUID `json:"patient_id" validate:"required"`
	Ward      string    `json:"ward" validate:"required"`
	Reason    string    `json:"reason"`
}

func (h *Handler) admit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := h.service.Admit(c.Request().Context(), AdmitInput{
		PatientID: req.PatientID,
		Ward:      req.Ward,
		Reason:    req.Reason,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
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

	p := pagination.FromContext(c)
	admissions, total, err := h.service.List(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list admissions")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(admissions, total, p.Limit, p.Offset))
}

func (h *Handler) timeline(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	tl, err := h.service.GetTimeline(c.Request().Context(), id)
	if err != nil {
		return admissionError(err)
	}
	return c.JSON(http.StatusOK, tl)
}

type addServiceRequest struct {
	Name      string          `json:"name" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
}

func (h *Handler) addService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	var req addServiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	svc, err := h.service.AddService(c.Request().Context(), AddServiceInput{
		AdmissionID: id,
		Name:        req.Name,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		RecordedBy:  actor(c),
	})
	if err != nil {
		return admissionError(err)
	}
	return c.JSON(http.StatusCreated, svc)
}

type administerRequest struct {
	MedicationID uuid.UUID `json:"medication_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) administer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	var req administerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.service.AdministerMedication(c.Request().Context(), AdministerInput{
		AdmissionID:    id,
		MedicationID:   req.MedicationID,
		Quantity:       req.Quantity,
		AdministeredBy: actor(c),
	})
	if err != nil {
		return admissionError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) discharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid admission id")
	}
	a, err := h.service.Discharge(c.Request().Context(), id)
	if err != nil {
		return admissionError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func admissionError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDischarged):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
