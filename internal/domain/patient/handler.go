package patient

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.register)
	g.GET("", h.search)
	g.GET("/:id", h.get)
	g.PUT("/:id", h.update)
}

type patientRequest struct {
	FirstName   string  `json:"first_name" validate:"required"`
	LastName    string  `json:"last_name" validate:"required"`
	Gender      string  `json:"gender" validate:"required,oneof=male female other"`
	DateOfBirth *string `json:"date_of_birth"`
	Phone       string  `json:"phone" validate:"required"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Address     *string `json:"address"`
	BloodGroup  *string `json:"blood_group"`
}

func (r *patientRequest) toInput() (RegisterInput, error) {
	in := RegisterInput{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Gender:     r.Gender,
		Phone:      r.Phone,
		Email:      r.Email,
		Address:    r.Address,
		BloodGroup: r.BloodGroup,
	}
	if r.DateOfBirth != nil && *r.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", *r.DateOfBirth)
		if err != nil {
			return in, errors.New("date_of_birth must be YYYY-MM-DD")
		}
		in.DateOfBirth = &dob
	}
	return in, nil
}

func (h *Handler) register(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in, err := req.toInput()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.service.Register(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) search(c echo.Context) error {
	p := pagination.FromContext(c)
	patients, total, err := h.service.Search(c.Request().Context(), c.QueryParam("q"), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to search patients")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p.Limit, p.Offset))
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load patient")
	}
	return c.JSON(http.StatusOK, p)
}

// update applies a partial update; empty fields leave the stored value alone.
func (h *Handler) update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in, err := req.toInput()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.service.Update(c.Request().Context(), id, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
