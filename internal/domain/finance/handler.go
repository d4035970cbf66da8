package finance

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/overview", h.overview)
	g.GET("/trends", h.trends)
	g.GET("/outstanding", h.outstanding)
	g.GET("/reports/revenue", h.revenueReport)
	g.GET("/reports/outstanding", h.outstandingReport)
}

func (h *Handler) overview(c echo.Context) error {
	o, err := h.service.Overview(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute overview")
	}
	return c.JSON(http.StatusOK, o)
}

func trendDays(c echo.Context) int {
	days, err := strconv.Atoi(c.QueryParam("days"))
	if err != nil {
		return 30
	}
	return days
}

func (h *Handler) trends(c echo.Context) error {
	trend, err := h.service.Trend(c.Request().Context(), trendDays(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, trend)
}

func (h *Handler) outstanding(c echo.Context) error {
	rows, err := h.service.OutstandingBills(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load outstanding bills")
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) revenueReport(c echo.Context) error {
	pdf, err := h.service.RevenueReportPDF(c.Request().Context(), trendDays(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="revenue-report.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) outstandingReport(c echo.Context) error {
	pdf, err := h.service.OutstandingReportPDF(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render report")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="outstanding-report.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
