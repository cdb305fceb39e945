package accumulation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebenefits/platform/internal/platform/auth"
	"github.com/carebenefits/platform/internal/platform/blobstore"
	"github.com/carebenefits/platform/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the ops-only accumulation routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	ops := api.Group("/accumulation", auth.RequireRole(auth.RoleOps))
	ops.GET("/reports", h.ListReports)
	ops.POST("/reports", h.Generate)
	ops.GET("/reports/:id/file", h.DownloadFile)
	ops.PUT("/reports/:id/submitted", h.MarkSubmitted)
	ops.POST("/mappings", h.RegisterMapping)
}

func mapError(err error) error {
	switch {
	case IsValidation(err), errors.Is(err, ErrUnknownPayer):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) ListReports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReports(c.Request().Context(), c.QueryParam("payer"), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type generateResponse struct {
	Report    *Report    `json:"report"`
	RowErrors []RowError `json:"row_errors"`
}

func (h *Handler) Generate(c echo.Context) error {
	var body struct {
		Payer string `json:"payer"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Payer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payer is required")
	}
	rep, rowErrs, err := h.svc.GenerateFile(c.Request().Context(), body.Payer, h.svc.Now())
	if err != nil {
		return mapError(err)
	}
	if rowErrs == nil {
		rowErrs = []RowError{}
	}
	status := http.StatusCreated
	if rep == nil {
		status = http.StatusOK
	}
	return c.JSON(status, generateResponse{Report: rep, RowErrors: rowErrs})
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) DownloadFile(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, rep, err := h.svc.ReportFile(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+rep.FileName+`"`)
	return c.Stream(http.StatusOK, "application/edi-x12", rc)
}

func (h *Handler) MarkSubmitted(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.MarkSubmitted(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) RegisterMapping(c echo.Context) error {
	var in MappingInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.RegisterProcedure(c.Request().Context(), &in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, m)
}
