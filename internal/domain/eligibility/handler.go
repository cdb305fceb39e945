package eligibility

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/enterprise/verification", h.Verify)
	api.GET("/enterprise/verification", h.GetVerification)

	ops := api.Group("", auth.RequireRole(auth.RoleOps))
	ops.POST("/organizations/:id/test_members", h.CreateTestMembers)
}

func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	v, err := h.svc.VerifyEnterprise(c.Request().Context(), uid, &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetVerification(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	v, err := h.svc.GetVerification(c.Request().Context(), uid)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no verification for member")
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) CreateTestMembers(c echo.Context) error {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Members []TestMemberSpec `json:"members"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	recs, err := h.svc.CreateTestMembers(c.Request().Context(), orgID, body.Members)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"members": recs})
}

func mapError(err error) error {
	var tmErr *TestMemberCreationError
	switch {
	case errors.As(err, &tmErr):
		return echo.NewHTTPError(http.StatusBadRequest, tmErr.Error())
	case errors.Is(err, ErrNotEligible):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, member.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "organization not found")
	case isValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
