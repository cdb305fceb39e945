package appointment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebenefits/platform/internal/platform/auth"
	"github.com/carebenefits/platform/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts appointment routes. bookGuard wraps booking so a
// member cannot submit two bookings at once.
func (h *Handler) RegisterRoutes(api *echo.Group, bookGuard echo.MiddlewareFunc) {
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments", h.Book, bookGuard)
	api.PUT("/appointments/:id/cancel", h.Cancel)
	api.PUT("/appointments/:id/reschedule", h.Reschedule, bookGuard)
	api.POST("/appointments/:id/start", h.Start)
	api.POST("/appointments/:id/end", h.End)

	api.GET("/booking_flow/search", h.Search)
	api.GET("/practitioners/:id/availability", h.Availability)
}

func mapError(err error) error {
	switch {
	case IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrOutsideWindow):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &t, nil
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Book(c.Request().Context(), uid, &req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, NewView(a, h.svc.now()))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Get(ctx, auth.UserIDFromContext(ctx), id, auth.HasRole(ctx, auth.RoleOps))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, NewView(a, h.svc.now()))
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		UserID: auth.UserIDFromContext(c.Request().Context()),
		State:  State(c.QueryParam("state")),
	}
	var err error
	if f.ScheduledStart, err = parseTimeParam(c, "scheduled_start"); err != nil {
		return err
	}
	if f.ScheduledEnd, err = parseTimeParam(c, "scheduled_end"); err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) Start(c echo.Context) error {
	return h.transition(c, h.svc.Start)
}

func (h *Handler) End(c echo.Context) error {
	return h.transition(c, h.svc.End)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, userID, id uuid.UUID) (*Appointment, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := fn(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, NewView(a, h.svc.now()))
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		ScheduledStart time.Time `json:"scheduled_start"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a, err := h.svc.Reschedule(ctx, auth.UserIDFromContext(ctx), id, body.ScheduledStart)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, NewView(a, h.svc.now()))
}

func (h *Handler) Search(c echo.Context) error {
	res, err := h.svc.Search(c.Request().Context(), c.QueryParam("query"), pagination.FromContext(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Availability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	from, err := parseTimeParam(c, "starts_at")
	if err != nil {
		return err
	}
	to, err := parseTimeParam(c, "ends_at")
	if err != nil {
		return err
	}
	if from == nil || to == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "starts_at and ends_at are required")
	}
	windows, err := h.svc.OpenWindows(c.Request().Context(), id, *from, *to)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"practitioner_id": id, "windows": windows})
}
