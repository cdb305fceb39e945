package wallet

import (
	"errors"
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reimbursement_wallet/:id", h.GetWallet)
	api.PUT("/reimbursement_wallet/:id", h.UpdateWallet)
	api.GET("/reimbursement_wallet/:id/requests", h.ListRequests)
	api.POST("/reimbursement_wallet/:id/requests", h.CreateRequest)
	api.POST("/reimbursement_wallet/:id/debit_card", h.RequestDebitCard)
	api.PUT("/reimbursement_wallet/:id/debit_card/lost_stolen", h.LostStolen)

	api.GET("/reimbursement_requests/:id", h.GetRequest)
	api.PUT("/reimbursement_requests/:id", h.UpdateRequest)
	api.DELETE("/reimbursement_requests/:id", h.DeleteRequest)
	api.POST("/reimbursement_requests/:id/sources", h.UploadSource)

	ops := api.Group("", auth.RequireRole(auth.RoleOps))
	ops.PUT("/reimbursement_wallet/:id/state", h.SetWalletState)
	ops.PUT("/reimbursement_requests/:id/state", h.SetRequestState)
}

func mapError(err error) error {
	var noMethod *NoReimbursementMethodError
	switch {
	case IsValidation(err), errors.As(err, &noMethod):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrCardExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) GetWallet(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.svc.GetWallet(ctx, auth.UserIDFromContext(ctx), id, auth.HasRole(ctx, auth.RoleOps))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateWallet(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		ReimbursementMethod ReimbursementMethod `json:"reimbursement_method"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	w, err := h.svc.SetReimbursementMethod(ctx, auth.UserIDFromContext(ctx), id, body.ReimbursementMethod)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) SetWalletState(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		State WalletState `json:"state"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w, err := h.svc.SetWalletState(c.Request().Context(), id, body.State)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ListRequests(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListRequests(ctx, auth.UserIDFromContext(ctx), id, auth.HasRole(ctx, auth.RoleOps),
		State(c.QueryParam("state")), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in RequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	r, err := h.svc.CreateRequest(ctx, auth.UserIDFromContext(ctx), id, &in)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.svc.GetRequest(ctx, auth.UserIDFromContext(ctx), id, auth.HasRole(ctx, auth.RoleOps))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UpdateRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p RequestPatch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	r, err := h.svc.UpdateRequest(ctx, auth.UserIDFromContext(ctx), id, &p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRequest(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteRequest(ctx, auth.UserIDFromContext(ctx), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetRequestState(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		State State `json:"state"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.SetRequestState(c.Request().Context(), id, body.State)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) UploadSource(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	ctx := c.Request().Context()
	r, err := h.svc.AddSource(ctx, auth.UserIDFromContext(ctx), id, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) RequestDebitCard(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	card, err := h.svc.RequestDebitCard(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, card)
}

func (h *Handler) LostStolen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	card, err := h.svc.ReportLostStolen(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, card)
}
