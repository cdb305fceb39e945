package eligibility

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebenefits/platform/internal/platform/auth"
)

func newAuthedContext(e *echo.Echo, method, body string, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(context.Background(), userID, []string{auth.RoleMember}, nil))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

func TestHandler_Verify(t *testing.T) {
	env := newTestService()
	env.client.standard["a@b.com|1990-01-02"] = &Record{ID: 1, OrganizationID: env.orgID.String()}
	h := NewHandler(env.svc)
	e := echo.New()

	c, rec := newAuthedContext(e, http.MethodPost, `{"date_of_birth":"1990-01-02","company_email":"a@b.com"}`, uuid.New())
	if err := h.Verify(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newAuthedContext(e, http.MethodPost, `{"date_of_birth":"1990-01-02","company_email":"zzz@b.com"}`, uuid.New())
	expectHTTPStatus(t, h.Verify(c), http.StatusNotFound)

	c, _ = newAuthedContext(e, http.MethodPost, `{"company_email":"a@b.com"}`, uuid.New())
	expectHTTPStatus(t, h.Verify(c), http.StatusBadRequest)
}

func TestHandler_CreateTestMembers_NonTestOrg(t *testing.T) {
	env := newTestService()
	h := NewHandler(env.svc)
	e := echo.New()

	c, _ := newAuthedContext(e, http.MethodPost, `{"members":[{"first_name":"a","last_name":"b","date_of_birth":"2000-01-01"}]}`, uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(env.orgID.String())
	expectHTTPStatus(t, h.CreateTestMembers(c), http.StatusBadRequest)
}

func TestHandler_GetVerification_NotFound(t *testing.T) {
	env := newTestService()
	h := NewHandler(env.svc)
	c, _ := newAuthedContext(echo.New(), http.MethodGet, "", uuid.New())
	expectHTTPStatus(t, h.GetVerification(c), http.StatusNotFound)
}
