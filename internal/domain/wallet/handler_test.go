package wallet

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebenefits/platform/internal/platform/auth"
)

func newRequestContext(e *echo.Echo, method, body string, userID uuid.UUID, id uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(context.Background(), userID, []string{auth.RoleMember}, nil))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	return c, rec
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

func TestHandler_CreateRequest(t *testing.T) {
	f := newTestService()
	h := NewHandler(f.svc)
	body := `{"category_id":"` + f.category.ID.String() + `","label":"Visit","service_provider":"Clinic",` +
		`"amount_cents":1500,"service_start_date":"2026-06-10"}`

	c, rec := newRequestContext(echo.New(), http.MethodPost, body, f.memberID, f.wallet.ID)
	if err := h.CreateRequest(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"state":"NEW"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_CreateRequest_NoMethod(t *testing.T) {
	f := newTestService()
	f.wallets.wallets[f.wallet.ID].ReimbursementMethod = nil
	h := NewHandler(f.svc)
	body := `{"category_id":"` + f.category.ID.String() + `","label":"Visit","service_provider":"Clinic",` +
		`"amount_cents":1500,"service_start_date":"2026-06-10"}`

	c, _ := newRequestContext(echo.New(), http.MethodPost, body, f.memberID, f.wallet.ID)
	expectHTTPStatus(t, h.CreateRequest(c), http.StatusBadRequest)
}

func TestHandler_CreateRequest_OverLimit(t *testing.T) {
	f := newTestService()
	h := NewHandler(f.svc)
	body := `{"category_id":"` + f.category.ID.String() + `","label":"Visit","service_provider":"Clinic",` +
		`"amount_cents":90000,"service_start_date":"2026-06-10"}`

	c, _ := newRequestContext(echo.New(), http.MethodPost, body, f.memberID, f.wallet.ID)
	expectHTTPStatus(t, h.CreateRequest(c), http.StatusConflict)
}

func TestHandler_GetWallet_Forbidden(t *testing.T) {
	f := newTestService()
	h := NewHandler(f.svc)
	c, _ := newRequestContext(echo.New(), http.MethodGet, "", uuid.New(), f.wallet.ID)
	expectHTTPStatus(t, h.GetWallet(c), http.StatusForbidden)
}

func TestHandler_UploadSource(t *testing.T) {
	f := newTestService()
	r, err := f.svc.CreateRequest(context.Background(), f.memberID, f.wallet.ID, f.input(1000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "receipt.pdf")
	part.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req = req.WithContext(auth.WithIdentity(context.Background(), f.memberID, []string{auth.RoleMember}, nil))
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())

	if err := NewHandler(f.svc).UploadSource(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if keys := f.blobs.Keys("reimbursement/" + f.wallet.ID.String()); len(keys) != 1 {
		t.Errorf("expected 1 stored receipt, got %d", len(keys))
	}
}

func TestHandler_UploadSource_MissingFile(t *testing.T) {
	f := newTestService()
	h := NewHandler(f.svc)
	c, _ := newRequestContext(echo.New(), http.MethodPost, "", f.memberID, uuid.New())
	expectHTTPStatus(t, h.UploadSource(c), http.StatusBadRequest)
}
