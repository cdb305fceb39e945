package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/auth"
	"github.com/carebenefits/platform/internal/platform/lock"
)

func concurrentContext(ctx context.Context) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil).WithContext(ctx)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestPreventConcurrent_RejectsSecondInFlight(t *testing.T) {
	locker := lock.NewMemory()
	mw := PreventConcurrent(locker, "book_appointment", zerolog.Nop())
	ctx := auth.WithIdentity(context.Background(), uuid.New(), nil, nil)

	var inner error
	outer := mw(func(c echo.Context) error {
		// While the first request is running, a second one from the same user
		// must be rejected.
		inner = mw(func(c echo.Context) error { return nil })(concurrentContext(ctx))
		return nil
	})(concurrentContext(ctx))

	if outer != nil {
		t.Fatalf("unexpected outer error: %v", outer)
	}
	var he *echo.HTTPError
	if !errors.As(inner, &he) || he.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overlapping request, got %v", inner)
	}

	// Released after completion.
	if err := mw(func(c echo.Context) error { return nil })(concurrentContext(ctx)); err != nil {
		t.Fatalf("expected request after release to pass, got %v", err)
	}
}

func TestPreventConcurrent_ScopesAreIndependent(t *testing.T) {
	locker := lock.NewMemory()
	ctx := auth.WithIdentity(context.Background(), uuid.New(), nil, nil)
	book := PreventConcurrent(locker, "book_appointment", zerolog.Nop())
	send := PreventConcurrent(locker, "send_message", zerolog.Nop())

	var inner error
	book(func(c echo.Context) error {
		inner = send(func(c echo.Context) error { return nil })(concurrentContext(ctx))
		return nil
	})(concurrentContext(ctx))

	if inner != nil {
		t.Fatalf("expected different scope to pass, got %v", inner)
	}
}

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, false, errors.New("redis down")
}

func TestPreventConcurrent_FailsOpen(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), uuid.New(), nil, nil)
	called := false
	err := PreventConcurrent(failingLocker{}, "send_message", zerolog.Nop())(func(c echo.Context) error {
		called = true
		return nil
	})(concurrentContext(ctx))
	if err != nil || !called {
		t.Fatalf("expected fail-open, err=%v called=%v", err, called)
	}
}
