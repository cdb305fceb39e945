package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(sub string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{RoleMember},
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	var seen echo.Context
	err := mw(func(c echo.Context) error {
		called = true
		seen = c
		return c.String(http.StatusOK, "ok")
	})(c)
	if seen == nil {
		seen = c
	}
	return seen, err, called
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	claims := validClaims(userID.String())
	claims.Roles = []string{RolePractitioner}
	claims.OrganizationID = orgID.String()

	c, err, called := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}),
		"Bearer "+createTestToken(t, claims, testSigningKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}

	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != userID {
		t.Errorf("expected user %s, got %s", userID, UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RolePractitioner {
		t.Errorf("unexpected roles: %v", roles)
	}
	if got, ok := OrganizationIDFromContext(ctx); !ok || got != orgID {
		t.Errorf("expected organization %s, got %s", orgID, got)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims(uuid.NewString())
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}),
		"Bearer "+createTestToken(t, claims, testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}),
		"Bearer "+createTestToken(t, validClaims(uuid.NewString()), []byte("other-key")))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_NonUUIDSubject(t *testing.T) {
	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}),
		"Bearer "+createTestToken(t, validClaims("user-123"), testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := validClaims(uuid.NewString())
	claims.Issuer = "https://idp.example.com"
	claims.Audience = jwt.ClaimStrings{"benefits-api"}
	token := "Bearer " + createTestToken(t, claims, testSigningKey)

	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{
		SigningKey: testSigningKey, Issuer: "https://idp.example.com", Audience: "benefits-api",
	}), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err, _ = runMiddleware(t, JWTMiddleware(JWTConfig{
		SigningKey: testSigningKey, Issuer: "https://other.example.com",
	}), token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	_, err, called := runMiddleware(t, JWTMiddleware(JWTConfig{
		SigningKey: testSigningKey,
		Skipper:    func(echo.Context) bool { return true },
	}), "")
	if err != nil || !called {
		t.Errorf("expected skipped request to reach handler, err=%v", err)
	}
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{{
			Kty: "RSA",
			Kid: "k1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	userID := uuid.New()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims(userID.String()))
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	c, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{JWKSURL: srv.URL}), "Bearer "+signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(c.Request().Context()) != userID {
		t.Error("expected user id from RS256 token")
	}

	// HS256 tokens are rejected when verifying against JWKS.
	_, err, _ = runMiddleware(t, JWTMiddleware(JWTConfig{JWKSURL: srv.URL}),
		"Bearer "+createTestToken(t, validClaims(userID.String()), testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_Default(t *testing.T) {
	c, err, _ := runMiddleware(t, DevAuthMiddleware(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != DevUserID {
		t.Errorf("expected dev user, got %s", UserIDFromContext(ctx))
	}
	if !HasRole(ctx, RoleCareAdvocate) {
		t.Error("expected dev user to hold every role")
	}
}

func TestDevAuthMiddleware_Headers(t *testing.T) {
	userID := uuid.New()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DevUserHeader, userID.String())
	req.Header.Set(DevRolesHeader, "practitioner")
	c := e.NewContext(req, httptest.NewRecorder())

	var got echo.Context
	if err := DevAuthMiddleware()(func(c echo.Context) error { got = c; return nil })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := got.Request().Context()
	if UserIDFromContext(ctx) != userID {
		t.Errorf("expected %s, got %s", userID, UserIDFromContext(ctx))
	}
	if !HasRole(ctx, RolePractitioner) || HasRole(ctx, RoleOps) {
		t.Errorf("unexpected roles %v", RolesFromContext(ctx))
	}

	req.Header.Set(DevUserHeader, "not-a-uuid")
	c = e.NewContext(req, httptest.NewRecorder())
	err := DevAuthMiddleware()(func(c echo.Context) error { return nil })(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestSignToken_RoundTrip(t *testing.T) {
	userID := uuid.New()
	tok, err := SignToken(testSigningKey, userID, []string{RoleOps}, time.Minute)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	c, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if UserIDFromContext(c.Request().Context()) != userID {
		t.Error("expected signed user id")
	}
}
