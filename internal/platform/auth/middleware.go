package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey         contextKey = "user_id"
	UserRolesKey      contextKey = "user_roles"
	OrganizationIDKey contextKey = "organization_id"
)

// Header names honoured by DevAuthMiddleware.
const (
	DevUserHeader  = "X-User-ID"
	DevRolesHeader = "X-User-Roles"
)

// DevUserID is the identity assigned to anonymous requests in development.
var DevUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type Claims struct {
	jwt.RegisteredClaims
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"organization_id,omitempty"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 verification; otherwise RS256 keys come from JWKSURL.
	SigningKey []byte
	Skipper    func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyfunc jwt.Keyfunc
	methods := []string{"RS256"}
	if len(cfg.SigningKey) > 0 {
		methods = []string{"HS256"}
		keyfunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	} else {
		keyfunc = NewJWKSCache(cfg.JWKSURL, defaultJWKSCacheTTL).Keyfunc
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyfunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}
			var orgID *uuid.UUID
			if claims.OrganizationID != "" {
				id, err := uuid.Parse(claims.OrganizationID)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token organization")
				}
				orgID = &id
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), userID, claims.Roles, orgID)))
			return next(c)
		}
	}
}

// DevAuthMiddleware trusts identity headers instead of tokens. Requests
// without X-User-ID act as DevUserID with the ops role.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := DevUserID
			roles := []string{RoleOps}

			if h := c.Request().Header.Get(DevUserHeader); h != "" {
				id, err := uuid.Parse(h)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid "+DevUserHeader)
				}
				userID = id
				roles = []string{RoleMember}
				if r := c.Request().Header.Get(DevRolesHeader); r != "" {
					roles = strings.Split(r, ",")
				}
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), userID, roles, nil)))
			return next(c)
		}
	}
}

// WithIdentity stores the caller identity on ctx. Tests use it to fake an
// authenticated request.
func WithIdentity(ctx context.Context, userID uuid.UUID, roles []string, orgID *uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRolesKey, roles)
	if orgID != nil {
		ctx = context.WithValue(ctx, OrganizationIDKey, *orgID)
	}
	return ctx
}

// UserIDFromContext returns uuid.Nil for unauthenticated contexts.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	uid, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func OrganizationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(OrganizationIDKey).(uuid.UUID)
	return id, ok
}

// SignToken issues an HS256 token for userID. Used by tests and the dev CLI.
func SignToken(key []byte, userID uuid.UUID, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
