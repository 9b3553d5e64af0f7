package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "finserv-applications/internal/common/errors"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims issued by the identity service.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type callerKey struct{}

// CallerFrom returns the caller attached by Authenticator. Requests without
// credentials carry the zero Caller.
func CallerFrom(ctx context.Context) models.Caller {
	caller, _ := ctx.Value(callerKey{}).(models.Caller)
	return caller
}

func withCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Authenticator verifies HS256 bearer tokens and attaches the caller. A
// missing Authorization header is not an error here; handlers that need an
// identity reject anonymous callers themselves.
type Authenticator struct {
	secret    []byte
	issuer    string
	adminRole string
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewAuthenticator(secret, issuer, adminRole string, log logger.Logger) *Authenticator {
	if adminRole == "" {
		adminRole = "admin"
	}
	l := logger.ForComponent(log, "auth")
	return &Authenticator{
		secret:    []byte(secret),
		issuer:    issuer,
		adminRole: adminRole,
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
	}
}

func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			a.errors.Write(w, r, apperrors.NewUnauthenticatedError("invalid Authorization header format"))
			return
		}

		claims, err := a.validateToken(parts[1])
		if err != nil {
			a.errors.Write(w, r, apperrors.NewUnauthenticatedError(err.Error()))
			return
		}

		caller := models.Caller{ID: claims.UserID, IsAdmin: claims.Role == a.adminRole}
		a.logger.Debug("authentication successful", map[string]interface{}{
			"userId":  caller.ID,
			"isAdmin": caller.IsAdmin,
		})
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no user_id")
	}
	return claims, nil
}

// SignToken issues an HS256 token. The API never issues tokens itself; this
// exists for tooling and tests.
func SignToken(secret, issuer, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
