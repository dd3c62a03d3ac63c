package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
)

type contextKey string

const principalKey contextKey = "principal"

// Echo context keys set alongside the request context, for logging.
const (
	SubjectIDKey = "subject_id"
	RoleKey      = "role"
)

// Principal is the authenticated caller.
type Principal struct {
	SubjectID uuid.UUID `json:"subject_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

// IdentityChecker reports whether an identity may still act. It lets a
// deactivated identity's unexpired token be refused.
type IdentityChecker interface {
	IsActive(ctx context.Context, subjectID uuid.UUID) (bool, error)
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// PrincipalFrom returns the caller of an authenticated route, or a 401.
func PrincipalFrom(c echo.Context) (Principal, error) {
	p, ok := PrincipalFromContext(c.Request().Context())
	if !ok {
		return Principal{}, apperr.ToHTTP(ErrInvalidCredentials)
	}
	return p, nil
}

// Authenticate validates the bearer token, re-checks that the identity is
// active, and stores the Principal on the request context. Every failure is
// reported as a generic 401.
func Authenticate(tokens *TokenService, checker IdentityChecker, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apperr.ToHTTP(ErrInvalidCredentials.WithMessage("missing authorization header"))
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return apperr.ToHTTP(ErrInvalidCredentials.WithMessage("invalid authorization format"))
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				return apperr.ToHTTP(err)
			}
			subjectID, _ := claims.SubjectID()

			ctx := c.Request().Context()
			if checker != nil {
				active, err := checker.IsActive(ctx, subjectID)
				if err != nil && !apperr.Is(err, apperr.KindNotFound) {
					return apperr.ToHTTP(fmt.Errorf("check identity: %w", err))
				}
				if !active {
					return apperr.ToHTTP(ErrInvalidCredentials.WithMessage("identity inactive"))
				}
			}

			p := Principal{
				SubjectID: subjectID,
				Name:      claims.Name,
				Email:     claims.Email,
				Role:      claims.Role,
			}
			c.Set(SubjectIDKey, subjectID.String())
			c.Set(RoleKey, string(p.Role))
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))

			return next(c)
		}
	}
}
