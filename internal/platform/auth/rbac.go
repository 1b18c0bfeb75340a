package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// PermissionChecker resolves the caller's effective roles and permissions.
// It is satisfied by identity.Resolver; the indirection keeps this package
// free of domain imports.
type PermissionChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	HasPermission(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// RequireRole admits callers holding at least one of the given roles.
// Resolution happens on every request against the assignment store, so an
// expired or revoked grant is rejected immediately.
func RequireRole(checker PermissionChecker, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == uuid.Nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
			}

			for _, required := range roles {
				ok, err := checker.HasRole(ctx, userID, required)
				if err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "role resolution failed")
				}
				if ok {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequirePermission admits callers holding the permission code.
func RequirePermission(checker PermissionChecker, code string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := UserIDFromContext(ctx)
			if userID == uuid.Nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
			}

			ok, err := checker.HasPermission(ctx, userID, code)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "permission resolution failed")
			}
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, "required permission: "+code)
			}
			return next(c)
		}
	}
}
