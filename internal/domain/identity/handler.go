package identity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinops/clinops/internal/platform/auth"
)

type Handler struct {
	svc *Resolver
}

func NewHandler(svc *Resolver) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequirePermission(h.svc, PermRoleAdminister))
	admin.POST("/role-assignments", h.GrantRole)
	admin.POST("/role-assignments/:id/revoke", h.RevokeAssignment)
	admin.GET("/roles", h.ListRoles)

	// Any staff member may inspect their own effective permissions; the
	// admin permission is required to inspect someone else's.
	api.GET("/users/:id/permissions", h.EffectivePermissions)
}

type grantRequest struct {
	UserID     uuid.UUID  `json:"user_id"`
	RoleCode   string     `json:"role_code"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

func (h *Handler) GrantRole(c echo.Context) error {
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	validFrom := time.Time{}
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	grantedBy := auth.UserIDFromContext(c.Request().Context())

	a, err := h.svc.GrantRole(c.Request().Context(), req.UserID, req.RoleCode, validFrom, req.ValidUntil, grantedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) RevokeAssignment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	revokedBy := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RevokeAssignment(c.Request().Context(), id, revokedBy); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) EffectivePermissions(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	caller := auth.UserIDFromContext(ctx)
	if caller != id {
		ok, err := h.svc.HasPermission(ctx, caller, PermRoleAdminister)
		if err != nil {
			return err
		}
		if !ok {
			return echo.NewHTTPError(http.StatusForbidden, "cannot inspect another user's permissions")
		}
	}

	asOf := time.Time{}
	if raw := c.QueryParam("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "as_of must be RFC3339")
		}
		asOf = t
	}

	grant, err := h.svc.EffectivePermissions(ctx, id, asOf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, grant)
}

func (h *Handler) ListRoles(c echo.Context) error {
	roles, err := h.svc.Roles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roles)
}
