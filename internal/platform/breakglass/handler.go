package breakglass

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/platform/auth"
	"github.com/clinops/clinops/internal/platform/obs"
)

type Handler struct {
	store  *Store
	events *audit.Recorder
	log    zerolog.Logger
}

func NewHandler(store *Store, events *audit.Recorder, log zerolog.Logger) *Handler {
	return &Handler{store: store, events: events, log: log}
}

// RegisterRoutes mounts the override endpoints. The caller supplies the
// admin gate so this package stays free of role logic.
func (h *Handler) RegisterRoutes(api *echo.Group, adminOnly echo.MiddlewareFunc) {
	g := api.Group("/break-glass", adminOnly)
	g.POST("", h.GrantOverride)
	g.GET("/patients/:id", h.ListForPatient)
	g.DELETE("/patients/:patientId/users/:userId", h.RevokeOverride)
}

type grantRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	UserID    uuid.UUID `json:"user_id"`
	Reason    string    `json:"reason"`
}

func (h *Handler) GrantOverride(c echo.Context) error {
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil || req.UserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and user_id are required")
	}

	ctx := c.Request().Context()
	grantedBy := auth.UserIDFromContext(ctx)

	g, err := h.store.Grant(ctx, req.PatientID, req.UserID, grantedBy, req.Reason)
	if err != nil {
		return err
	}

	obs.BreakGlassGrants.Inc()
	if _, err := h.events.Record(ctx, audit.Entry{
		EventType:     audit.EventBreakGlassGranted,
		Domain:        "patientaccess",
		AggregateID:   req.PatientID,
		AggregateType: "patient",
		Payload: map[string]interface{}{
			"user_id":    req.UserID.String(),
			"reason":     req.Reason,
			"expires_at": g.ExpiresAt,
		},
		ActorID: grantedBy,
	}); err != nil {
		h.log.Error().Err(err).Str("patient_id", req.PatientID.String()).Msg("failed to record break-glass grant event")
	}

	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	grants, err := h.store.ListForPatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	if grants == nil {
		grants = []*Grant{}
	}
	return c.JSON(http.StatusOK, grants)
}

func (h *Handler) RevokeOverride(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.store.Revoke(c.Request().Context(), patientID, userID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
