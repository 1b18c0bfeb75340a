package audit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinops/clinops/pkg/pagination"
)

// Handler exposes the read side of the ledger. There is no write endpoint:
// events enter only through Recorder.Record.
type Handler struct {
	svc *Recorder
}

func NewHandler(svc *Recorder) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the event endpoints. The caller supplies the gate;
// reading the ledger is an administrative capability.
func (h *Handler) RegisterRoutes(api *echo.Group, adminOnly echo.MiddlewareFunc) {
	g := api.Group("/events", adminOnly)
	g.GET("", h.Search)
	g.GET("/:id", h.Get)
}

func (h *Handler) Get(c echo.Context) error {
	evt, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, evt)
}

func (h *Handler) Search(c echo.Context) error {
	params := SearchParams{
		EventType:     c.QueryParam("event_type"),
		Domain:        c.QueryParam("domain"),
		CorrelationID: c.QueryParam("correlation_id"),
	}
	if raw := c.QueryParam("aggregate_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid aggregate_id")
		}
		params.AggregateID = id
	}
	if raw := c.QueryParam("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid actor_id")
		}
		params.ActorID = id
	}

	page := pagination.FromContext(c)
	events, total, err := h.svc.Search(c.Request().Context(), params, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	if events == nil {
		events = []*DomainEvent{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, page.Limit, page.Offset))
}
