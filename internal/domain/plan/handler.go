package plan

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinops/clinops/internal/platform/auth"
	"github.com/clinops/clinops/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/follow-up-plans", h.Create)
	api.GET("/follow-up-plans/:id", h.Get)
	api.GET("/patients/:id/follow-up-plans", h.ListForPatient)
	api.POST("/follow-up-plans/:id/transition", h.Transition)
}

type createRequest struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	p, err := h.svc.Create(c.Request().Context(), &FollowUpPlan{
		PatientID:   req.PatientID,
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
	}, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	p, err := h.svc.Get(c.Request().Context(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	page := pagination.FromContext(c)
	caller := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListForPatient(c.Request().Context(), patientID, caller, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

type transitionRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Version int    `json:"version"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	res, err := h.svc.Transition(c.Request().Context(), id, req.From, req.To, req.Version, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
