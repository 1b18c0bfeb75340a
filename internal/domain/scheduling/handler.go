package scheduling

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
	api.POST("/appointments", h.Book)
	api.GET("/appointments/:id", h.Get)
	api.GET("/patients/:id/appointments", h.ListForPatient)
	api.POST("/appointments/:id/transition", h.Transition)
}

type bookRequest struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	ClinicianID *uuid.UUID `json:"clinician_id,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Reason      string     `json:"reason"`
}

func (h *Handler) Book(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Book(c.Request().Context(), &Appointment{
		PatientID:   req.PatientID,
		ClinicianID: req.ClinicianID,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Reason:      req.Reason,
	}, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	a, err := h.svc.Get(c.Request().Context(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
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
