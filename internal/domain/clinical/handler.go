package clinical

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
	api.POST("/encounters", h.CreateEncounter)
	api.GET("/encounters/:id", h.GetEncounter)
	api.GET("/patients/:id/encounters", h.ListEncounters)
	api.POST("/encounters/:id/lock", h.LockEncounter)
	api.POST("/encounters/:id/observations", h.RecordObservation)
	api.GET("/encounters/:id/observations", h.ListObservations)
	api.POST("/observations/:id/amend", h.AmendObservation)
	api.GET("/observations/:id/chain", h.ObservationChain)
}

type createEncounterRequest struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	ClinicianID *uuid.UUID `json:"clinician_id,omitempty"`
	Reason      string     `json:"reason"`
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	var req createEncounterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	e, err := h.svc.CreateEncounter(c.Request().Context(), &Encounter{
		PatientID:   req.PatientID,
		ClinicianID: req.ClinicianID,
		Reason:      req.Reason,
	}, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	e, err := h.svc.GetEncounter(c.Request().Context(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEncounters(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	page := pagination.FromContext(c)
	caller := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListEncountersForPatient(c.Request().Context(), patientID, caller, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) LockEncounter(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	e, err := h.svc.Lock(c.Request().Context(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

type recordRequest struct {
	Code        string     `json:"code"`
	Display     string     `json:"display"`
	Value       string     `json:"value"`
	Unit        string     `json:"unit"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
}

func (h *Handler) RecordObservation(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter id")
	}
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	o := &Observation{Code: req.Code, Display: req.Display, Value: req.Value, Unit: req.Unit}
	if req.EffectiveAt != nil {
		o.EffectiveAt = *req.EffectiveAt
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	o, err = h.svc.Record(c.Request().Context(), encounterID, o, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ListObservations(c echo.Context) error {
	encounterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid encounter id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	out, err := h.svc.Observations(c.Request().Context(), encounterID, caller)
	if err != nil {
		return err
	}
	if out == nil {
		out = []*Observation{}
	}
	return c.JSON(http.StatusOK, out)
}

type amendRequest struct {
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (h *Handler) AmendObservation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid observation id")
	}
	var req amendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	o, err := h.svc.Amend(c.Request().Context(), id, req.Value, req.Reason, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) ObservationChain(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid observation id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	chain, err := h.svc.Chain(c.Request().Context(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chain)
}
