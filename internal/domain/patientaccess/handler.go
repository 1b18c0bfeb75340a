package patientaccess

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/platform/auth"
	"github.com/clinops/clinops/internal/platform/errs"
)

type Handler struct {
	svc     *Validator
	repo    Repository
	checker auth.PermissionChecker
}

func NewHandler(svc *Validator, repo Repository, checker auth.PermissionChecker) *Handler {
	return &Handler{svc: svc, repo: repo, checker: checker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreatePatient, auth.RequireRole(h.checker, identity.RoleAdmin, identity.RoleFrontDesk))
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/patients/:id/access", h.Probe)

	rel := api.Group("", auth.RequireRole(h.checker, identity.RoleAdmin))
	rel.POST("/patients/:id/relationships", h.CreateRelationship)
	rel.GET("/patients/:id/relationships", h.ListRelationships)
	rel.POST("/relationships/:id/end", h.EndRelationship)
}

type createPatientRequest struct {
	MRN          string     `json:"mrn"`
	DisplayName  string     `json:"display_name"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.MRN == "" || req.DisplayName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mrn and display_name are required")
	}
	p := &Patient{MRN: req.MRN, DisplayName: req.DisplayName, DepartmentID: req.DepartmentID, Active: true}
	if err := h.repo.CreatePatient(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// GetPatient hides access-control structure from probers: a caller without a
// grant gets the same 404 as a caller asking for a patient that does not
// exist.
func (h *Handler) GetPatient(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	caller := auth.UserIDFromContext(ctx)
	if err := h.svc.RequireAccess(ctx, id, caller); err != nil {
		return errs.AsOpaqueNotFound(err, "patient %s not found", id)
	}
	p, err := h.repo.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Probe reports which rule admits the caller, for support tooling. It never
// hides the decision: the endpoint requires authentication already, and
// returns a denial as data rather than an error.
func (h *Handler) Probe(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	caller := auth.UserIDFromContext(ctx)
	d, err := h.svc.Check(ctx, id, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": id,
		"user_id":    caller,
		"allowed":    d != DecisionDenied,
		"decision":   d,
	})
}

type createRelationshipRequest struct {
	ClinicianID uuid.UUID `json:"clinician_id"`
	Kind        string    `json:"kind"`
}

func (h *Handler) CreateRelationship(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req createRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ClinicianID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "clinician_id is required")
	}
	if req.Kind == "" {
		req.Kind = "attending"
	}

	rel := &CareRelationship{PatientID: patientID, ClinicianID: req.ClinicianID, Kind: req.Kind}
	if err := h.repo.CreateRelationship(c.Request().Context(), rel); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rel)
}

func (h *Handler) ListRelationships(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	rels, err := h.repo.ListRelationshipsForPatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	if rels == nil {
		rels = []*CareRelationship{}
	}
	return c.JSON(http.StatusOK, rels)
}

func (h *Handler) EndRelationship(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.repo.EndRelationship(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
