package assignment

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Handler exposes role assignment endpoints.
type Handler struct {
	svc      *Service
	gate     *authz.Gate
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the assignment handler.
func NewHandler(svc *Service, gate *authz.Gate, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		gate:     gate,
		validate: validator.New(),
		logger:   logger,
	}
}

type assignmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	PrincipalID uuid.UUID  `json:"principal_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	RoleID      uuid.UUID  `json:"role_id"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AssignedBy  uuid.UUID  `json:"assigned_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

type assignRequest struct {
	PrincipalID uuid.UUID  `json:"principal_id" validate:"required"`
	RoleID      uuid.UUID  `json:"role_id" validate:"required"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Assign grants a role to a principal in the caller's tenant. The route
// middleware already verified role.assign; this handler re-checks with the
// contextual rules because they need the target's current roles.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())

	targetRoles, err := h.svc.RoleNamesFor(r.Context(), req.PrincipalID, id.TenantID)
	if err != nil {
		h.fail(w, "load target roles", err)
		return
	}
	_, err = h.gate.AuthorizeContextual(r.Context(), id.PrincipalID, id.TenantID, authz.PermRoleAssign, authz.RuleContext{
		TargetPrincipalID: req.PrincipalID,
		TargetRoles:       targetRoles,
	})
	if err != nil {
		h.fail(w, "authorize assign", err)
		return
	}

	created, err := h.svc.Assign(r.Context(), AssignInput{
		PrincipalID: req.PrincipalID,
		TenantID:    id.TenantID,
		RoleID:      req.RoleID,
		ExpiresAt:   req.ExpiresAt,
		ActorID:     id.PrincipalID,
	})
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(created))
}

// List returns every assignment of a principal, active or not.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	assignments, err := h.svc.ListForPrincipal(r.Context(), principalID, id.TenantID)
	if err != nil {
		h.fail(w, "list assignments", err)
		return
	}
	out := make([]assignmentResponse, len(assignments))
	for i, assignment := range assignments {
		out[i] = toAssignmentResponse(assignment)
	}
	httpx.JSON(w, http.StatusOK, out)
}

type effectiveResponse struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

// Effective returns the resolved permission set of a principal, as the gate
// would see it. Intended for admin introspection and support tooling.
func (h *Handler) Effective(w http.ResponseWriter, r *http.Request) {
	principalID, err := uuid.Parse(chi.URLParam(r, "principalID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid principal id")
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	res, err := h.gate.Resolve(r.Context(), principalID, id.TenantID)
	if err != nil {
		h.fail(w, "resolve effective permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, effectiveResponse{
		PrincipalID: principalID,
		TenantID:    id.TenantID,
		Roles:       res.Roles,
		Permissions: res.Permissions.Names(),
	})
}

// Deactivate flips an assignment inactive.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid assignment id")
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	if err := h.svc.Deactivate(r.Context(), assignmentID, id.TenantID, id.PrincipalID); err != nil {
		h.fail(w, "deactivate assignment", err)
		return
	}
	httpx.NoContent(w)
}

// Revoke deletes an assignment.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid assignment id")
		return
	}
	id, _ := shared.IdentityFromContext(r.Context())
	if err := h.svc.Revoke(r.Context(), assignmentID, id.TenantID, id.PrincipalID); err != nil {
		h.fail(w, "revoke assignment", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var fb *authz.Forbidden
	if errors.As(err, &fb) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", fb.Message)
		return
	}
	if h.logger != nil {
		h.logger.Error("assignment "+op, slog.Any("error", err))
	}
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "assignment not found")
		return
	}
	httpx.RespondError(w, err)
}

func toAssignmentResponse(a Assignment) assignmentResponse {
	return assignmentResponse{
		ID:          a.ID,
		PrincipalID: a.PrincipalID,
		TenantID:    a.TenantID,
		RoleID:      a.RoleID,
		IsActive:    a.IsActive,
		ExpiresAt:   a.ExpiresAt,
		AssignedBy:  a.AssignedBy,
		CreatedAt:   a.CreatedAt,
	}
}
