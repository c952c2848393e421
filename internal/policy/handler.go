package policy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Handler exposes the access-check endpoint: callers ask whether they may
// perform an action on a concrete resource before attempting it. UIs use it
// to grey out controls.
type Handler struct {
	gate     *authz.Gate
	enforcer *Enforcer
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the policy handler.
func NewHandler(gate *authz.Gate, enforcer *Enforcer, logger *slog.Logger) *Handler {
	return &Handler{
		gate:     gate,
		enforcer: enforcer,
		validate: validator.New(),
		logger:   logger,
	}
}

type accessCheckRequest struct {
	Permission   string    `json:"permission" validate:"required,min=3"`
	ResourceKind string    `json:"resource_kind" validate:"required"`
	ResourceID   uuid.UUID `json:"resource_id" validate:"required"`
}

type accessCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Tier    string `json:"tier,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Check evaluates the full-versus-own pattern for the caller against one
// resource. A denial is a successful check, not an error response.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "identity required")
		return
	}
	var req accessCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.gate.Resolve(r.Context(), id.PrincipalID, id.TenantID)
	if err != nil {
		h.logger.Error("access check resolve", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	grant := authz.Grant{
		PrincipalID: id.PrincipalID,
		TenantID:    id.TenantID,
		Permissions: res.Permissions,
		Roles:       res.Roles,
	}

	err = h.enforcer.EnforceResourceAccess(r.Context(), grant, req.Permission, req.ResourceKind, req.ResourceID)
	if err == nil {
		httpx.JSON(w, http.StatusOK, accessCheckResponse{Allowed: true})
		return
	}
	var fb *authz.Forbidden
	if errors.As(err, &fb) {
		httpx.JSON(w, http.StatusOK, accessCheckResponse{
			Allowed: false,
			Tier:    string(fb.Tier),
			Reason:  fb.Message,
		})
		return
	}
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
		return
	}
	h.logger.Error("access check", slog.Any("error", err))
	httpx.RespondError(w, err)
}
