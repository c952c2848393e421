package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Handler exposes the tenant audit timeline.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler constructs the audit handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type eventResponse struct {
	ID        uuid.UUID         `json:"id"`
	ActorID   uuid.UUID         `json:"actor_id"`
	Action    string            `json:"action"`
	Entity    string            `json:"entity"`
	EntityID  string            `json:"entity_id"`
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type timelineResponse struct {
	Events  []eventResponse `json:"events"`
	Page    int             `json:"page"`
	HasNext bool            `json:"has_next"`
}

// Timeline returns the caller tenant's audit events, newest first.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()

	filters := TimelineFilters{
		TenantID: id.TenantID,
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil {
		filters.PageSize = size
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = to
	}

	result, err := h.svc.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	events := make([]eventResponse, len(result.Events))
	for i, event := range result.Events {
		events[i] = eventResponse{
			ID:        event.ID,
			ActorID:   event.ActorID,
			Action:    event.Action,
			Entity:    event.Entity,
			EntityID:  event.EntityID,
			Detail:    event.Detail,
			CreatedAt: event.CreatedAt,
		}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Events:  events,
		Page:    result.Page,
		HasNext: result.HasNext,
	})
}
