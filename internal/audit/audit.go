// Package audit stores the append-only trail of authorization-relevant
// mutations: role edits and assignment changes. Formatting and export are
// the host application's concern.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one recorded mutation.
type Event struct {
	ID        uuid.UUID
	ActorID   uuid.UUID
	TenantID  uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	Detail    map[string]string
	CreatedAt time.Time
}

// Recorder persists events. Mutation paths treat recording as best-effort.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Service provides PostgreSQL backed audit storage.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService constructs the audit service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}
}

// Record appends one event.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.pool == nil {
		return nil
	}
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("audit: encode detail: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, actor_id, tenant_id, action, entity, entity_id, detail, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, now())`,
		event.ActorID, event.TenantID, event.Action, event.Entity, event.EntityID, detail)
	if err != nil {
		s.logger.Error("audit record", slog.String("action", event.Action), slog.Any("error", err))
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	TenantID uuid.UUID
	Entity   string
	Action   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Result wraps timeline rows with paging info.
type Result struct {
	Events  []Event
	Page    int
	HasNext bool
}

// Timeline returns events for a tenant, newest first, with paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("audit: service not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, `
		SELECT id, actor_id, tenant_id, action, entity, entity_id, detail, created_at
		FROM audit_events
		WHERE tenant_id = $1
		  AND ($2 = '' OR entity = $2)
		  AND ($3 = '' OR action = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC
		OFFSET $6 LIMIT $7`,
		filters.TenantID, filters.Entity, filters.Action,
		nullableTime(filters.From), nullableTime(filters.To),
		offset, pageSize+1)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var detail []byte
		if err := rows.Scan(&event.ID, &event.ActorID, &event.TenantID, &event.Action, &event.Entity, &event.EntityID, &detail, &event.CreatedAt); err != nil {
			return Result{}, fmt.Errorf("audit: scan event: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return Result{}, fmt.Errorf("audit: decode detail: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}

	hasNext := len(events) > pageSize
	if hasNext {
		events = events[:pageSize]
	}
	return Result{Events: events, Page: page, HasNext: hasNext}, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
