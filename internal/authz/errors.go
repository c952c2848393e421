package authz

import (
	"fmt"
	"strings"

	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// DenialTier identifies which check rejected the request. The tier is kept
// for logging and tests; external messages stay generic about other tenants.
type DenialTier string

const (
	TierPermission DenialTier = "permission"
	TierContext    DenialTier = "context"
	TierOwnership  DenialTier = "ownership"
	TierTenant     DenialTier = "tenant"
)

// Forbidden is a rule-based denial. It is distinct from infrastructure
// failures: a Forbidden means the principal was resolved and the rules said
// no, never that the answer could not be determined.
type Forbidden struct {
	Tier    DenialTier
	Message string
}

func (e *Forbidden) Error() string {
	return e.Message
}

// Unwrap lets callers match with errors.Is(err, shared.ErrForbidden).
func (e *Forbidden) Unwrap() error {
	return shared.ErrForbidden
}

// NewForbidden constructs a denial for the given tier.
func NewForbidden(tier DenialTier, message string) *Forbidden {
	return &Forbidden{Tier: tier, Message: message}
}

func forbiddenRequired(required string) *Forbidden {
	return NewForbidden(TierPermission, fmt.Sprintf("Insufficient permissions. Required: %s", required))
}

func forbiddenRequiredAny(required []string) *Forbidden {
	return NewForbidden(TierPermission, fmt.Sprintf("Insufficient permissions. Required one of: %s", strings.Join(required, ", ")))
}

func forbiddenRequiredAll(required []string) *Forbidden {
	return NewForbidden(TierPermission, fmt.Sprintf("Insufficient permissions. Required all of: %s", strings.Join(required, ", ")))
}
