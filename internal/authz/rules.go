package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RuleContext carries the situational facts a contextual rule may inspect.
// Callers fill in whatever the action knows about its target; rules that
// need absent fields deny.
type RuleContext struct {
	TargetPrincipalID uuid.UUID
	TargetRoles       []string
	Attributes        map[string]string
}

// RuleFunc is a pure predicate over the grant and the context. It returns
// nil to allow, a *Forbidden to deny, or any other error for infrastructure
// failures.
type RuleFunc func(ctx context.Context, grant Grant, rc RuleContext) error

// ContextualRule is one named constraint attached to a permission.
type ContextualRule struct {
	Name  string
	Check RuleFunc
}

// RuleRegistry holds contextual rules keyed by permission name. Permissions
// without rules skip the contextual step entirely.
type RuleRegistry struct {
	rules map[string][]ContextualRule
}

// NewRuleRegistry constructs an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{rules: make(map[string][]ContextualRule)}
}

// Register attaches a rule to a permission. Registration order is the
// evaluation order.
func (r *RuleRegistry) Register(permission string, rule ContextualRule) {
	permission = NormalizePermission(permission)
	r.rules[permission] = append(r.rules[permission], rule)
}

// RulesFor returns the rules registered for a permission.
func (r *RuleRegistry) RulesFor(permission string) []ContextualRule {
	if r == nil {
		return nil
	}
	return r.rules[NormalizePermission(permission)]
}

// DefaultRules builds the registry of production contextual constraints.
func DefaultRules() *RuleRegistry {
	registry := NewRuleRegistry()
	registry.Register(PermRoleAssign, ContextualRule{
		Name:  "supervisor-assigns-field-roles-only",
		Check: supervisorAssignScope,
	})
	return registry
}

// supervisorAssignScope limits who a supervisor may hand roles to: without
// the admin-level grant, every role held by the target principal must be a
// field role. Admin-level grantors skip the constraint.
func supervisorAssignScope(ctx context.Context, grant Grant, rc RuleContext) error {
	if grant.Permissions.Has(PermRoleAssignAll) {
		return nil
	}
	for _, role := range rc.TargetRoles {
		if !isFieldRole(role) {
			return NewForbidden(TierContext, fmt.Sprintf("Cannot target a principal holding role %q", role))
		}
	}
	return nil
}

func isFieldRole(name string) bool {
	switch NormalizePermission(name) {
	case "technician", "employee":
		return true
	}
	return false
}
