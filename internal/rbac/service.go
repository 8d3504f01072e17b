package rbac

import (
	"context"
	"errors"
)

// ErrUnknownRole indicates the role has no entry in the policy.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Service resolves permissions for roles.
type Service struct {
	policy Policy
}

// NewService constructs a Service for policy. A nil policy uses DefaultPolicy.
func NewService(policy Policy) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Service{policy: Policy{}.Merge(policy)}
}

// EffectivePermissions returns the permissions granted to role.
func (s *Service) EffectivePermissions(ctx context.Context, role string) ([]string, error) {
	perms, ok := s.policy[normalize(role)]
	if !ok {
		return nil, ErrUnknownRole
	}
	return perms, nil
}

// Can reports whether role holds perm.
func (s *Service) Can(role, perm string) bool {
	return hasAnyPermission(s.policy[normalize(role)], []string{normalize(perm)})
}
