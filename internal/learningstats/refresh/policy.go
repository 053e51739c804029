package refresh

import (
	"context"
	"fmt"

	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
)

// Policy decides which stored projections a change makes stale.
type Policy struct {
	membership membershipdomain.Resolver
	orgID      string
}

func NewPolicy(membership membershipdomain.Resolver, orgID string) Policy {
	return Policy{membership: membership, orgID: orgID}
}

// ForEvent returns the scopes affected by a new event of employeeID: the
// employee, then its team and the organization. Employees without a team do
// not contribute to team or org totals.
func (p Policy) ForEvent(ctx context.Context, employeeID string) ([]domain.Scope, error) {
	scopes := []domain.Scope{domain.EmployeeScope(employeeID)}

	team, err := p.membership.TeamOfEmployee(ctx, employeeID)
	if err != nil {
		return scopes, fmt.Errorf("resolve team of %s: %w", employeeID, err)
	}
	if team == nil {
		return scopes, nil
	}

	scopes = append(scopes, domain.TeamScope(team.ID))
	if p.orgID != "" && team.OrgID == p.orgID {
		scopes = append(scopes, domain.OrgScope(p.orgID))
	}
	return scopes, nil
}

// ForRebuild expands a rebuild target. A nil target means every scope
// reachable from the organization: the org itself, each team and each
// team member.
func (p Policy) ForRebuild(ctx context.Context, target *domain.Scope) ([]domain.Scope, error) {
	if target != nil {
		if !target.Kind.Valid() || target.ID == "" {
			return nil, domain.ErrInvalidScope
		}
		return []domain.Scope{*target}, nil
	}
	if p.orgID == "" {
		return nil, domain.ErrInvalidScope
	}

	teams, err := p.membership.TeamsOf(ctx, p.orgID)
	if err != nil {
		return nil, err
	}

	scopes := []domain.Scope{domain.OrgScope(p.orgID)}
	for _, team := range teams {
		scopes = append(scopes, domain.TeamScope(team.ID))
		members, err := p.membership.MembersOf(ctx, team.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			scopes = append(scopes, domain.EmployeeScope(m.ID))
		}
	}
	return scopes, nil
}
