package cache

import (
	"strings"
	"time"

	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
)

const defaultEmployeeTTL = 30 * time.Second

// EmployeeCache stores hot-path membership lookups for request authorization.
// Role changes become visible once the entry expires.
type EmployeeCache interface {
	GetEmployee(employeeID string) (membershipdomain.Employee, bool)
	SetEmployee(employee membershipdomain.Employee)
	GetTeamOf(employeeID string) (string, bool)
	SetTeamOf(employeeID, teamID string)
}

type employeeCache struct {
	employees Cache[string, membershipdomain.Employee]
	teams     Cache[string, string]
	ttl       time.Duration
}

// NewEmployeeCache returns an in-memory cache tuned for authorization.
func NewEmployeeCache() EmployeeCache {
	return &employeeCache{
		employees: NewTTLCache[string, membershipdomain.Employee](),
		teams:     NewTTLCache[string, string](),
		ttl:       defaultEmployeeTTL,
	}
}

func (c *employeeCache) GetEmployee(employeeID string) (membershipdomain.Employee, bool) {
	return c.employees.Get(cacheKey(employeeID))
}

func (c *employeeCache) SetEmployee(employee membershipdomain.Employee) {
	if strings.TrimSpace(employee.ID) == "" {
		return
	}
	c.employees.Set(cacheKey(employee.ID), employee, c.ttl)
}

// GetTeamOf returns "" with ok true for a cached unassigned employee.
func (c *employeeCache) GetTeamOf(employeeID string) (string, bool) {
	return c.teams.Get(cacheKey(employeeID))
}

func (c *employeeCache) SetTeamOf(employeeID, teamID string) {
	if strings.TrimSpace(employeeID) == "" {
		return
	}
	c.teams.Set(cacheKey(employeeID), teamID, c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
