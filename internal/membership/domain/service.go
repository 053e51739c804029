package domain

import (
	"context"
	"errors"
)

// Resolver answers read-only membership questions at the time of the call.
// Membership is a snapshot; no history of team changes is kept.
type Resolver interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetTeam(ctx context.Context, id string) (*Team, error)
	MembersOf(ctx context.Context, teamID string) ([]Employee, error)
	TeamsOf(ctx context.Context, orgID string) ([]Team, error)
	// TeamOfEmployee returns nil without error for unassigned employees.
	TeamOfEmployee(ctx context.Context, employeeID string) (*Team, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrEmployeeNotFound = errors.New("employee_not_found")
	ErrTeamNotFound     = errors.New("team_not_found")
)
