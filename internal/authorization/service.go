package authorization

import (
	"context"
	"errors"

	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
)

// Requester is the authenticated employee behind a request. Role and TeamID
// come from the membership record, not from the caller.
type Requester struct {
	EmployeeID string
	Role       string
	TeamID     string
}

type Service interface {
	// Resolve loads the requester for an employee id asserted by the gateway.
	Resolve(ctx context.Context, employeeID string) (Requester, error)
	// CanView returns nil when requester may read statistics or events of scope.
	CanView(ctx context.Context, requester Requester, scope statsdomain.Scope) error
	Authorize(ctx context.Context, requester Requester, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
