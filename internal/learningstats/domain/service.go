package domain

import (
	"context"
	"errors"
)

// Service is the read API of the statistics engine.
type Service interface {
	GetEmployeeStats(ctx context.Context, employeeID string, opts Options) (*Projection, error)
	GetTeamStats(ctx context.Context, teamID string, opts Options) (*Projection, error)
	GetOrgStats(ctx context.Context, opts Options) (*Projection, error)
	// Recompute rebuilds the all-time projection for scope and stores it.
	Recompute(ctx context.Context, scope Scope) (*Projection, error)
}

// Store persists one projection per scope. Load returns nil, nil when absent.
type Store interface {
	Load(ctx context.Context, scope Scope) (*Projection, error)
	Save(ctx context.Context, projection Projection) error
	Delete(ctx context.Context, scope Scope) error
	DeleteAll(ctx context.Context) error
}

var (
	ErrInvalidScope        = errors.New("invalid_scope")
	ErrInvalidWindow       = errors.New("invalid_window")
	ErrScopeNotFound       = errors.New("scope_not_found")
	ErrMalformedProjection = errors.New("malformed_projection")
	ErrEventLogUnavailable = errors.New("event_log_unavailable")
	ErrStoreWriteFailed    = errors.New("store_write_failed")
	// ErrScopeBusy means another instance holds the scope lock; retry later.
	ErrScopeBusy = errors.New("scope_busy")
)
