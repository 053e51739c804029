package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/learnboard/pkg/db/pagination"
)

type LogRequest struct {
	EmployeeID      string   `json:"-"`
	ActivityType    string   `json:"activity_type"`
	Title           string   `json:"title"`
	OccurredOn      string   `json:"occurred_on"`
	DurationMinutes int      `json:"duration_minutes"`
	Tags            []string `json:"tags"`
}

type ListRequest struct {
	EmployeeID string
	Since      string
	PageToken  string
	PageSize   int
}

type ListResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
}

type Service interface {
	Log(ctx context.Context, req LogRequest) (*Event, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// EventLog is the read side consumed by the stats engine.
type EventLog interface {
	ListEvents(ctx context.Context, filter ListFilter) ([]Event, error)
}

// EventObserver is notified after an event has been durably recorded.
// Implementations must not block the caller for long.
type EventObserver interface {
	OnEventLogged(ctx context.Context, event Event)
}

const (
	MaxDurationMinutes = 24 * 60
	MaxTags            = 20
	MaxTitleLength     = 200
)

var (
	ErrInvalidEmployee     = errors.New("invalid_employee")
	ErrInvalidActivityType = errors.New("invalid_activity_type")
	ErrInvalidDuration     = errors.New("invalid_duration")
	ErrInvalidDate         = errors.New("invalid_occurred_on")
	ErrFutureDate          = errors.New("occurred_on_in_future")
	ErrInvalidTags         = errors.New("invalid_tags")
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
