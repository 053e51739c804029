package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-sql/civil"
)

type ActivityType string

const (
	ActivityCourse     ActivityType = "course"
	ActivityBook       ActivityType = "book"
	ActivityVideo      ActivityType = "video"
	ActivityConference ActivityType = "conference"
	ActivityOther      ActivityType = "other"
)

// Known reports whether t is one of the built-in activity types.
func (t ActivityType) Known() bool {
	switch t {
	case ActivityCourse, ActivityBook, ActivityVideo, ActivityConference, ActivityOther:
		return true
	default:
		return false
	}
}

// NormalizeActivityType lower-cases and trims raw input. Empty input maps to other.
func NormalizeActivityType(raw string) ActivityType {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ActivityOther
	}
	return ActivityType(value)
}

// Event is an immutable learning fact. OccurredOn is already expressed in the
// stats timezone.
type Event struct {
	ID              snowflake.ID `json:"id"`
	EmployeeID      string       `json:"employee_id"`
	ActivityType    ActivityType `json:"activity_type"`
	Title           string       `json:"title,omitempty"`
	OccurredOn      civil.Date   `json:"occurred_on"`
	DurationMinutes int          `json:"duration_minutes"`
	Tags            []string     `json:"tags,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// ListFilter narrows an event log read. A nil EmployeeIDs means every employee;
// an empty non-nil slice matches nothing.
type ListFilter struct {
	EmployeeIDs []string
	Since       *civil.Date
}
