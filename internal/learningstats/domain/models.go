package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

type ScopeKind string

const (
	ScopeEmployee ScopeKind = "employee"
	ScopeTeam     ScopeKind = "team"
	ScopeOrg      ScopeKind = "org"
)

func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeEmployee, ScopeTeam, ScopeOrg:
		return true
	default:
		return false
	}
}

// Scope identifies one projection: an employee, a team or the organization.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func EmployeeScope(id string) Scope { return Scope{Kind: ScopeEmployee, ID: id} }
func TeamScope(id string) Scope     { return Scope{Kind: ScopeTeam, ID: id} }
func OrgScope(id string) Scope      { return Scope{Kind: ScopeOrg, ID: id} }

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

// ParseScope reads the "kind:id" form produced by Scope.String.
func ParseScope(raw string) (Scope, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(raw), ":")
	scope := Scope{Kind: ScopeKind(kind), ID: strings.TrimSpace(id)}
	if !ok || !scope.Kind.Valid() || scope.ID == "" {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
	return scope, nil
}

// ActivityBucket aggregates one calendar day with at least one event.
type ActivityBucket struct {
	Date    civil.Date `json:"date"`
	Count   int        `json:"count"`
	Minutes int        `json:"minutes"`
}

// Base holds the fields shared by every scope. Minutes are the exact source
// of truth; hour figures are derived with one-decimal rounding.
type Base struct {
	TotalLearnings  int                `json:"total_learnings"`
	TotalMinutes    int                `json:"total_minutes"`
	TotalHours      float64            `json:"total_hours"`
	LearningsByType map[string]int     `json:"learnings_by_type"`
	MinutesByType   map[string]int     `json:"minutes_by_type"`
	HoursByType     map[string]float64 `json:"hours_by_type"`
	ActivityDates   []ActivityBucket   `json:"activity_dates"`
	ComputedAt      time.Time          `json:"computed_at"`
	AsOf            civil.Date         `json:"as_of"`
	// WindowDays is 0 for all-time projections.
	WindowDays int `json:"window_days"`
}

type Streak struct {
	Current           int     `json:"current_streak"`
	Longest           int     `json:"longest_streak"`
	AvgSessionMinutes float64 `json:"avg_session_minutes"`
}

type LearnerRank struct {
	EmployeeID     string  `json:"employee_id"`
	Name           string  `json:"name,omitempty"`
	TotalLearnings int     `json:"total_learnings"`
	TotalMinutes   int     `json:"total_minutes"`
	TotalHours     float64 `json:"total_hours"`
}

type TeamRank struct {
	TeamID         string  `json:"team_id"`
	Name           string  `json:"name,omitempty"`
	TotalLearnings int     `json:"total_learnings"`
	TotalMinutes   int     `json:"total_minutes"`
	TotalHours     float64 `json:"total_hours"`
	ActiveLearners int     `json:"active_learners"`
}

type EmployeeExtras struct {
	Streak
}

type TeamExtras struct {
	Streak
	ActiveLearners int           `json:"active_learners"`
	MemberCount    int           `json:"member_count"`
	TopLearners    []LearnerRank `json:"top_learners"`
}

type OrgExtras struct {
	TotalActiveEmployees int           `json:"total_active_employees"`
	TotalActiveTeams     int           `json:"total_active_teams"`
	TopTeams             []TeamRank    `json:"top_teams"`
	TopLearners          []LearnerRank `json:"top_learners"`
}

// Projection is the derived statistics record for one scope. Exactly one of
// Employee, Team or Org is set, matching Scope.Kind.
type Projection struct {
	Scope Scope
	Base
	Employee *EmployeeExtras
	Team     *TeamExtras
	Org      *OrgExtras
}

// StreakState returns the streak state for employee and team projections.
func (p Projection) StreakState() (Streak, bool) {
	switch {
	case p.Employee != nil:
		return p.Employee.Streak, true
	case p.Team != nil:
		return p.Team.Streak, true
	default:
		return Streak{}, false
	}
}

// Clone returns a deep copy so cached values can be handed out safely.
func (p Projection) Clone() Projection {
	out := p
	out.LearningsByType = cloneMap(p.LearningsByType)
	out.MinutesByType = cloneMap(p.MinutesByType)
	out.HoursByType = cloneMap(p.HoursByType)
	if p.ActivityDates != nil {
		out.ActivityDates = append([]ActivityBucket(nil), p.ActivityDates...)
	}
	if p.Employee != nil {
		e := *p.Employee
		out.Employee = &e
	}
	if p.Team != nil {
		t := *p.Team
		if p.Team.TopLearners != nil {
			t.TopLearners = append([]LearnerRank(nil), p.Team.TopLearners...)
		}
		out.Team = &t
	}
	if p.Org != nil {
		o := *p.Org
		if p.Org.TopTeams != nil {
			o.TopTeams = append([]TeamRank(nil), p.Org.TopTeams...)
		}
		if p.Org.TopLearners != nil {
			o.TopLearners = append([]LearnerRank(nil), p.Org.TopLearners...)
		}
		out.Org = &o
	}
	return out
}

func cloneMap[V any](in map[string]V) map[string]V {
	if in == nil {
		return nil
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Options controls how a stats read is served.
type Options struct {
	// Precomputed serves the stored all-time projection, creating it on first access.
	Precomputed bool
	// WindowDays bounds the on-the-fly path. Zero means the configured default.
	WindowDays int
}

// Source labels where a served projection came from.
type Source string

const (
	SourceStored   Source = "stored"
	SourceComputed Source = "computed"
	SourceFallback Source = "fallback"
)
