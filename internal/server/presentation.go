package server

import (
	"time"

	"github.com/smallbiznis/learnboard/internal/learningstats/bucket"
	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
)

// statsView is the dashboard shape of a projection. Hours are rounded to one
// decimal; fields that do not apply to the scope are omitted.
type statsView struct {
	ScopeKind       string             `json:"scope_kind"`
	ScopeID         string             `json:"scope_id"`
	TotalLearnings  int                `json:"total_learnings"`
	TotalHours      float64            `json:"total_hours"`
	LearningsByType map[string]int     `json:"learnings_by_type"`
	HoursByType     map[string]float64 `json:"hours_by_type"`
	ActivityDates   []activityDateView `json:"activity_dates"`

	CurrentStreak     *int     `json:"current_streak,omitempty"`
	LongestStreak     *int     `json:"longest_streak,omitempty"`
	AvgSessionMinutes *float64 `json:"avg_session_minutes,omitempty"`

	ActiveLearners       *int `json:"active_learners,omitempty"`
	MemberCount          *int `json:"member_count,omitempty"`
	TotalActiveEmployees *int `json:"total_active_employees,omitempty"`
	TotalActiveTeams     *int `json:"total_active_teams,omitempty"`
	// Rankings are pointers so employee views omit them while an empty
	// team or org still renders [].
	TopLearners *[]statsdomain.LearnerRank `json:"top_learners,omitempty"`
	TopTeams    *[]statsdomain.TeamRank    `json:"top_teams,omitempty"`

	Precomputed bool      `json:"precomputed"`
	WindowDays  int       `json:"window_days"`
	AsOf        string    `json:"as_of"`
	ComputedAt  time.Time `json:"computed_at"`
}

type activityDateView struct {
	Date  string  `json:"date"`
	Count int     `json:"count"`
	Hours float64 `json:"hours"`
}

func newStatsView(p *statsdomain.Projection, precomputed bool) statsView {
	view := statsView{
		ScopeKind:       string(p.Scope.Kind),
		ScopeID:         p.Scope.ID,
		TotalLearnings:  p.TotalLearnings,
		TotalHours:      p.TotalHours,
		LearningsByType: p.LearningsByType,
		HoursByType:     p.HoursByType,
		ActivityDates:   make([]activityDateView, 0, len(p.ActivityDates)),
		Precomputed:     precomputed,
		WindowDays:      p.WindowDays,
		AsOf:            p.AsOf.String(),
		ComputedAt:      p.ComputedAt,
	}
	if view.LearningsByType == nil {
		view.LearningsByType = map[string]int{}
	}
	if view.HoursByType == nil {
		view.HoursByType = map[string]float64{}
	}
	for _, b := range p.ActivityDates {
		view.ActivityDates = append(view.ActivityDates, activityDateView{
			Date:  b.Date.String(),
			Count: b.Count,
			Hours: bucket.Hours(b.Minutes),
		})
	}

	if streak, ok := p.StreakState(); ok {
		view.CurrentStreak = &streak.Current
		view.LongestStreak = &streak.Longest
		view.AvgSessionMinutes = &streak.AvgSessionMinutes
	}

	switch {
	case p.Team != nil:
		view.ActiveLearners = &p.Team.ActiveLearners
		view.MemberCount = &p.Team.MemberCount
		view.TopLearners = nonNil(p.Team.TopLearners)
	case p.Org != nil:
		view.TotalActiveEmployees = &p.Org.TotalActiveEmployees
		view.TotalActiveTeams = &p.Org.TotalActiveTeams
		view.TopLearners = nonNil(p.Org.TopLearners)
		view.TopTeams = nonNil(p.Org.TopTeams)
	}
	return view
}

func nonNil[T any](in []T) *[]T {
	if in == nil {
		in = []T{}
	}
	return &in
}
