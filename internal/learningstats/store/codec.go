package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-sql/civil"
	"github.com/smallbiznis/learnboard/internal/learningstats/bucket"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
)

// SchemaVersion is bumped whenever the stored record layout changes.
const SchemaVersion = 1

// The wire structs fix field order. Hours are never stored: they are derived
// from integer minutes on Parse, so a record re-encodes to identical bytes.
type record struct {
	SchemaVersion   *int           `json:"schema_version"`
	Kind            string         `json:"kind"`
	ScopeID         string         `json:"scope_id"`
	AsOf            string         `json:"as_of"`
	WindowDays      *int           `json:"window_days"`
	ComputedAt      string         `json:"computed_at"`
	TotalLearnings  *int           `json:"total_learnings"`
	TotalMinutes    *int           `json:"total_minutes"`
	LearningsByType map[string]int `json:"learnings_by_type"`
	MinutesByType   map[string]int `json:"minutes_by_type"`
	ActivityDates   []bucketRecord `json:"activity_dates"`
	Streak          *streakRecord  `json:"streak,omitempty"`
	Team            *teamRecord    `json:"team,omitempty"`
	Org             *orgRecord     `json:"org,omitempty"`
}

type bucketRecord struct {
	Date    string `json:"date"`
	Count   int    `json:"count"`
	Minutes int    `json:"minutes"`
}

type streakRecord struct {
	Current           int     `json:"current"`
	Longest           int     `json:"longest"`
	AvgSessionMinutes float64 `json:"avg_session_minutes"`
}

type learnerRecord struct {
	EmployeeID     string `json:"employee_id"`
	Name           string `json:"name"`
	TotalLearnings int    `json:"total_learnings"`
	TotalMinutes   int    `json:"total_minutes"`
}

type teamRankRecord struct {
	TeamID         string `json:"team_id"`
	Name           string `json:"name"`
	TotalLearnings int    `json:"total_learnings"`
	TotalMinutes   int    `json:"total_minutes"`
	ActiveLearners int    `json:"active_learners"`
}

type teamRecord struct {
	ActiveLearners int             `json:"active_learners"`
	MemberCount    int             `json:"member_count"`
	TopLearners    []learnerRecord `json:"top_learners"`
}

type orgRecord struct {
	TotalActiveEmployees int              `json:"total_active_employees"`
	TotalActiveTeams     int              `json:"total_active_teams"`
	TopTeams             []teamRankRecord `json:"top_teams"`
	TopLearners          []learnerRecord  `json:"top_learners"`
}

// Encode serializes a projection deterministically.
func Encode(p domain.Projection) ([]byte, error) {
	if err := checkVariant(p); err != nil {
		return nil, err
	}

	version := SchemaVersion
	window := p.WindowDays
	learnings := p.TotalLearnings
	minutes := p.TotalMinutes
	rec := record{
		SchemaVersion:   &version,
		Kind:            string(p.Scope.Kind),
		ScopeID:         p.Scope.ID,
		AsOf:            p.AsOf.String(),
		WindowDays:      &window,
		ComputedAt:      p.ComputedAt.UTC().Format(time.RFC3339Nano),
		TotalLearnings:  &learnings,
		TotalMinutes:    &minutes,
		LearningsByType: nonNilMap(p.LearningsByType),
		MinutesByType:   nonNilMap(p.MinutesByType),
		ActivityDates:   make([]bucketRecord, 0, len(p.ActivityDates)),
	}
	for _, b := range p.ActivityDates {
		rec.ActivityDates = append(rec.ActivityDates, bucketRecord{Date: b.Date.String(), Count: b.Count, Minutes: b.Minutes})
	}

	switch p.Scope.Kind {
	case domain.ScopeEmployee:
		rec.Streak = encodeStreak(p.Employee.Streak)
	case domain.ScopeTeam:
		rec.Streak = encodeStreak(p.Team.Streak)
		rec.Team = &teamRecord{
			ActiveLearners: p.Team.ActiveLearners,
			MemberCount:    p.Team.MemberCount,
			TopLearners:    encodeLearners(p.Team.TopLearners),
		}
	case domain.ScopeOrg:
		org := &orgRecord{
			TotalActiveEmployees: p.Org.TotalActiveEmployees,
			TotalActiveTeams:     p.Org.TotalActiveTeams,
			TopTeams:             make([]teamRankRecord, 0, len(p.Org.TopTeams)),
			TopLearners:          encodeLearners(p.Org.TopLearners),
		}
		for _, t := range p.Org.TopTeams {
			org.TopTeams = append(org.TopTeams, teamRankRecord{
				TeamID:         t.TeamID,
				Name:           t.Name,
				TotalLearnings: t.TotalLearnings,
				TotalMinutes:   t.TotalMinutes,
				ActiveLearners: t.ActiveLearners,
			})
		}
		rec.Org = org
	}

	return json.Marshal(rec)
}

// Parse decodes a stored record. Any structural problem is reported as
// domain.ErrMalformedProjection.
func Parse(data []byte) (domain.Projection, error) {
	var rec record
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&rec); err != nil {
		return domain.Projection{}, malformed("decode: %v", err)
	}
	if dec.More() {
		return domain.Projection{}, malformed("trailing data")
	}

	switch {
	case rec.SchemaVersion == nil:
		return domain.Projection{}, malformed("missing schema_version")
	case *rec.SchemaVersion != SchemaVersion:
		return domain.Projection{}, malformed("unsupported schema_version %d", *rec.SchemaVersion)
	case rec.ScopeID == "":
		return domain.Projection{}, malformed("missing scope_id")
	case rec.WindowDays == nil:
		return domain.Projection{}, malformed("missing window_days")
	case rec.TotalLearnings == nil:
		return domain.Projection{}, malformed("missing total_learnings")
	case rec.TotalMinutes == nil:
		return domain.Projection{}, malformed("missing total_minutes")
	case rec.LearningsByType == nil:
		return domain.Projection{}, malformed("missing learnings_by_type")
	case rec.MinutesByType == nil:
		return domain.Projection{}, malformed("missing minutes_by_type")
	case rec.ActivityDates == nil:
		return domain.Projection{}, malformed("missing activity_dates")
	}

	kind := domain.ScopeKind(rec.Kind)
	if !kind.Valid() {
		return domain.Projection{}, malformed("unknown kind %q", rec.Kind)
	}

	asOf, err := civil.ParseDate(rec.AsOf)
	if err != nil {
		return domain.Projection{}, malformed("as_of: %v", err)
	}
	computedAt, err := time.Parse(time.RFC3339Nano, rec.ComputedAt)
	if err != nil {
		return domain.Projection{}, malformed("computed_at: %v", err)
	}

	p := domain.Projection{
		Scope: domain.Scope{Kind: kind, ID: rec.ScopeID},
		Base: domain.Base{
			TotalLearnings:  *rec.TotalLearnings,
			TotalMinutes:    *rec.TotalMinutes,
			LearningsByType: rec.LearningsByType,
			MinutesByType:   rec.MinutesByType,
			ActivityDates:   make([]domain.ActivityBucket, 0, len(rec.ActivityDates)),
			ComputedAt:      computedAt.UTC(),
			AsOf:            asOf,
			WindowDays:      *rec.WindowDays,
		},
	}
	for i, b := range rec.ActivityDates {
		date, err := civil.ParseDate(b.Date)
		if err != nil {
			return domain.Projection{}, malformed("activity_dates[%d]: %v", i, err)
		}
		if i > 0 && !p.ActivityDates[i-1].Date.Before(date) {
			return domain.Projection{}, malformed("activity_dates not strictly ascending at %d", i)
		}
		p.ActivityDates = append(p.ActivityDates, domain.ActivityBucket{Date: date, Count: b.Count, Minutes: b.Minutes})
	}
	bucket.FillHours(&p.Base)

	switch kind {
	case domain.ScopeEmployee:
		if rec.Streak == nil {
			return domain.Projection{}, malformed("employee record missing streak")
		}
		p.Employee = &domain.EmployeeExtras{Streak: decodeStreak(rec.Streak)}
	case domain.ScopeTeam:
		if rec.Streak == nil || rec.Team == nil {
			return domain.Projection{}, malformed("team record missing streak or team block")
		}
		p.Team = &domain.TeamExtras{
			Streak:         decodeStreak(rec.Streak),
			ActiveLearners: rec.Team.ActiveLearners,
			MemberCount:    rec.Team.MemberCount,
			TopLearners:    decodeLearners(rec.Team.TopLearners),
		}
	case domain.ScopeOrg:
		if rec.Org == nil {
			return domain.Projection{}, malformed("org record missing org block")
		}
		org := &domain.OrgExtras{
			TotalActiveEmployees: rec.Org.TotalActiveEmployees,
			TotalActiveTeams:     rec.Org.TotalActiveTeams,
			TopTeams:             make([]domain.TeamRank, 0, len(rec.Org.TopTeams)),
			TopLearners:          decodeLearners(rec.Org.TopLearners),
		}
		for _, t := range rec.Org.TopTeams {
			org.TopTeams = append(org.TopTeams, domain.TeamRank{
				TeamID:         t.TeamID,
				Name:           t.Name,
				TotalLearnings: t.TotalLearnings,
				TotalMinutes:   t.TotalMinutes,
				TotalHours:     bucket.Hours(t.TotalMinutes),
				ActiveLearners: t.ActiveLearners,
			})
		}
		p.Org = org
	}

	return p, nil
}

func checkVariant(p domain.Projection) error {
	ok := false
	switch p.Scope.Kind {
	case domain.ScopeEmployee:
		ok = p.Employee != nil && p.Team == nil && p.Org == nil
	case domain.ScopeTeam:
		ok = p.Team != nil && p.Employee == nil && p.Org == nil
	case domain.ScopeOrg:
		ok = p.Org != nil && p.Employee == nil && p.Team == nil
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidScope, p.Scope.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: variant does not match kind %q", domain.ErrInvalidScope, p.Scope.Kind)
	}
	if p.Scope.ID == "" {
		return fmt.Errorf("%w: empty scope id", domain.ErrInvalidScope)
	}
	return nil
}

func encodeStreak(s domain.Streak) *streakRecord {
	return &streakRecord{Current: s.Current, Longest: s.Longest, AvgSessionMinutes: s.AvgSessionMinutes}
}

func decodeStreak(s *streakRecord) domain.Streak {
	return domain.Streak{Current: s.Current, Longest: s.Longest, AvgSessionMinutes: s.AvgSessionMinutes}
}

func encodeLearners(in []domain.LearnerRank) []learnerRecord {
	out := make([]learnerRecord, 0, len(in))
	for _, l := range in {
		out = append(out, learnerRecord{
			EmployeeID:     l.EmployeeID,
			Name:           l.Name,
			TotalLearnings: l.TotalLearnings,
			TotalMinutes:   l.TotalMinutes,
		})
	}
	return out
}

func decodeLearners(in []learnerRecord) []domain.LearnerRank {
	out := make([]domain.LearnerRank, 0, len(in))
	for _, l := range in {
		out = append(out, domain.LearnerRank{
			EmployeeID:     l.EmployeeID,
			Name:           l.Name,
			TotalLearnings: l.TotalLearnings,
			TotalMinutes:   l.TotalMinutes,
			TotalHours:     bucket.Hours(l.TotalMinutes),
		})
	}
	return out
}

func nonNilMap(in map[string]int) map[string]int {
	if in == nil {
		return map[string]int{}
	}
	return in
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedProjection, fmt.Sprintf(format, args...))
}
