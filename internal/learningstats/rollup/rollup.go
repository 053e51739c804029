// Package rollup combines child projections into team and organization
// projections and produces the ranked leaderboards.
package rollup

import (
	"sort"

	"github.com/golang-sql/civil"
	"github.com/smallbiznis/learnboard/internal/learningstats/bucket"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/streak"
)

const DefaultRankingSize = 10

// EmployeeMember is one team member with the projection computed for the
// same window as the team.
type EmployeeMember struct {
	ID         string
	Name       string
	Projection domain.Projection
}

// TeamMember is one team of the organization with its team projection.
type TeamMember struct {
	ID         string
	Name       string
	Projection domain.Projection
}

// AggregateTeam sums member bases and recomputes the streak on the merged
// activity dates. A team without members yields a zero projection.
func AggregateTeam(teamID string, members []EmployeeMember, asOf civil.Date, limit int) domain.Projection {
	bases := make([]domain.Base, 0, len(members))
	learners := make([]domain.LearnerRank, 0, len(members))
	active := 0
	for _, m := range members {
		bases = append(bases, m.Projection.Base)
		if m.Projection.TotalLearnings > 0 {
			active++
		}
		learners = append(learners, domain.LearnerRank{
			EmployeeID:     m.ID,
			Name:           m.Name,
			TotalLearnings: m.Projection.TotalLearnings,
			TotalMinutes:   m.Projection.TotalMinutes,
			TotalHours:     m.Projection.TotalHours,
		})
	}

	base := SumBases(bases...)
	base.AsOf = asOf
	return domain.Projection{
		Scope: domain.TeamScope(teamID),
		Base:  base,
		Team: &domain.TeamExtras{
			Streak:         streak.Compute(base.ActivityDates, asOf),
			ActiveLearners: active,
			MemberCount:    len(members),
			TopLearners:    RankLearners(learners, limit),
		},
	}
}

// AggregateOrg sums team bases. The organization has no streak. Its
// top_learners is the re-ranked union of each team's top_learners, which
// contains the global top N whenever every team list used the same N.
func AggregateOrg(orgID string, teams []TeamMember, asOf civil.Date, limit int) domain.Projection {
	bases := make([]domain.Base, 0, len(teams))
	ranks := make([]domain.TeamRank, 0, len(teams))
	var learners []domain.LearnerRank
	activeEmployees, activeTeams := 0, 0
	for _, t := range teams {
		bases = append(bases, t.Projection.Base)
		activeLearners := 0
		if t.Projection.Team != nil {
			activeLearners = t.Projection.Team.ActiveLearners
			learners = append(learners, t.Projection.Team.TopLearners...)
		}
		activeEmployees += activeLearners
		if t.Projection.TotalLearnings > 0 {
			activeTeams++
		}
		ranks = append(ranks, domain.TeamRank{
			TeamID:         t.ID,
			Name:           t.Name,
			TotalLearnings: t.Projection.TotalLearnings,
			TotalMinutes:   t.Projection.TotalMinutes,
			TotalHours:     t.Projection.TotalHours,
			ActiveLearners: activeLearners,
		})
	}

	base := SumBases(bases...)
	base.AsOf = asOf
	return domain.Projection{
		Scope: domain.OrgScope(orgID),
		Base:  base,
		Org: &domain.OrgExtras{
			TotalActiveEmployees: activeEmployees,
			TotalActiveTeams:     activeTeams,
			TopTeams:             RankTeams(ranks, limit),
			TopLearners:          RankLearners(learners, limit),
		},
	}
}

// SumBases adds counts, minutes and per-type maps field by field and merges
// activity dates. Hours are re-derived from the summed minutes.
func SumBases(bases ...domain.Base) domain.Base {
	out := domain.Base{
		LearningsByType: map[string]int{},
		MinutesByType:   map[string]int{},
	}
	seqs := make([][]domain.ActivityBucket, 0, len(bases))
	for _, b := range bases {
		out.TotalLearnings += b.TotalLearnings
		out.TotalMinutes += b.TotalMinutes
		for k, v := range b.LearningsByType {
			out.LearningsByType[k] += v
		}
		for k, v := range b.MinutesByType {
			out.MinutesByType[k] += v
		}
		seqs = append(seqs, b.ActivityDates)
	}
	out.ActivityDates = bucket.MergeBuckets(seqs...)
	bucket.FillHours(&out)
	return out
}

// RankLearners orders by hours desc, learnings desc, employee id asc and
// truncates to limit (DefaultRankingSize when limit <= 0). Duplicate ids keep
// their first occurrence.
func RankLearners(in []domain.LearnerRank, limit int) []domain.LearnerRank {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.LearnerRank, 0, len(in))
	for _, l := range in {
		if _, ok := seen[l.EmployeeID]; ok {
			continue
		}
		seen[l.EmployeeID] = struct{}{}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].TotalHours, out[j].TotalHours,
			out[i].TotalLearnings, out[j].TotalLearnings,
			out[i].EmployeeID, out[j].EmployeeID)
	})
	return truncate(out, limit)
}

// RankTeams orders teams with the same rule as RankLearners.
func RankTeams(in []domain.TeamRank, limit int) []domain.TeamRank {
	out := append([]domain.TeamRank(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].TotalHours, out[j].TotalHours,
			out[i].TotalLearnings, out[j].TotalLearnings,
			out[i].TeamID, out[j].TeamID)
	})
	if out == nil {
		out = []domain.TeamRank{}
	}
	return truncate(out, limit)
}

func less(hoursA, hoursB float64, countA, countB int, idA, idB string) bool {
	if hoursA != hoursB {
		return hoursA > hoursB
	}
	if countA != countB {
		return countA > countB
	}
	return idA < idB
}

func truncate[T any](in []T, limit int) []T {
	if limit <= 0 {
		limit = DefaultRankingSize
	}
	if len(in) > limit {
		return in[:limit]
	}
	return in
}
