// Package streak derives consecutive-day activity streaks from activity buckets.
package streak

import (
	"sort"

	"github.com/golang-sql/civil"
	"github.com/montanaflynn/stats"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
)

// Compute walks the active dates in ascending order. A gap of more than one
// day resets the running counter. The current streak is the run ending on
// asOf or the day before; buckets dated after asOf are ignored for it.
// Input order does not matter and duplicate dates are counted once.
func Compute(buckets []domain.ActivityBucket, asOf civil.Date) domain.Streak {
	var totalMinutes, totalCount int
	dates := make([]civil.Date, 0, len(buckets))
	seen := make(map[civil.Date]struct{}, len(buckets))
	for _, b := range buckets {
		totalMinutes += b.Minutes
		totalCount += b.Count
		if b.Count <= 0 {
			continue
		}
		if _, ok := seen[b.Date]; ok {
			continue
		}
		seen[b.Date] = struct{}{}
		dates = append(dates, b.Date)
	}

	result := domain.Streak{AvgSessionMinutes: AverageSession(totalMinutes, totalCount)}
	if len(dates) == 0 {
		return result
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	run := 0
	current := 0
	var prev civil.Date
	for i, d := range dates {
		if i == 0 || d.DaysSince(prev) > 1 {
			run = 1
		} else {
			run++
		}
		if run > result.Longest {
			result.Longest = run
		}
		if !d.After(asOf) {
			gap := asOf.DaysSince(d)
			if gap <= 1 {
				current = run
			} else {
				current = 0
			}
		}
		prev = d
	}
	result.Current = current
	return result
}

// AverageSession is total minutes over event count, one decimal. Zero events yield 0.
func AverageSession(totalMinutes, count int) float64 {
	if count <= 0 {
		return 0
	}
	avg, err := stats.Round(float64(totalMinutes)/float64(count), 1)
	if err != nil {
		return 0
	}
	return avg
}
