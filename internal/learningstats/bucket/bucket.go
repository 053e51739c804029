// Package bucket groups learning events into per-day activity buckets and
// per-type totals. It performs no I/O and no timezone conversion: events are
// grouped by the calendar date they were recorded with.
package bucket

import (
	"math"
	"sort"

	"github.com/golang-sql/civil"
	"github.com/montanaflynn/stats"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
)

// Summarize folds events into a Base with buckets and type totals filled in.
// Time metadata (AsOf, ComputedAt, WindowDays) is left to the caller.
func Summarize(events []learningdomain.Event) domain.Base {
	base := domain.Base{
		LearningsByType: map[string]int{},
		MinutesByType:   map[string]int{},
		ActivityDates:   []domain.ActivityBucket{},
	}

	byDate := make(map[civil.Date]*domain.ActivityBucket)
	for _, event := range events {
		key := TypeKey(event.ActivityType)
		minutes := event.DurationMinutes
		if minutes < 0 {
			minutes = 0
		}

		base.TotalLearnings++
		base.TotalMinutes += minutes
		base.LearningsByType[key]++
		base.MinutesByType[key] += minutes

		b, ok := byDate[event.OccurredOn]
		if !ok {
			b = &domain.ActivityBucket{Date: event.OccurredOn}
			byDate[event.OccurredOn] = b
		}
		b.Count++
		b.Minutes += minutes
	}

	for _, b := range byDate {
		base.ActivityDates = append(base.ActivityDates, *b)
	}
	sortBuckets(base.ActivityDates)
	FillHours(&base)
	return base
}

// TypeKey maps an activity type to its aggregation key. Empty and unknown
// types fold into "other".
func TypeKey(t learningdomain.ActivityType) string {
	if t == "" || !t.Known() {
		return string(learningdomain.ActivityOther)
	}
	return string(t)
}

// Window keeps events dated within [asOf-days, asOf]. days <= 0 keeps
// everything up to asOf.
func Window(events []learningdomain.Event, asOf civil.Date, days int) []learningdomain.Event {
	out := make([]learningdomain.Event, 0, len(events))
	var since civil.Date
	if days > 0 {
		since = asOf.AddDays(-days)
	}
	for _, event := range events {
		if event.OccurredOn.After(asOf) {
			continue
		}
		if days > 0 && event.OccurredOn.Before(since) {
			continue
		}
		out = append(out, event)
	}
	return out
}

// MergeBuckets combines bucket sequences, summing entries that share a date.
// The result is ascending with no duplicate dates.
func MergeBuckets(seqs ...[]domain.ActivityBucket) []domain.ActivityBucket {
	byDate := make(map[civil.Date]domain.ActivityBucket)
	for _, seq := range seqs {
		for _, b := range seq {
			cur := byDate[b.Date]
			cur.Date = b.Date
			cur.Count += b.Count
			cur.Minutes += b.Minutes
			byDate[b.Date] = cur
		}
	}
	out := make([]domain.ActivityBucket, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sortBuckets(out)
	return out
}

// FillHours derives TotalHours and HoursByType from the minute totals.
// TotalHours is rounded to tenths and then apportioned across types by
// largest remainder, so the per-type hours always sum to TotalHours.
func FillHours(base *domain.Base) {
	base.TotalHours = Hours(base.TotalMinutes)
	base.HoursByType = make(map[string]float64, len(base.MinutesByType))
	for key, tenths := range apportionTenths(int(math.Round(base.TotalHours*10)), base.MinutesByType) {
		base.HoursByType[key] = float64(tenths) / 10
	}
}

// apportionTenths splits total tenths of an hour across keys in proportion
// to their minutes. A tenth of an hour is six minutes. Leftover tenths go to
// the largest remainders, ties broken by key.
func apportionTenths(total int, minutes map[string]int) map[string]int {
	out := make(map[string]int, len(minutes))
	keys := make([]string, 0, len(minutes))
	assigned := 0
	for key, m := range minutes {
		if m < 0 {
			m = 0
		}
		out[key] = m / 6
		assigned += m / 6
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return out
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := max(minutes[keys[i]], 0)%6, max(minutes[keys[j]], 0)%6
		if ri != rj {
			return ri > rj
		}
		return keys[i] < keys[j]
	})
	for i := 0; assigned < total; i++ {
		out[keys[i%len(keys)]]++
		assigned++
	}
	for i := len(keys) - 1; assigned > total && i >= 0; i-- {
		if out[keys[i]] > 0 {
			out[keys[i]]--
			assigned--
		}
	}
	return out
}

// Hours converts minutes to hours rounded to one decimal.
func Hours(minutes int) float64 {
	rounded, err := stats.Round(float64(minutes)/60, 1)
	if err != nil {
		return 0
	}
	return rounded
}

func sortBuckets(buckets []domain.ActivityBucket) {
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})
}
