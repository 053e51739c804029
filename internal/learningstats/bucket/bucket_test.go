package bucket

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: time.March, Day: d}
}

func event(employee string, t learningdomain.ActivityType, on civil.Date, minutes int) learningdomain.Event {
	return learningdomain.Event{EmployeeID: employee, ActivityType: t, OccurredOn: on, DurationMinutes: minutes}
}

func TestSummarizeThreeEventEmployee(t *testing.T) {
	events := []learningdomain.Event{
		event("e-1", learningdomain.ActivityCourse, day(3), 60),
		event("e-1", learningdomain.ActivityCourse, day(1), 60),
		event("e-1", learningdomain.ActivityBook, day(2), 30),
	}

	base := Summarize(events)

	assert.Equal(t, 3, base.TotalLearnings)
	assert.Equal(t, 150, base.TotalMinutes)
	assert.Equal(t, 2.5, base.TotalHours)
	assert.Equal(t, map[string]int{"course": 2, "book": 1}, base.LearningsByType)
	assert.Equal(t, map[string]float64{"course": 2.0, "book": 0.5}, base.HoursByType)
	assert.Equal(t, []domain.ActivityBucket{
		{Date: day(1), Count: 1, Minutes: 60},
		{Date: day(2), Count: 1, Minutes: 30},
		{Date: day(3), Count: 1, Minutes: 60},
	}, base.ActivityDates)
}

func TestSummarizeFoldsUnknownTypesIntoOther(t *testing.T) {
	base := Summarize([]learningdomain.Event{
		event("e-1", "", day(1), 10),
		event("e-1", "podcast", day(1), 20),
		event("e-1", learningdomain.ActivityOther, day(2), 30),
	})

	assert.Equal(t, map[string]int{"other": 3}, base.LearningsByType)
	assert.Equal(t, map[string]int{"other": 60}, base.MinutesByType)
	assert.Equal(t, []domain.ActivityBucket{
		{Date: day(1), Count: 2, Minutes: 30},
		{Date: day(2), Count: 1, Minutes: 30},
	}, base.ActivityDates)
}

func TestSummarizeEmpty(t *testing.T) {
	base := Summarize(nil)
	assert.Zero(t, base.TotalLearnings)
	assert.Zero(t, base.TotalHours)
	assert.Empty(t, base.ActivityDates)
	assert.NotNil(t, base.LearningsByType)
}

func TestBucketCountsMatchTotals(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	types := []learningdomain.ActivityType{
		learningdomain.ActivityCourse,
		learningdomain.ActivityBook,
		learningdomain.ActivityVideo,
		"",
		"workshop",
	}

	for iter := 0; iter < 50; iter++ {
		n := rng.Intn(40)
		events := make([]learningdomain.Event, 0, n)
		for i := 0; i < n; i++ {
			events = append(events, event("e-1", types[rng.Intn(len(types))], day(1+rng.Intn(28)), rng.Intn(180)))
		}

		base := Summarize(events)

		bucketCount, bucketMinutes := 0, 0
		for i, b := range base.ActivityDates {
			bucketCount += b.Count
			bucketMinutes += b.Minutes
			if i > 0 && !base.ActivityDates[i-1].Date.Before(b.Date) {
				t.Fatalf("buckets not strictly ascending at %d", i)
			}
		}
		typeCount := 0
		for _, c := range base.LearningsByType {
			typeCount += c
		}

		if bucketCount != len(events) || typeCount != len(events) || base.TotalLearnings != len(events) {
			t.Fatalf("count mismatch: events=%d buckets=%d types=%d total=%d",
				len(events), bucketCount, typeCount, base.TotalLearnings)
		}
		if bucketMinutes != base.TotalMinutes {
			t.Fatalf("minutes mismatch: buckets=%d total=%d", bucketMinutes, base.TotalMinutes)
		}
	}
}

func TestHoursRoundToOneDecimal(t *testing.T) {
	assert.Equal(t, 1.5, Hours(90))
	assert.Equal(t, 1.7, Hours(100))
	assert.Equal(t, 0.0, Hours(0))
	assert.Equal(t, 0.1, Hours(5))
}

func TestWindowKeepsTrailingDays(t *testing.T) {
	events := []learningdomain.Event{
		event("e-1", learningdomain.ActivityCourse, day(1), 10),
		event("e-1", learningdomain.ActivityCourse, day(5), 10),
		event("e-1", learningdomain.ActivityCourse, day(10), 10),
		event("e-1", learningdomain.ActivityCourse, day(12), 10),
	}

	got := Window(events, day(10), 5)
	assert.Len(t, got, 2)
	assert.Equal(t, day(5), got[0].OccurredOn)
	assert.Equal(t, day(10), got[1].OccurredOn)

	assert.Len(t, Window(events, day(10), 0), 3)
}

func TestMergeBucketsSumsSharedDates(t *testing.T) {
	merged := MergeBuckets(
		[]domain.ActivityBucket{{Date: day(1), Count: 1, Minutes: 10}, {Date: day(3), Count: 2, Minutes: 20}},
		[]domain.ActivityBucket{{Date: day(3), Count: 1, Minutes: 5}, {Date: day(2), Count: 1, Minutes: 7}},
		nil,
	)

	assert.Equal(t, []domain.ActivityBucket{
		{Date: day(1), Count: 1, Minutes: 10},
		{Date: day(2), Count: 1, Minutes: 7},
		{Date: day(3), Count: 3, Minutes: 25},
	}, merged)
}

func sumTenths(hours map[string]float64) int {
	total := 0
	for _, h := range hours {
		total += int(math.Round(h * 10))
	}
	return total
}

func TestHoursByTypeSumToTotalHours(t *testing.T) {
	var events []learningdomain.Event
	for _, typ := range []learningdomain.ActivityType{
		learningdomain.ActivityCourse, learningdomain.ActivityBook, learningdomain.ActivityVideo,
		learningdomain.ActivityConference, learningdomain.ActivityOther,
	} {
		events = append(events, event("e-1", typ, day(1), 4))
	}

	base := Summarize(events)
	assert.Equal(t, 20, base.TotalMinutes)
	assert.Equal(t, 0.3, base.TotalHours)
	assert.Equal(t, 3, sumTenths(base.HoursByType))
	assert.Equal(t, map[string]float64{
		"book": 0.1, "conference": 0.1, "course": 0.1, "other": 0, "video": 0,
	}, base.HoursByType)
}

func TestApportionTenthsAcrossManyTypes(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	for iter := 0; iter < 200; iter++ {
		base := domain.Base{MinutesByType: map[string]int{}}
		for i := 0; i < 1+rng.Intn(40); i++ {
			m := rng.Intn(200)
			base.MinutesByType[fmt.Sprintf("type-%02d", i)] = m
			base.TotalMinutes += m
		}
		FillHours(&base)

		require.Len(t, base.HoursByType, len(base.MinutesByType))
		require.Equal(t, int(math.Round(base.TotalHours*10)), sumTenths(base.HoursByType), "iteration %d", iter)
		for key, h := range base.HoursByType {
			exact := float64(base.MinutesByType[key]) / 60
			assert.InDelta(t, exact, h, 0.1+1e-9, "type %s", key)
			assert.GreaterOrEqual(t, h, 0.0)
		}
	}
}
