package store

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/bucket"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/rollup"
	"github.com/smallbiznis/learnboard/internal/learningstats/streak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAsOf     = civil.Date{Year: 2024, Month: time.March, Day: 10}
	testComputed = time.Date(2024, 3, 10, 8, 30, 15, 123000000, time.UTC)
)

func employeeFixture(id string, minutes ...int) domain.Projection {
	events := make([]learningdomain.Event, 0, len(minutes))
	types := []learningdomain.ActivityType{"course", "book", "video"}
	for i, m := range minutes {
		events = append(events, learningdomain.Event{
			EmployeeID:      id,
			ActivityType:    types[i%len(types)],
			OccurredOn:      testAsOf.AddDays(-i),
			DurationMinutes: m,
		})
	}
	base := bucket.Summarize(events)
	base.AsOf = testAsOf
	base.ComputedAt = testComputed
	return domain.Projection{
		Scope:    domain.EmployeeScope(id),
		Base:     base,
		Employee: &domain.EmployeeExtras{Streak: streak.Compute(base.ActivityDates, testAsOf)},
	}
}

func fixtures() []domain.Projection {
	alice := employeeFixture("e-1", 60, 60, 30)
	bob := employeeFixture("e-2", 100)
	empty := employeeFixture("e-3")

	team := rollup.AggregateTeam("t-1", []rollup.EmployeeMember{
		{ID: "e-1", Name: "Alice", Projection: alice},
		{ID: "e-2", Name: "Bob", Projection: bob},
		{ID: "e-3", Name: "Cy", Projection: empty},
	}, testAsOf, 10)
	team.ComputedAt = testComputed

	emptyTeam := rollup.AggregateTeam("t-2", nil, testAsOf, 10)
	emptyTeam.ComputedAt = testComputed
	emptyTeam.WindowDays = 30

	org := rollup.AggregateOrg("acme", []rollup.TeamMember{
		{ID: "t-1", Name: "Platform", Projection: team},
		{ID: "t-2", Name: "Data", Projection: emptyTeam},
	}, testAsOf, 10)
	org.ComputedAt = testComputed

	return []domain.Projection{alice, bob, empty, team, emptyTeam, org}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, p := range fixtures() {
		t.Run(p.Scope.String(), func(t *testing.T) {
			encoded, err := Encode(p)
			require.NoError(t, err)

			parsed, err := Parse(encoded)
			require.NoError(t, err)
			assert.Equal(t, p, parsed)

			reencoded, err := Encode(parsed)
			require.NoError(t, err)
			assert.Equal(t, string(encoded), string(reencoded))
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	p := fixtures()[3]
	first, err := Encode(p)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Encode(p.Clone())
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}
}

func TestParseRejectsMalformedRecords(t *testing.T) {
	cases := map[string]string{
		"broken json":       `{"schema_version":1,`,
		"missing version":   `{"kind":"employee","scope_id":"e-1"}`,
		"unknown kind":      `{"schema_version":1,"kind":"planet","scope_id":"x","as_of":"2024-03-10","window_days":0,"computed_at":"2024-03-10T00:00:00Z","total_learnings":0,"total_minutes":0,"learnings_by_type":{},"minutes_by_type":{},"activity_dates":[]}`,
		"missing totals":    `{"schema_version":1,"kind":"employee","scope_id":"e-1","as_of":"2024-03-10","window_days":0,"computed_at":"2024-03-10T00:00:00Z","learnings_by_type":{},"minutes_by_type":{},"activity_dates":[],"streak":{"current":0,"longest":0,"avg_session_minutes":0}}`,
		"missing streak":    `{"schema_version":1,"kind":"employee","scope_id":"e-1","as_of":"2024-03-10","window_days":0,"computed_at":"2024-03-10T00:00:00Z","total_learnings":0,"total_minutes":0,"learnings_by_type":{},"minutes_by_type":{},"activity_dates":[]}`,
		"unsorted dates":    `{"schema_version":1,"kind":"employee","scope_id":"e-1","as_of":"2024-03-10","window_days":0,"computed_at":"2024-03-10T00:00:00Z","total_learnings":2,"total_minutes":2,"learnings_by_type":{"other":2},"minutes_by_type":{"other":2},"activity_dates":[{"date":"2024-03-02","count":1,"minutes":1},{"date":"2024-03-01","count":1,"minutes":1}],"streak":{"current":0,"longest":1,"avg_session_minutes":1}}`,
		"bad date":          `{"schema_version":1,"kind":"employee","scope_id":"e-1","as_of":"yesterday","window_days":0,"computed_at":"2024-03-10T00:00:00Z","total_learnings":0,"total_minutes":0,"learnings_by_type":{},"minutes_by_type":{},"activity_dates":[],"streak":{"current":0,"longest":0,"avg_session_minutes":0}}`,
		"future schema":     `{"schema_version":99}`,
		"empty":             ``,
		"trailing document": `{"schema_version":1} {}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			if !errors.Is(err, domain.ErrMalformedProjection) {
				t.Fatalf("expected ErrMalformedProjection, got %v", err)
			}
		})
	}
}

func TestEncodeRejectsMismatchedVariant(t *testing.T) {
	p := fixtures()[0]
	p.Team = &domain.TeamExtras{}

	_, err := Encode(p)
	if !errors.Is(err, domain.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}
