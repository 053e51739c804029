package clock

import (
	"time"

	"github.com/golang-sql/civil"
	"go.uber.org/fx"
)

// Clock abstracts wall time so streaks and activity windows can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns the system clock.
func New() Clock {
	return systemClock{}
}

// Today is the calendar day of c in loc. A nil loc means UTC.
func Today(c Clock, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(c.Now().In(loc))
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
