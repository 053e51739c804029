package clock

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
)

func TestTodayUsesLocation(t *testing.T) {
	fc := NewFakeClock(time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC))

	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 10}, Today(fc, nil))

	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 11}, Today(fc, tokyo))
}

func TestFakeClockAdvanceDays(t *testing.T) {
	fc := NewFakeClock(time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC))
	fc.AdvanceDays(2)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 1}, Today(fc, time.UTC))

	fc.Advance(-time.Hour)
	fc.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600)))
	assert.Equal(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), fc.Now())
}
