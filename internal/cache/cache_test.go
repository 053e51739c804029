package cache

import (
	"testing"
	"time"

	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	c.Set("skip", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("skip")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", time.Hour)
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestEmployeeCache(t *testing.T) {
	c := NewEmployeeCache()

	c.SetEmployee(membershipdomain.Employee{})
	_, ok := c.GetEmployee("")
	assert.False(t, ok)

	c.SetEmployee(membershipdomain.Employee{ID: "e-1", Role: membershipdomain.RoleManager})
	got, ok := c.GetEmployee(" e-1 ")
	assert.True(t, ok)
	assert.Equal(t, membershipdomain.RoleManager, got.Role)

	c.SetTeamOf("e-2", "")
	team, ok := c.GetTeamOf("e-2")
	assert.True(t, ok)
	assert.Empty(t, team)
}
