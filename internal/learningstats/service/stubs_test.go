package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-sql/civil"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
)

type eventLogStub struct {
	mu     sync.Mutex
	events []learningdomain.Event
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (e *eventLogStub) add(employee string, t learningdomain.ActivityType, on civil.Date, minutes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, learningdomain.Event{
		EmployeeID:      employee,
		ActivityType:    t,
		OccurredOn:      on,
		DurationMinutes: minutes,
	})
}

func (e *eventLogStub) ListEvents(_ context.Context, filter learningdomain.ListFilter) ([]learningdomain.Event, error) {
	e.calls.Add(1)
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	var ids map[string]struct{}
	if filter.EmployeeIDs != nil {
		ids = make(map[string]struct{}, len(filter.EmployeeIDs))
		for _, id := range filter.EmployeeIDs {
			ids[id] = struct{}{}
		}
	}
	out := []learningdomain.Event{}
	for _, ev := range e.events {
		if ids != nil {
			if _, ok := ids[ev.EmployeeID]; !ok {
				continue
			}
		}
		if filter.Since != nil && ev.OccurredOn.Before(*filter.Since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredOn.Before(out[j].OccurredOn) })
	return out, nil
}

type membershipStub struct {
	employees map[string]membershipdomain.Employee
	teams     map[string]membershipdomain.Team
	err       error
}

func newMembership() *membershipStub {
	return &membershipStub{
		employees: map[string]membershipdomain.Employee{},
		teams:     map[string]membershipdomain.Team{},
	}
}

func (m *membershipStub) addTeam(id, org, name string) {
	m.teams[id] = membershipdomain.Team{ID: id, OrgID: org, Name: name}
}

func (m *membershipStub) addEmployee(id, name, team string) {
	e := membershipdomain.Employee{ID: id, Name: name}
	if team != "" {
		t := team
		e.TeamID = &t
	}
	m.employees[id] = e
}

func (m *membershipStub) GetEmployee(_ context.Context, id string) (*membershipdomain.Employee, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.employees[id]
	if !ok {
		return nil, membershipdomain.ErrEmployeeNotFound
	}
	return &e, nil
}

func (m *membershipStub) GetTeam(_ context.Context, id string) (*membershipdomain.Team, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.teams[id]
	if !ok {
		return nil, membershipdomain.ErrTeamNotFound
	}
	return &t, nil
}

func (m *membershipStub) MembersOf(ctx context.Context, teamID string) ([]membershipdomain.Employee, error) {
	if _, err := m.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	out := []membershipdomain.Employee{}
	for _, e := range m.employees {
		if e.Team() == teamID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *membershipStub) TeamsOf(_ context.Context, orgID string) ([]membershipdomain.Team, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []membershipdomain.Team{}
	for _, t := range m.teams {
		if t.OrgID == orgID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *membershipStub) TeamOfEmployee(ctx context.Context, employeeID string) (*membershipdomain.Team, error) {
	e, err := m.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if e.Team() == "" {
		return nil, nil
	}
	return m.GetTeam(ctx, e.Team())
}

type storeStub struct {
	mu       sync.Mutex
	records  map[domain.Scope]domain.Projection
	raw      map[domain.Scope]error
	saveErr  error
	saves    atomic.Int32
	versions map[domain.Scope]int
}

func newStore() *storeStub {
	return &storeStub{
		records:  map[domain.Scope]domain.Projection{},
		raw:      map[domain.Scope]error{},
		versions: map[domain.Scope]int{},
	}
}

func (s *storeStub) Load(_ context.Context, scope domain.Scope) (*domain.Projection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.raw[scope]; ok {
		return nil, err
	}
	p, ok := s.records[scope]
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

func (s *storeStub) Save(_ context.Context, p domain.Projection) error {
	s.saves.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	delete(s.raw, p.Scope)
	s.records[p.Scope] = p.Clone()
	s.versions[p.Scope]++
	return nil
}

func (s *storeStub) Delete(_ context.Context, scope domain.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, scope)
	return nil
}

func (s *storeStub) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[domain.Scope]domain.Projection{}
	return nil
}

type lockerStub struct {
	held bool
	err  error
}

func (l *lockerStub) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *lockerStub) Release(context.Context, string, string) error { return nil }

var errDown = errors.New("connection refused")
