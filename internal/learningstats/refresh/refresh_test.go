package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/learnboard/internal/membership/repository"
	membershipservice "github.com/smallbiznis/learnboard/internal/membership/service"
	"github.com/smallbiznis/learnboard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type statsStub struct {
	mu    sync.Mutex
	calls []domain.Scope
	errs  map[domain.Scope]error
}

func (s *statsStub) GetEmployeeStats(context.Context, string, domain.Options) (*domain.Projection, error) {
	return nil, errors.New("not implemented")
}

func (s *statsStub) GetTeamStats(context.Context, string, domain.Options) (*domain.Projection, error) {
	return nil, errors.New("not implemented")
}

func (s *statsStub) GetOrgStats(context.Context, domain.Options) (*domain.Projection, error) {
	return nil, errors.New("not implemented")
}

func (s *statsStub) Recompute(_ context.Context, scope domain.Scope) (*domain.Projection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scope)
	if err := s.errs[scope]; err != nil {
		return nil, err
	}
	return &domain.Projection{Scope: scope}, nil
}

type storeStub struct {
	deleted    []domain.Scope
	deletedAll int
}

func (s *storeStub) Load(context.Context, domain.Scope) (*domain.Projection, error) { return nil, nil }
func (s *storeStub) Save(context.Context, domain.Projection) error                  { return nil }

func (s *storeStub) Delete(_ context.Context, scope domain.Scope) error {
	s.deleted = append(s.deleted, scope)
	return nil
}

func (s *storeStub) DeleteAll(context.Context) error {
	s.deletedAll++
	return nil
}

type harness struct {
	conn    *gorm.DB
	refresh *Service
	worker  *Worker
	stats   *statsStub
	store   *storeStub
	clock   *clock.FakeClock
}

func setup(t *testing.T) *harness {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&membershipdomain.Team{}, &membershipdomain.Employee{}, &RequestRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	team := "t-1"
	if err := conn.Create(&[]membershipdomain.Team{{ID: team, OrgID: "acme", Name: "Platform", CreatedAt: now}}).Error; err != nil {
		t.Fatalf("seed teams: %v", err)
	}
	employees := []membershipdomain.Employee{
		{ID: "e-1", TeamID: &team, Name: "Ada", Role: membershipdomain.RoleEmployee, CreatedAt: now},
		{ID: "e-2", TeamID: &team, Name: "Bo", Role: membershipdomain.RoleEmployee, CreatedAt: now},
		{ID: "e-3", Name: "Cy", Role: membershipdomain.RoleEmployee, CreatedAt: now},
	}
	if err := conn.Create(&employees).Error; err != nil {
		t.Fatalf("seed employees: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	h := &harness{
		conn:  conn,
		stats: &statsStub{errs: map[domain.Scope]error{}},
		store: &storeStub{},
		clock: clock.NewFakeClock(now),
	}
	resolver := membershipservice.New(membershipservice.Params{DB: conn, Log: zap.NewNop(), Repo: membershiprepo.Provide()})
	h.refresh = New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      h.clock,
		Config:     config.Config{DefaultOrgID: "acme"},
		Membership: resolver,
		Store:      h.store,
	})
	h.worker = NewWorker(WorkerParams{
		Log:     zap.NewNop(),
		Clock:   h.clock,
		Config:  config.NewStaticStatsConfigHolder(config.DefaultStatsConfig()),
		Refresh: h.refresh,
		Stats:   h.stats,
	})
	return h
}

func (h *harness) statuses(t *testing.T) map[string]string {
	t.Helper()
	var rows []RequestRecord
	if err := h.conn.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list requests: %v", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ScopeKind+":"+row.ScopeID] = row.Status
	}
	return out
}

func TestPolicyForEvent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	scopes, err := h.refresh.policy.ForEvent(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Scope{
		domain.EmployeeScope("e-1"),
		domain.TeamScope("t-1"),
		domain.OrgScope("acme"),
	}, scopes)

	scopes, err = h.refresh.policy.ForEvent(ctx, "e-3")
	require.NoError(t, err)
	assert.Equal(t, []domain.Scope{domain.EmployeeScope("e-3")}, scopes)
}

func TestPolicyForRebuild(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	scopes, err := h.refresh.policy.ForRebuild(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Scope{
		domain.OrgScope("acme"),
		domain.TeamScope("t-1"),
		domain.EmployeeScope("e-1"),
		domain.EmployeeScope("e-2"),
	}, scopes)

	target := domain.TeamScope("t-1")
	scopes, err = h.refresh.policy.ForRebuild(ctx, &target)
	require.NoError(t, err)
	assert.Equal(t, []domain.Scope{target}, scopes)

	_, err = h.refresh.policy.ForRebuild(ctx, &domain.Scope{Kind: "region", ID: "emea"})
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestEnqueueSkipsDuplicatePending(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	scope := domain.EmployeeScope("e-1")

	inserted, err := h.refresh.queue.Enqueue(ctx, scope, ReasonEventLogged, h.clock.Now())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = h.refresh.queue.Enqueue(ctx, scope, ReasonEventLogged, h.clock.Now())
	require.NoError(t, err)
	assert.False(t, inserted)

	claimed, err := h.refresh.queue.Claim(ctx, 10, h.clock.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)

	// A change during processing needs its own pass.
	inserted, err = h.refresh.queue.Enqueue(ctx, scope, ReasonEventLogged, h.clock.Now())
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestEventLoggedQueuesAffectedScopes(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	h.refresh.OnEventLogged(ctx, learningdomain.Event{EmployeeID: "e-1"})
	h.refresh.OnEventLogged(ctx, learningdomain.Event{EmployeeID: "e-2"})

	pending, err := h.refresh.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pending)

	require.NoError(t, h.worker.RunOnce(ctx))
	assert.ElementsMatch(t, []domain.Scope{
		domain.EmployeeScope("e-1"),
		domain.TeamScope("t-1"),
		domain.OrgScope("acme"),
		domain.EmployeeScope("e-2"),
	}, h.stats.calls)

	for scope, status := range h.statuses(t) {
		assert.Equal(t, StatusCompleted, status, scope)
	}
	pending, err = h.refresh.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestEventLoggedForUnknownEmployeeStillQueuesEmployee(t *testing.T) {
	h := setup(t)

	h.refresh.OnEventLogged(context.Background(), learningdomain.Event{EmployeeID: "e-404"})

	assert.Equal(t, map[string]string{"employee:e-404": StatusPending}, h.statuses(t))
}

func TestBusyScopeIsRetried(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	scope := domain.TeamScope("t-1")
	h.stats.errs[scope] = domain.ErrScopeBusy

	_, err := h.refresh.queue.Enqueue(ctx, scope, ReasonRebuild, h.clock.Now())
	require.NoError(t, err)

	require.NoError(t, h.worker.RunOnce(ctx))
	assert.Equal(t, StatusPending, h.statuses(t)["team:t-1"])

	delete(h.stats.errs, scope)
	require.NoError(t, h.worker.RunOnce(ctx))
	assert.Equal(t, StatusCompleted, h.statuses(t)["team:t-1"])
	assert.Len(t, h.stats.calls, 2)
}

func TestFailingScopeGivesUpAfterMaxAttempts(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	scope := domain.EmployeeScope("e-1")
	h.stats.errs[scope] = domain.ErrEventLogUnavailable

	_, err := h.refresh.queue.Enqueue(ctx, scope, ReasonEventLogged, h.clock.Now())
	require.NoError(t, err)

	for i := 0; i < MaxAttempts; i++ {
		require.NoError(t, h.worker.RunOnce(ctx))
	}

	var record RequestRecord
	require.NoError(t, h.conn.First(&record).Error)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, MaxAttempts, record.Attempts)
	require.NotNil(t, record.Error)
	assert.Contains(t, *record.Error, "event_log_unavailable")
	assert.Len(t, h.stats.calls, MaxAttempts)
}

func TestMissingScopeDropsStoredProjection(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	scope := domain.EmployeeScope("e-gone")
	h.stats.errs[scope] = domain.ErrScopeNotFound

	_, err := h.refresh.queue.Enqueue(ctx, scope, ReasonEventLogged, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.worker.RunOnce(ctx))

	assert.Equal(t, []domain.Scope{scope}, h.store.deleted)
	assert.Equal(t, StatusFailed, h.statuses(t)["employee:e-gone"])
}

func TestRequestRebuild(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	queued, err := h.refresh.RequestRebuild(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, queued)
	assert.Equal(t, 1, h.store.deletedAll)

	target := domain.EmployeeScope("e-3")
	queued, err = h.refresh.RequestRebuild(ctx, &target)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Equal(t, []domain.Scope{target}, h.store.deleted)

	// Already pending.
	queued, err = h.refresh.RequestRebuild(ctx, &target)
	require.NoError(t, err)
	assert.Zero(t, queued)
}
