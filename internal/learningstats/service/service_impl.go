package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/golang-sql/civil"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/bucket"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/rollup"
	"github.com/smallbiznis/learnboard/internal/learningstats/streak"
	"github.com/smallbiznis/learnboard/internal/lock"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/smallbiznis/learnboard/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const lockKeyPrefix = "learnboard:stats:lock:"

// ScopeLocker serializes projection writes for one scope across instances.
type ScopeLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Stats      *config.StatsConfigHolder
	Events     learningdomain.EventLog
	Membership membershipdomain.Resolver
	Store      domain.Store
	Locker     *lock.Locker     `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	loc        *time.Location
	orgID      string
	stats      *config.StatsConfigHolder
	events     learningdomain.EventLog
	membership membershipdomain.Resolver
	store      domain.Store
	locker     ScopeLocker
	metrics    *metrics.Metrics

	group   singleflight.Group
	stripes [64]sync.Mutex
}

func New(p Params) *Service {
	s := &Service{
		log:        p.Log.Named("learningstats.service"),
		clock:      p.Clock,
		loc:        p.Config.Location(),
		orgID:      strings.TrimSpace(p.Config.DefaultOrgID),
		stats:      p.Stats,
		events:     p.Events,
		membership: p.Membership,
		store:      p.Store,
		metrics:    p.Metrics,
	}
	if p.Locker.Enabled() {
		s.locker = p.Locker
	}
	return s
}

// WithLocker overrides the cross-instance locker.
func (s *Service) WithLocker(l ScopeLocker) *Service {
	s.locker = l
	return s
}

func (s *Service) GetEmployeeStats(ctx context.Context, employeeID string, opts domain.Options) (*domain.Projection, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, domain.ErrInvalidScope
	}
	if _, err := s.membership.GetEmployee(ctx, employeeID); err != nil {
		return nil, membershipErr(err)
	}
	return s.get(ctx, domain.EmployeeScope(employeeID), opts)
}

func (s *Service) GetTeamStats(ctx context.Context, teamID string, opts domain.Options) (*domain.Projection, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, domain.ErrInvalidScope
	}
	if _, err := s.membership.GetTeam(ctx, teamID); err != nil {
		return nil, membershipErr(err)
	}
	return s.get(ctx, domain.TeamScope(teamID), opts)
}

func (s *Service) GetOrgStats(ctx context.Context, opts domain.Options) (*domain.Projection, error) {
	if s.orgID == "" {
		return nil, domain.ErrInvalidScope
	}
	return s.get(ctx, domain.OrgScope(s.orgID), opts)
}

// Recompute rebuilds the all-time projection for scope and stores it. A store
// failure is returned wrapped in ErrStoreWriteFailed together with the
// computed projection.
func (s *Service) Recompute(ctx context.Context, scope domain.Scope) (*domain.Projection, error) {
	if err := s.checkScope(ctx, scope); err != nil {
		return nil, err
	}

	unlock, held, err := s.lockScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if !held {
		return nil, fmt.Errorf("%w: %s", domain.ErrScopeBusy, scope)
	}

	return s.computeAndSave(ctx, scope)
}

func (s *Service) get(ctx context.Context, scope domain.Scope, opts domain.Options) (*domain.Projection, error) {
	if !opts.Precomputed {
		window, err := s.windowDays(opts.WindowDays)
		if err != nil {
			return nil, err
		}
		projection, err := s.compute(ctx, scope, window)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordProjectionRead(ctx, string(scope.Kind), string(domain.SourceFallback))
		return projection, nil
	}

	if stored := s.loadStored(ctx, scope); stored != nil {
		s.metrics.RecordProjectionRead(ctx, string(scope.Kind), string(domain.SourceStored))
		return stored, nil
	}

	// The shared computation outlives any single caller's cancellation; a
	// caller that gives up only drops its copy of the result.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(scope.String(), func() (any, error) {
		return s.createMissing(detached, scope)
	})
	var done singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case done = <-ch:
	}
	if done.Err != nil {
		return nil, done.Err
	}
	res := done.Val.(createResult)
	s.metrics.RecordProjectionRead(ctx, string(scope.Kind), string(res.source))
	out := res.projection.Clone()
	return &out, nil
}

type createResult struct {
	projection *domain.Projection
	source     domain.Source
}

// createMissing is the absent -> present transition. It runs at most once per
// scope at a time in this process.
func (s *Service) createMissing(ctx context.Context, scope domain.Scope) (createResult, error) {
	unlock, held, err := s.lockScope(ctx, scope)
	if err != nil {
		return createResult{}, err
	}
	defer unlock()

	if !held {
		// Another instance is writing this scope. Serve a fresh computation
		// without racing its save.
		projection, err := s.compute(ctx, scope, 0)
		if err != nil {
			return createResult{}, err
		}
		return createResult{projection: projection, source: domain.SourceComputed}, nil
	}

	if stored := s.loadStored(ctx, scope); stored != nil {
		return createResult{projection: stored, source: domain.SourceStored}, nil
	}

	projection, err := s.computeAndSave(ctx, scope)
	if err != nil && !errors.Is(err, domain.ErrStoreWriteFailed) {
		return createResult{}, err
	}
	return createResult{projection: projection, source: domain.SourceComputed}, nil
}

func (s *Service) computeAndSave(ctx context.Context, scope domain.Scope) (*domain.Projection, error) {
	start := time.Now()
	projection, err := s.compute(ctx, scope, 0)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordRecompute(ctx, string(scope.Kind), time.Since(start))

	if err := s.store.Save(ctx, *projection); err != nil {
		s.metrics.RecordStoreWriteFailure(ctx, string(scope.Kind))
		s.log.Error("failed to save projection",
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
		return projection, fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}

	s.log.Debug("projection saved",
		zap.String("scope", scope.String()),
		zap.Int("total_learnings", projection.TotalLearnings),
	)
	return projection, nil
}

// loadStored returns nil for absent, unreadable and malformed records alike.
func (s *Service) loadStored(ctx context.Context, scope domain.Scope) *domain.Projection {
	stored, err := s.store.Load(ctx, scope)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedProjection) {
			s.metrics.RecordMalformedProjection(ctx, string(scope.Kind))
			s.log.Warn("stored projection is malformed, recomputing",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
		} else {
			s.log.Warn("failed to load projection, recomputing",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
		}
		return nil
	}
	return stored
}

// lockScope takes the in-process stripe for scope and, when redis is
// configured, the cross-instance lease. held is false when another instance
// owns the lease. Redis errors degrade to in-process locking only.
func (s *Service) lockScope(ctx context.Context, scope domain.Scope) (func(), bool, error) {
	stripe := s.stripe(scope)
	stripe.Lock()

	if s.locker == nil {
		return stripe.Unlock, true, nil
	}

	key := lockKeyPrefix + scope.String()
	token, ok, err := s.locker.TryLock(ctx, key, s.stats.Get().Refresh.LockTTL)
	if err != nil {
		s.log.Warn("scope lock unavailable, continuing with local lock",
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
		return stripe.Unlock, true, nil
	}
	if !ok {
		return stripe.Unlock, false, nil
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release scope lock", zap.String("scope", scope.String()), zap.Error(err))
		}
		stripe.Unlock()
	}, true, nil
}

func (s *Service) stripe(scope domain.Scope) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope.String()))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

func (s *Service) windowDays(requested int) (int, error) {
	cfg := s.stats.Get()
	if requested == 0 {
		return cfg.DefaultWindowDays, nil
	}
	if requested < 0 || requested > cfg.MaxWindowDays {
		return 0, fmt.Errorf("%w: window_days must be between 1 and %d", domain.ErrInvalidWindow, cfg.MaxWindowDays)
	}
	return requested, nil
}

func (s *Service) checkScope(ctx context.Context, scope domain.Scope) error {
	if !scope.Kind.Valid() || strings.TrimSpace(scope.ID) == "" {
		return domain.ErrInvalidScope
	}
	var err error
	switch scope.Kind {
	case domain.ScopeEmployee:
		_, err = s.membership.GetEmployee(ctx, scope.ID)
	case domain.ScopeTeam:
		_, err = s.membership.GetTeam(ctx, scope.ID)
	case domain.ScopeOrg:
		if scope.ID != s.orgID {
			return fmt.Errorf("%w: org %s", domain.ErrScopeNotFound, scope.ID)
		}
	}
	if err != nil {
		return membershipErr(err)
	}
	return nil
}

// compute builds a projection from the event log. window 0 is all time.
func (s *Service) compute(ctx context.Context, scope domain.Scope, window int) (*domain.Projection, error) {
	ctx, span := otel.Tracer("learnboard/learningstats").Start(ctx, "learningstats.compute")
	defer span.End()
	span.SetAttributes(
		attribute.String("scope_kind", string(scope.Kind)),
		attribute.Int("window_days", window),
	)

	now := s.clock.Now()
	asOf := clock.Today(s.clock, s.loc)
	limit := s.stats.Get().RankingSize

	var (
		projection domain.Projection
		err        error
	)
	switch scope.Kind {
	case domain.ScopeEmployee:
		projection, err = s.computeEmployee(ctx, scope.ID, asOf, window)
	case domain.ScopeTeam:
		projection, err = s.computeTeam(ctx, scope.ID, asOf, window, limit)
	case domain.ScopeOrg:
		projection, err = s.computeOrg(ctx, scope.ID, asOf, window, limit)
	default:
		err = domain.ErrInvalidScope
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		return nil, err
	}

	projection.ComputedAt = now.UTC()
	projection.AsOf = asOf
	projection.WindowDays = window
	return &projection, nil
}

func (s *Service) computeEmployee(ctx context.Context, employeeID string, asOf civil.Date, window int) (domain.Projection, error) {
	events, err := s.listEvents(ctx, []string{employeeID}, asOf, window)
	if err != nil {
		return domain.Projection{}, err
	}
	return employeeProjection(employeeID, events, asOf), nil
}

func (s *Service) computeTeam(ctx context.Context, teamID string, asOf civil.Date, window, limit int) (domain.Projection, error) {
	members, err := s.membership.MembersOf(ctx, teamID)
	if err != nil {
		return domain.Projection{}, membershipErr(err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	events, err := s.listEvents(ctx, ids, asOf, window)
	if err != nil {
		return domain.Projection{}, err
	}

	return teamProjection(teamID, members, groupByEmployee(events), asOf, limit), nil
}

func (s *Service) computeOrg(ctx context.Context, orgID string, asOf civil.Date, window, limit int) (domain.Projection, error) {
	teams, err := s.membership.TeamsOf(ctx, orgID)
	if err != nil {
		return domain.Projection{}, membershipErr(err)
	}

	rosters := make([][]membershipdomain.Employee, len(teams))
	ids := []string{}
	for i, team := range teams {
		members, err := s.membership.MembersOf(ctx, team.ID)
		if err != nil {
			return domain.Projection{}, membershipErr(err)
		}
		rosters[i] = members
		for _, m := range members {
			ids = append(ids, m.ID)
		}
	}

	events, err := s.listEvents(ctx, ids, asOf, window)
	if err != nil {
		return domain.Projection{}, err
	}
	byEmployee := groupByEmployee(events)

	teamMembers := make([]rollup.TeamMember, 0, len(teams))
	for i, team := range teams {
		teamMembers = append(teamMembers, rollup.TeamMember{
			ID:         team.ID,
			Name:       team.Name,
			Projection: teamProjection(team.ID, rosters[i], byEmployee, asOf, limit),
		})
	}
	return rollup.AggregateOrg(orgID, teamMembers, asOf, limit), nil
}

func (s *Service) listEvents(ctx context.Context, employeeIDs []string, asOf civil.Date, window int) ([]learningdomain.Event, error) {
	filter := learningdomain.ListFilter{EmployeeIDs: employeeIDs}
	if window > 0 {
		since := asOf.AddDays(-window)
		filter.Since = &since
	}
	events, err := s.events.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEventLogUnavailable, err)
	}
	if window > 0 {
		events = bucket.Window(events, asOf, window)
	}
	return events, nil
}

func employeeProjection(employeeID string, events []learningdomain.Event, asOf civil.Date) domain.Projection {
	base := bucket.Summarize(events)
	base.AsOf = asOf
	return domain.Projection{
		Scope:    domain.EmployeeScope(employeeID),
		Base:     base,
		Employee: &domain.EmployeeExtras{Streak: streak.Compute(base.ActivityDates, asOf)},
	}
}

func teamProjection(teamID string, members []membershipdomain.Employee, byEmployee map[string][]learningdomain.Event, asOf civil.Date, limit int) domain.Projection {
	rollupMembers := make([]rollup.EmployeeMember, 0, len(members))
	for _, m := range members {
		rollupMembers = append(rollupMembers, rollup.EmployeeMember{
			ID:         m.ID,
			Name:       m.Name,
			Projection: employeeProjection(m.ID, byEmployee[m.ID], asOf),
		})
	}
	return rollup.AggregateTeam(teamID, rollupMembers, asOf, limit)
}

func groupByEmployee(events []learningdomain.Event) map[string][]learningdomain.Event {
	out := make(map[string][]learningdomain.Event)
	for _, e := range events {
		out[e.EmployeeID] = append(out[e.EmployeeID], e)
	}
	return out
}

func membershipErr(err error) error {
	switch {
	case errors.Is(err, membershipdomain.ErrEmployeeNotFound),
		errors.Is(err, membershipdomain.ErrTeamNotFound),
		errors.Is(err, membershipdomain.ErrInvalidID):
		return fmt.Errorf("%w: %w", domain.ErrScopeNotFound, err)
	default:
		return fmt.Errorf("%w: membership: %w", domain.ErrEventLogUnavailable, err)
	}
}
