// Package refresh keeps stored projections current. Logged events and
// rebuild requests become durable queue entries that a background worker
// drains by recomputing the affected scopes.
package refresh

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	learningdomain "github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/smallbiznis/learnboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Membership membershipdomain.Resolver
	Store      domain.Store
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	queue   *Queue
	policy  Policy
	store   domain.Store
	metrics *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		log:     p.Log.Named("learningstats.refresh"),
		clock:   p.Clock,
		queue:   NewQueue(p.DB, p.GenID),
		policy:  NewPolicy(p.Membership, strings.TrimSpace(p.Config.DefaultOrgID)),
		store:   p.Store,
		metrics: p.Metrics,
	}
}

// OnEventLogged queues recomputes for every scope the event touches.
// Failures are logged; the event itself is already recorded.
func (s *Service) OnEventLogged(ctx context.Context, event learningdomain.Event) {
	scopes, err := s.policy.ForEvent(ctx, event.EmployeeID)
	if err != nil {
		s.log.Warn("failed to resolve refresh scopes",
			zap.String("employee_id", event.EmployeeID),
			zap.Error(err),
		)
	}
	s.enqueue(ctx, scopes, ReasonEventLogged)
}

// RequestRebuild invalidates target, or every stored projection when target
// is nil, and queues recomputes. It returns the number of requests queued.
func (s *Service) RequestRebuild(ctx context.Context, target *domain.Scope) (int, error) {
	scopes, err := s.policy.ForRebuild(ctx, target)
	if err != nil {
		return 0, err
	}

	if target == nil {
		err = s.store.DeleteAll(ctx)
	} else {
		err = s.store.Delete(ctx, *target)
	}
	if err != nil {
		return 0, err
	}

	return s.enqueue(ctx, scopes, ReasonRebuild), nil
}

// Pending reports the queue depth.
func (s *Service) Pending(ctx context.Context) (int64, error) {
	return s.queue.Pending(ctx)
}

func (s *Service) enqueue(ctx context.Context, scopes []domain.Scope, reason string) int {
	queued := 0
	for _, scope := range scopes {
		inserted, err := s.queue.Enqueue(ctx, scope, reason, s.clock.Now())
		if err != nil {
			s.log.Warn("failed to enqueue refresh",
				zap.String("scope", scope.String()),
				zap.String("reason", reason),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			queued++
			s.metrics.RecordRefreshEnqueued(ctx, string(scope.Kind), reason)
		}
	}
	return queued
}
