package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-sql/civil"
	"github.com/smallbiznis/learnboard/internal/clock"
	"github.com/smallbiznis/learnboard/internal/config"
	"github.com/smallbiznis/learnboard/internal/learning/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/smallbiznis/learnboard/internal/observability/metrics"
	"github.com/smallbiznis/learnboard/pkg/db/pagination"
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
	Repo       domain.Repository
	Membership membershipdomain.Resolver
	Metrics    *metrics.Metrics     `optional:"true"`
	Observer   domain.EventObserver `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	loc        *time.Location
	repo       domain.Repository
	membership membershipdomain.Resolver
	metrics    *metrics.Metrics
	observer   domain.EventObserver
}

func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("learning.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		loc:        p.Config.Location(),
		repo:       p.Repo,
		membership: p.Membership,
		metrics:    p.Metrics,
		observer:   p.Observer,
	}
}

// Log validates and records a learning event, then notifies the observer.
// Observer failures never fail the write.
func (s *Service) Log(ctx context.Context, req domain.LogRequest) (*domain.Event, error) {
	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" {
		return nil, domain.ErrInvalidEmployee
	}
	if _, err := s.membership.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	activityType := domain.NormalizeActivityType(req.ActivityType)
	if len(activityType) > 32 {
		return nil, domain.ErrInvalidActivityType
	}

	if req.DurationMinutes < 0 || req.DurationMinutes > domain.MaxDurationMinutes {
		return nil, domain.ErrInvalidDuration
	}

	title := strings.TrimSpace(req.Title)
	if utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return nil, domain.ErrInvalidTitle
	}

	now := s.clock.Now()
	today := clock.Today(s.clock, s.loc)
	occurredOn := today
	if raw := strings.TrimSpace(req.OccurredOn); raw != "" {
		parsed, err := civil.ParseDate(raw)
		if err != nil {
			return nil, domain.ErrInvalidDate
		}
		occurredOn = parsed
	}
	if occurredOn.After(today) {
		return nil, domain.ErrFutureDate
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	event := domain.Event{
		ID:              s.genID.Generate(),
		EmployeeID:      employeeID,
		ActivityType:    activityType,
		Title:           title,
		OccurredOn:      occurredOn,
		DurationMinutes: req.DurationMinutes,
		Tags:            tags,
		CreatedAt:       now.UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return nil, fmt.Errorf("insert learning event: %w", err)
	}

	s.metrics.RecordLearningLogged(ctx, string(activityType))
	s.log.Debug("learning event recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("employee_id", employeeID),
		zap.String("activity_type", string(activityType)),
		zap.String("occurred_on", occurredOn.String()),
	)

	if s.observer != nil {
		s.observer.OnEventLogged(ctx, event)
	}

	return &event, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" {
		return domain.ListResponse{}, domain.ErrInvalidEmployee
	}
	if _, err := s.membership.GetEmployee(ctx, employeeID); err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{EmployeeIDs: []string{employeeID}}
	if raw := strings.TrimSpace(req.Since); raw != "" {
		since, err := civil.ParseDate(raw)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidDate
		}
		filter.Since = &since
	}

	page := pagination.Pagination{PageToken: strings.TrimSpace(req.PageToken), PageSize: req.PageSize}
	items, err := s.repo.ListPage(ctx, s.db, filter, page)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPageToken) {
			return domain.ListResponse{}, err
		}
		return domain.ListResponse{}, fmt.Errorf("list learning events: %w", err)
	}

	limit := page.Limit()
	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(e *domain.Event) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:         e.ID.String(),
			OccurredOn: e.OccurredOn.String(),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		events = append(events, *item)
	}

	resp := domain.ListResponse{Events: events}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// ListEvents serves the stats engine. Results are ordered by occurred_on then id.
func (s *Service) ListEvents(ctx context.Context, filter domain.ListFilter) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx, s.db, filter)
}

func normalizeTags(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > 64 {
			return nil, domain.ErrInvalidTags
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) > domain.MaxTags {
		return nil, domain.ErrInvalidTags
	}
	if len(tags) == 0 {
		return nil, nil
	}
	sort.Strings(tags)
	return tags, nil
}
