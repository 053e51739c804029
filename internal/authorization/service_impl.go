package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/learnboard/internal/cache"
	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Objects name the requester's relation to the thing being read, so one
// policy row covers every employee or team of that relation.
const (
	ObjectEmployeeSelf     = "employee:self"
	ObjectEmployeeTeammate = "employee:teammate"
	ObjectEmployeeOther    = "employee:other"
	ObjectTeamOwn          = "team:own"
	ObjectTeamOther        = "team:other"
	ObjectOrg              = "org"
	ObjectLearnings        = "learnings"
	ObjectStats            = "stats"
)

const (
	ActionView    = "view"
	ActionLog     = "log"
	ActionRebuild = "rebuild"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Enforcer   *casbin.SyncedEnforcer
	Membership membershipdomain.Resolver
	Cache      cache.EmployeeCache `optional:"true"`
}

type ServiceImpl struct {
	log        *zap.Logger
	enforcer   *casbin.SyncedEnforcer
	membership membershipdomain.Resolver
	cache      cache.EmployeeCache
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	employees := p.Cache
	if employees == nil {
		employees = cache.NewEmployeeCache()
	}
	return &ServiceImpl{
		log:        p.Log.Named("authorization.service"),
		enforcer:   p.Enforcer,
		membership: p.Membership,
		cache:      employees,
	}
}

func (s *ServiceImpl) Resolve(ctx context.Context, employeeID string) (Requester, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return Requester{}, ErrInvalidActor
	}
	employee, ok := s.cache.GetEmployee(employeeID)
	if !ok {
		found, err := s.membership.GetEmployee(ctx, employeeID)
		if err != nil {
			if errors.Is(err, membershipdomain.ErrEmployeeNotFound) || errors.Is(err, membershipdomain.ErrInvalidID) {
				return Requester{}, ErrInvalidActor
			}
			return Requester{}, err
		}
		employee = *found
		s.cache.SetEmployee(employee)
	}

	role := strings.ToLower(strings.TrimSpace(employee.Role))
	if role == "" {
		role = membershipdomain.RoleEmployee
	}
	return Requester{
		EmployeeID: employee.ID,
		Role:       role,
		TeamID:     employee.Team(),
	}, nil
}

func (s *ServiceImpl) CanView(ctx context.Context, requester Requester, scope statsdomain.Scope) error {
	if !scope.Kind.Valid() || strings.TrimSpace(scope.ID) == "" {
		return ErrInvalidObject
	}
	object, err := s.relation(ctx, requester, scope)
	if err != nil {
		return err
	}
	return s.Authorize(ctx, requester, object, ActionView)
}

func (s *ServiceImpl) Authorize(ctx context.Context, requester Requester, object, action string) error {
	if strings.TrimSpace(requester.EmployeeID) == "" || strings.TrimSpace(requester.Role) == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := roleSubject(requester.Role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("employee_id", requester.EmployeeID),
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// relation classifies scope relative to the requester.
func (s *ServiceImpl) relation(ctx context.Context, requester Requester, scope statsdomain.Scope) (string, error) {
	switch scope.Kind {
	case statsdomain.ScopeOrg:
		return ObjectOrg, nil
	case statsdomain.ScopeTeam:
		if requester.TeamID != "" && requester.TeamID == scope.ID {
			return ObjectTeamOwn, nil
		}
		return ObjectTeamOther, nil
	case statsdomain.ScopeEmployee:
		if scope.ID == requester.EmployeeID {
			return ObjectEmployeeSelf, nil
		}
		if requester.TeamID == "" {
			return ObjectEmployeeOther, nil
		}
		teamID, err := s.teamOf(ctx, scope.ID)
		if err != nil {
			if errors.Is(err, membershipdomain.ErrEmployeeNotFound) {
				return ObjectEmployeeOther, nil
			}
			return "", err
		}
		if teamID != "" && teamID == requester.TeamID {
			return ObjectEmployeeTeammate, nil
		}
		return ObjectEmployeeOther, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidObject, scope.Kind)
}

func (s *ServiceImpl) teamOf(ctx context.Context, employeeID string) (string, error) {
	if teamID, ok := s.cache.GetTeamOf(employeeID); ok {
		return teamID, nil
	}
	team, err := s.membership.TeamOfEmployee(ctx, employeeID)
	if err != nil {
		return "", err
	}
	teamID := ""
	if team != nil {
		teamID = team.ID
	}
	s.cache.SetTeamOf(employeeID, teamID)
	return teamID, nil
}

func roleSubject(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Employee: own data only
		{"role:employee", ObjectEmployeeSelf, ActionView},
		{"role:employee", ObjectLearnings, ActionLog},

		// Manager: their team and its members
		{"role:manager", ObjectEmployeeTeammate, ActionView},
		{"role:manager", ObjectTeamOwn, ActionView},

		// Admin: everything
		{"role:admin", ObjectEmployeeOther, ActionView},
		{"role:admin", ObjectTeamOther, ActionView},
		{"role:admin", ObjectOrg, ActionView},
		{"role:admin", ObjectStats, ActionRebuild},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	inheritance := [][]string{
		{"role:manager", "role:employee"},
		{"role:admin", "role:manager"},
	}
	for _, link := range inheritance {
		if _, err := enforcer.AddGroupingPolicy(link); err != nil {
			return err
		}
	}
	return nil
}
