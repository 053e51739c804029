package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/learnboard/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Resolver struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Resolver {
	return &Resolver{
		db:   p.DB,
		log:  p.Log.Named("membership.resolver"),
		repo: p.Repo,
	}
}

func (r *Resolver) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	employee, err := r.repo.FindEmployee(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if employee == nil {
		return nil, domain.ErrEmployeeNotFound
	}
	return employee, nil
}

func (r *Resolver) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	team, err := r.repo.FindTeam(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, domain.ErrTeamNotFound
	}
	return team, nil
}

func (r *Resolver) MembersOf(ctx context.Context, teamID string) ([]domain.Employee, error) {
	if _, err := r.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return r.repo.ListEmployeesByTeam(ctx, r.db, strings.TrimSpace(teamID))
}

func (r *Resolver) TeamsOf(ctx context.Context, orgID string) ([]domain.Team, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, domain.ErrInvalidID
	}
	return r.repo.ListTeamsByOrg(ctx, r.db, orgID)
}

func (r *Resolver) TeamOfEmployee(ctx context.Context, employeeID string) (*domain.Team, error) {
	employee, err := r.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	teamID := employee.Team()
	if teamID == "" {
		return nil, nil
	}
	team, err := r.repo.FindTeam(ctx, r.db, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		r.log.Warn("employee references missing team",
			zap.String("employee_id", employee.ID),
			zap.String("team_id", teamID),
		)
	}
	return team, nil
}
