package repository

import (
	"context"

	"github.com/smallbiznis/learnboard/internal/membership/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEmployee(ctx context.Context, db *gorm.DB, id string) (*domain.Employee, error) {
	var employee domain.Employee
	err := db.WithContext(ctx).Raw(
		`SELECT id, team_id, name, email, role, created_at
		 FROM employees WHERE id = ?`,
		id,
	).Scan(&employee).Error
	if err != nil {
		return nil, err
	}
	if employee.ID == "" {
		return nil, nil
	}
	return &employee, nil
}

func (r *repo) FindTeam(ctx context.Context, db *gorm.DB, id string) (*domain.Team, error) {
	var team domain.Team
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, created_at
		 FROM teams WHERE id = ?`,
		id,
	).Scan(&team).Error
	if err != nil {
		return nil, err
	}
	if team.ID == "" {
		return nil, nil
	}
	return &team, nil
}

func (r *repo) ListEmployeesByTeam(ctx context.Context, db *gorm.DB, teamID string) ([]domain.Employee, error) {
	var employees []domain.Employee
	err := db.WithContext(ctx).
		Model(&domain.Employee{}).
		Where("team_id = ?", teamID).
		Order("id asc").
		Find(&employees).Error
	if err != nil {
		return nil, err
	}
	return employees, nil
}

func (r *repo) ListTeamsByOrg(ctx context.Context, db *gorm.DB, orgID string) ([]domain.Team, error) {
	var teams []domain.Team
	err := db.WithContext(ctx).
		Model(&domain.Team{}).
		Where("org_id = ?", orgID).
		Order("id asc").
		Find(&teams).Error
	if err != nil {
		return nil, err
	}
	return teams, nil
}
