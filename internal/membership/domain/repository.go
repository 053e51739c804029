package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindEmployee(ctx context.Context, db *gorm.DB, id string) (*Employee, error)
	FindTeam(ctx context.Context, db *gorm.DB, id string) (*Team, error)
	ListEmployeesByTeam(ctx context.Context, db *gorm.DB, teamID string) ([]Employee, error)
	ListTeamsByOrg(ctx context.Context, db *gorm.DB, orgID string) ([]Team, error)
}
