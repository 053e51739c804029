package domain

import (
	"context"

	"github.com/smallbiznis/learnboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	ListEvents(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Event, error)
	ListPage(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Event, error)
}
