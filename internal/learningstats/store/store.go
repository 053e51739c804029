package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectionRecord is the row shape of learning_stats_projections.
type ProjectionRecord struct {
	ScopeKind  string         `gorm:"column:scope_kind;primaryKey;size:16"`
	ScopeID    string         `gorm:"column:scope_id;primaryKey;size:64"`
	Version    int64          `gorm:"column:version;not null;default:1"`
	Payload    datatypes.JSON `gorm:"column:payload;not null"`
	ComputedAt time.Time      `gorm:"column:computed_at;not null"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;not null"`
}

func (ProjectionRecord) TableName() string { return "learning_stats_projections" }

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) *Store {
	return &Store{
		db:  p.DB,
		log: p.Log.Named("learningstats.store"),
	}
}

// Load returns the stored projection or nil when none exists. A stored record
// that cannot be parsed yields an error wrapping domain.ErrMalformedProjection.
func (s *Store) Load(ctx context.Context, scope domain.Scope) (*domain.Projection, error) {
	var rec ProjectionRecord
	err := s.db.WithContext(ctx).
		Where("scope_kind = ? AND scope_id = ?", string(scope.Kind), scope.ID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	projection, err := Parse(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("load %s (version %d): %w", scope, rec.Version, err)
	}
	if projection.Scope != scope {
		return nil, fmt.Errorf("load %s: %w: record holds %s", scope, domain.ErrMalformedProjection, projection.Scope)
	}
	return &projection, nil
}

// Save replaces the whole projection for its scope in a single upsert.
// Concurrent writers are last-write-wins; readers never see a partial record.
func (s *Store) Save(ctx context.Context, projection domain.Projection) error {
	payload, err := Encode(projection)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := ProjectionRecord{
		ScopeKind:  string(projection.Scope.Kind),
		ScopeID:    projection.Scope.ID,
		Version:    1,
		Payload:    datatypes.JSON(payload),
		ComputedAt: projection.ComputedAt.UTC(),
		UpdatedAt:  now,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope_kind"}, {Name: "scope_id"}},
		DoUpdates: append(
			clause.AssignmentColumns([]string{"payload", "computed_at", "updated_at"}),
			clause.Assignment{
				Column: clause.Column{Name: "version"},
				Value:  gorm.Expr("learning_stats_projections.version + 1"),
			},
		),
	}).Create(&rec).Error
}

func (s *Store) Delete(ctx context.Context, scope domain.Scope) error {
	return s.db.WithContext(ctx).
		Where("scope_kind = ? AND scope_id = ?", string(scope.Kind), scope.ID).
		Delete(&ProjectionRecord{}).Error
}

// DeleteAll clears every stored projection. The next precomputed read of
// each scope recomputes it.
func (s *Store) DeleteAll(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ProjectionRecord{})
	if result.Error != nil {
		return result.Error
	}
	s.log.Info("cleared stored projections", zap.Int64("rows", result.RowsAffected))
	return nil
}

// Version returns the write counter of a stored projection, 0 when absent.
func (s *Store) Version(ctx context.Context, scope domain.Scope) (int64, error) {
	var rec ProjectionRecord
	err := s.db.WithContext(ctx).
		Select("version").
		Where("scope_kind = ? AND scope_id = ?", string(scope.Kind), scope.ID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return rec.Version, err
}
