package store

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"github.com/smallbiznis/learnboard/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ProjectionRecord{}))
	return New(Params{DB: conn, Log: zap.NewNop()}), conn
}

func TestLoadAbsentReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Load(context.Background(), domain.EmployeeScope("e-404"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveThenLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, p := range fixtures() {
		require.NoError(t, s.Save(ctx, p))
		got, err := s.Load(ctx, p.Scope)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, p, *got)
	}
}

func TestSaveReplacesAndBumpsVersion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := employeeFixture("e-1", 30)
	second := employeeFixture("e-1", 30, 45)

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	version, err := s.Version(ctx, first.Scope)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	got, err := s.Load(ctx, first.Scope)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalLearnings)
}

func TestLoadMalformedPayload(t *testing.T) {
	s, conn := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, conn.Exec(
		`INSERT INTO learning_stats_projections (scope_kind, scope_id, version, payload, computed_at, updated_at)
		 VALUES (?, ?, 1, ?, ?, ?)`,
		"employee", "e-9", `{"schema_version":1,"kind":"employee"}`, testComputed, testComputed,
	).Error)

	got, err := s.Load(ctx, domain.EmployeeScope("e-9"))
	assert.Nil(t, got)
	if !errors.Is(err, domain.ErrMalformedProjection) {
		t.Fatalf("expected ErrMalformedProjection, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, p := range fixtures() {
		require.NoError(t, s.Save(ctx, p))
	}
	require.NoError(t, s.Delete(ctx, domain.EmployeeScope("e-1")))
	got, err := s.Load(ctx, domain.EmployeeScope("e-1"))
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.DeleteAll(ctx))
	got, err = s.Load(ctx, domain.OrgScope("acme"))
	require.NoError(t, err)
	assert.Nil(t, got)
}
