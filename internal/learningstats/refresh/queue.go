package refresh

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/learnboard/internal/learningstats/domain"
	"gorm.io/gorm"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	ReasonEventLogged = "event_logged"
	ReasonRebuild     = "rebuild"
)

// MaxAttempts bounds how often a request is retried before it is marked failed.
const MaxAttempts = 5

var ErrMissingIDGenerator = errors.New("missing_id_generator")

// Request is one queued recompute of a scope.
type Request struct {
	ID        snowflake.ID `gorm:"column:id"`
	ScopeKind string       `gorm:"column:scope_kind"`
	ScopeID   string       `gorm:"column:scope_id"`
	Reason    string       `gorm:"column:reason"`
	Attempts  int          `gorm:"column:attempts"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

func (r Request) Scope() domain.Scope {
	return domain.Scope{Kind: domain.ScopeKind(r.ScopeKind), ID: r.ScopeID}
}

// RequestRecord maps stats_refresh_requests for dialects without SQL migrations.
type RequestRecord struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ScopeKind   string       `gorm:"type:varchar(16);not null;index:idx_refresh_scope"`
	ScopeID     string       `gorm:"type:varchar(64);not null;index:idx_refresh_scope"`
	Reason      string       `gorm:"type:varchar(32);not null"`
	Status      string       `gorm:"type:varchar(16);not null;index:idx_refresh_status"`
	Attempts    int          `gorm:"not null;default:0"`
	Error       *string
	CreatedAt   time.Time `gorm:"not null;index:idx_refresh_status"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (RequestRecord) TableName() string { return "stats_refresh_requests" }

// Queue is the durable refresh request table.
type Queue struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewQueue(db *gorm.DB, genID *snowflake.Node) *Queue {
	return &Queue{db: db, genID: genID}
}

// Enqueue adds a pending request for scope unless one is already pending.
// It reports whether a row was inserted.
func (q *Queue) Enqueue(ctx context.Context, scope domain.Scope, reason string, now time.Time) (bool, error) {
	if q.genID == nil {
		return false, ErrMissingIDGenerator
	}
	if !scope.Kind.Valid() || strings.TrimSpace(scope.ID) == "" {
		return false, domain.ErrInvalidScope
	}

	result := q.db.WithContext(ctx).Exec(
		`INSERT INTO stats_refresh_requests (id, scope_kind, scope_id, reason, status, attempts, created_at)
		 SELECT ?, ?, ?, ?, ?, 0, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM stats_refresh_requests
			WHERE scope_kind = ? AND scope_id = ? AND status = ?
		 )`,
		q.genID.Generate(),
		string(scope.Kind),
		scope.ID,
		reason,
		StatusPending,
		now.UTC(),
		string(scope.Kind),
		scope.ID,
		StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Claim moves up to limit pending requests to processing, oldest first.
// Rows claimed concurrently by another worker are skipped.
func (q *Queue) Claim(ctx context.Context, limit int, now time.Time) ([]Request, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []Request
	if err := q.db.WithContext(ctx).Raw(
		`SELECT id, scope_kind, scope_id, reason, attempts, created_at
		 FROM stats_refresh_requests
		 WHERE status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		StatusPending,
		limit,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	claimed := make([]Request, 0, len(rows))
	for _, row := range rows {
		result := q.db.WithContext(ctx).Exec(
			`UPDATE stats_refresh_requests
			 SET status = ?, started_at = ?, attempts = attempts + 1
			 WHERE id = ? AND status = ?`,
			StatusProcessing,
			now.UTC(),
			row.ID,
			StatusPending,
		)
		if result.Error != nil {
			return claimed, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		row.Attempts++
		claimed = append(claimed, row)
	}
	return claimed, nil
}

func (q *Queue) Complete(ctx context.Context, id snowflake.ID, now time.Time) error {
	return q.db.WithContext(ctx).Exec(
		`UPDATE stats_refresh_requests
		 SET status = ?, error = NULL, completed_at = ?
		 WHERE id = ?`,
		StatusCompleted,
		now.UTC(),
		id,
	).Error
}

func (q *Queue) Fail(ctx context.Context, id snowflake.ID, cause error, now time.Time) error {
	return q.db.WithContext(ctx).Exec(
		`UPDATE stats_refresh_requests
		 SET status = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		StatusFailed,
		errorSummary(cause),
		now.UTC(),
		id,
	).Error
}

// Release returns a processing request to pending so a later pass retries it.
func (q *Queue) Release(ctx context.Context, id snowflake.ID, cause error) error {
	return q.db.WithContext(ctx).Exec(
		`UPDATE stats_refresh_requests
		 SET status = ?, error = ?, started_at = NULL
		 WHERE id = ? AND status = ?`,
		StatusPending,
		errorSummary(cause),
		id,
		StatusProcessing,
	).Error
}

// Pending counts requests waiting to be processed.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Table("stats_refresh_requests").
		Where("status = ?", StatusPending).
		Count(&count).Error
	return count, err
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	value := strings.TrimSpace(err.Error())
	if value == "" {
		return "unknown_error"
	}
	if len(value) > 256 {
		return value[:256]
	}
	return value
}
