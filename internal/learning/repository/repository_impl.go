package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-sql/civil"
	"github.com/smallbiznis/learnboard/internal/learning/domain"
	"github.com/smallbiznis/learnboard/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the row shape of learning_events. OccurredOn is stored as an
// ISO date string so ordering and range filters work on every dialect.
type EventRecord struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement:false"`
	EmployeeID      string         `gorm:"column:employee_id;size:64;not null;index:idx_learning_events_employee_date,priority:1"`
	ActivityType    string         `gorm:"column:activity_type;size:32;not null"`
	Title           string         `gorm:"column:title"`
	OccurredOn      string         `gorm:"column:occurred_on;size:10;not null;index:idx_learning_events_employee_date,priority:2"`
	DurationMinutes int            `gorm:"column:duration_minutes;not null"`
	Tags            datatypes.JSON `gorm:"column:tags"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null"`
}

func (EventRecord) TableName() string { return "learning_events" }

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	record, err := toRecord(event)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO learning_events (id, employee_id, activity_type, title, occurred_on, duration_minutes, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.EmployeeID,
		record.ActivityType,
		record.Title,
		record.OccurredOn,
		record.DurationMinutes,
		record.Tags,
		record.CreatedAt,
	).Error
}

// idsPerQuery bounds the employee_id IN list so org-wide reads stay under
// driver bind-parameter limits (65535 on postgres).
var idsPerQuery = 1000

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Event, error) {
	if filter.EmployeeIDs == nil {
		return r.listEvents(ctx, db, filter)
	}

	ids := filter.EmployeeIDs
	events := []domain.Event{}
	for len(ids) > 0 {
		n := min(len(ids), idsPerQuery)
		chunk := filter
		chunk.EmployeeIDs = ids[:n]
		ids = ids[n:]

		part, err := r.listEvents(ctx, db, chunk)
		if err != nil {
			return nil, err
		}
		events = append(events, part...)
	}
	if len(filter.EmployeeIDs) > idsPerQuery {
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].OccurredOn != events[j].OccurredOn {
				return events[i].OccurredOn.Before(events[j].OccurredOn)
			}
			return events[i].ID.Int64() < events[j].ID.Int64()
		})
	}
	return events, nil
}

func (r *repo) listEvents(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Event, error) {
	stmt := applyFilter(db.WithContext(ctx).Model(&EventRecord{}), filter)

	var records []EventRecord
	if err := stmt.Order("occurred_on asc, id asc").Find(&records).Error; err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(records))
	for i := range records {
		event, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, nil
}

func (r *repo) ListPage(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Event, error) {
	if filter.EmployeeIDs != nil && len(filter.EmployeeIDs) == 0 {
		return []*domain.Event{}, nil
	}

	stmt := applyFilter(db.WithContext(ctx).Model(&EventRecord{}), filter)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(occurred_on < ? OR (occurred_on = ? AND id < ?))", cursor.OccurredOn, cursor.OccurredOn, id)
	}

	var records []EventRecord
	err := stmt.
		Order("occurred_on desc, id desc").
		Limit(page.Limit() + 1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	events := make([]*domain.Event, 0, len(records))
	for i := range records {
		event, err := fromRecord(&records[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if filter.EmployeeIDs != nil {
		stmt = stmt.Where("employee_id IN ?", filter.EmployeeIDs)
	}
	if filter.Since != nil {
		stmt = stmt.Where("occurred_on >= ?", filter.Since.String())
	}
	return stmt
}

func toRecord(event *domain.Event) (*EventRecord, error) {
	var tags datatypes.JSON
	if len(event.Tags) > 0 {
		raw, err := json.Marshal(event.Tags)
		if err != nil {
			return nil, err
		}
		tags = datatypes.JSON(raw)
	}
	return &EventRecord{
		ID:              event.ID.Int64(),
		EmployeeID:      event.EmployeeID,
		ActivityType:    string(event.ActivityType),
		Title:           event.Title,
		OccurredOn:      event.OccurredOn.String(),
		DurationMinutes: event.DurationMinutes,
		Tags:            tags,
		CreatedAt:       event.CreatedAt,
	}, nil
}

func fromRecord(record *EventRecord) (*domain.Event, error) {
	occurredOn, err := civil.ParseDate(record.OccurredOn)
	if err != nil {
		return nil, fmt.Errorf("learning event %d: parse occurred_on %q: %w", record.ID, record.OccurredOn, err)
	}
	var tags []string
	if len(record.Tags) > 0 && string(record.Tags) != "null" {
		if err := json.Unmarshal(record.Tags, &tags); err != nil {
			return nil, fmt.Errorf("learning event %d: decode tags: %w", record.ID, err)
		}
	}
	return &domain.Event{
		ID:              snowflake.ID(record.ID),
		EmployeeID:      record.EmployeeID,
		ActivityType:    domain.ActivityType(record.ActivityType),
		Title:           record.Title,
		OccurredOn:      occurredOn,
		DurationMinutes: record.DurationMinutes,
		Tags:            tags,
		CreatedAt:       record.CreatedAt,
	}, nil
}
