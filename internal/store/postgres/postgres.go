// Package postgres implements store.Store on PostgreSQL. Connections are
// opened with lib/pq and handed to gorm for queries and migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/store"
)

const uniqueViolation = "23505"

// Config holds connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type Store struct {
	db  *gorm.DB
	sql *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL and pings it so misconfiguration fails at boot.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is empty")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = max(cfg.MaxOpenConns/2, 1)
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	gdb, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.New(gormWriter{}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Warn,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: gorm: %w", err)
	}

	appLog.Info("postgres store connected", "max_open_conns", cfg.MaxOpenConns)
	return &Store{db: gdb, sql: sqlDB}, nil
}

// Migrate creates or updates the tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&seriesRow{}, &eventRow{}); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.sql.Close()
}

// gormWriter routes gorm's own logging (slow queries, errors) to the app log.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	appLog.Warn("gorm", "detail", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// translate maps driver errors onto store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrAlreadyExists
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, pqErr.Constraint)
	}
	return err
}

func (s *Store) ListEventsByRecurringID(ctx context.Context, seriesID uuid.UUID) ([]model.Event, error) {
	var rows []eventRow
	err := s.db.WithContext(ctx).
		Where("source_recurring_event_id = ?", seriesID).
		Order("event_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	out := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = model.EventUpcoming
	}
	row := eventRowFrom(*e)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	e.CreatedAt, e.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (model.Event, error) {
	var row eventRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Event{}, translate(err)
	}
	return row.toModel(), nil
}

func (s *Store) ListEvents(ctx context.Context, opts store.ListOptions) (store.Page[model.Event], error) {
	opts = opts.Normalize()
	q := s.db.WithContext(ctx).Model(&eventRow{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Upcoming {
		q = q.Where("event_date >= ?", toDate(opts.Today))
	}
	if opts.SourceRecurringEventID != nil {
		q = q.Where("source_recurring_event_id = ?", *opts.SourceRecurringEventID)
	}
	if opts.Search != "" {
		like := "%" + escapeLike(opts.Search) + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ? OR location ILIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return store.Page[model.Event]{}, translate(err)
	}
	var rows []eventRow
	err := q.Order("event_date ASC, event_time ASC, id ASC").
		Offset(opts.Offset()).
		Limit(opts.PerPage).
		Find(&rows).Error
	if err != nil {
		return store.Page[model.Event]{}, translate(err)
	}

	page := store.Page[model.Event]{TotalCount: int(total), Page: opts.Page, PerPage: opts.PerPage, Items: make([]model.Event, 0, len(rows))}
	for _, r := range rows {
		page.Items = append(page.Items, r.toModel())
	}
	return page, nil
}

var eventColumns = []string{
	"title", "description", "location", "event_date", "event_time",
	"featured_image_url", "status", "source_recurring_event_id", "updated_at",
}

func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	row := eventRowFrom(*e)
	row.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ?", e.ID).
		Select(eventColumns).
		Updates(&row)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	stored, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = stored
	return nil
}

func (s *Store) DeleteEvents(ctx context.Context, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&eventRow{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Store) CreateRecurringEvent(ctx context.Context, r *model.RecurringEvent) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = model.SeriesActive
	}
	row := seriesRowFrom(*r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	r.CreatedAt, r.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *Store) GetRecurringEvent(ctx context.Context, id uuid.UUID) (model.RecurringEvent, error) {
	var row seriesRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.RecurringEvent{}, translate(err)
	}
	return row.toModel(), nil
}

func (s *Store) ListRecurringEvents(ctx context.Context, opts store.ListOptions) (store.Page[model.RecurringEvent], error) {
	opts = opts.Normalize()
	q := s.db.WithContext(ctx).Model(&seriesRow{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Search != "" {
		like := "%" + escapeLike(opts.Search) + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ? OR location ILIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return store.Page[model.RecurringEvent]{}, translate(err)
	}
	var rows []seriesRow
	err := q.Order("created_at DESC, id ASC").
		Offset(opts.Offset()).
		Limit(opts.PerPage).
		Find(&rows).Error
	if err != nil {
		return store.Page[model.RecurringEvent]{}, translate(err)
	}

	page := store.Page[model.RecurringEvent]{TotalCount: int(total), Page: opts.Page, PerPage: opts.PerPage, Items: make([]model.RecurringEvent, 0, len(rows))}
	for _, r := range rows {
		page.Items = append(page.Items, r.toModel())
	}
	return page, nil
}

var seriesColumns = []string{
	"title", "description", "location", "event_time", "featured_image_url",
	"rrule", "dtstart", "status", "updated_at",
}

func (s *Store) UpdateRecurringEvent(ctx context.Context, r *model.RecurringEvent) error {
	row := seriesRowFrom(*r)
	row.UpdatedAt = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&seriesRow{}).
		Where("id = ?", r.ID).
		Select(seriesColumns).
		Updates(&row)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	stored, err := s.GetRecurringEvent(ctx, r.ID)
	if err != nil {
		return err
	}
	*r = stored
	return nil
}

// DeleteRecurringEvents detaches generated events explicitly before deleting,
// so databases migrated without the SET NULL constraint behave the same.
func (s *Store) DeleteRecurringEvents(ctx context.Context, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&eventRow{}).
			Where("source_recurring_event_id IN ?", ids).
			Update("source_recurring_event_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&seriesRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, translate(err)
	}
	return int(deleted), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
