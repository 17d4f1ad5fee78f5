// Package sqlstore реализует хранилище состояния поверх GORM (SQLite или PostgreSQL).
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/storage"
)

// Поддерживаемые драйверы.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store реализует интерфейс Storage с использованием GORM.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// Open подключается к базе и выполняет миграцию схемы.
func Open(driver, dsn string, log logrus.FieldLogger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log.WithField("component", "gorm"), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// Одно соединение сериализует все записи.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(&domain.Submission{}, &domain.Notification{}, &domain.Requester{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping проверяет соединение с базой.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// === Post Methods ===

func (s *Store) Exists(ctx context.Context, postID string) (bool, error) {
	return postExists(s.db.WithContext(ctx), postID)
}

func postExists(tx *gorm.DB, postID string) (bool, error) {
	var n int64
	if err := tx.Model(&domain.Submission{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Post(ctx context.Context, postID string) (*domain.Submission, error) {
	var post domain.Submission
	if err := s.db.WithContext(ctx).First(&post, "post_id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
		}
		return nil, err
	}
	return &post, nil
}

func (s *Store) InsertPost(ctx context.Context, postID, community string, state domain.SubmissionState, at time.Time) error {
	post := domain.Submission{PostID: postID, Community: community, Status: state, CreatedAt: at, UpdatedAt: at}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertPost(tx, &post)
	})
}

func insertPost(tx *gorm.DB, post *domain.Submission) error {
	ok, err := postExists(tx, post.PostID)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("post %s: %w", post.PostID, domain.ErrDuplicateKey)
	}
	if post.Status == "" {
		post.Status = domain.StateNotAssessed
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()
	return translate(tx.Create(post).Error)
}

// === Notification Methods ===

func (s *Store) RecordNotification(ctx context.Context, postID string, ref domain.NotificationRef, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := postExists(tx, postID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("notification for post %s: %w", postID, domain.ErrForeignKeyViolation)
		}
		return createNotifications(tx, postID, []domain.NotificationRef{ref}, at)
	})
}

func createNotifications(tx *gorm.DB, postID string, refs []domain.NotificationRef, at time.Time) error {
	if len(refs) == 0 {
		return nil
	}
	at = at.UTC()
	notes := make([]domain.Notification, 0, len(refs))
	for _, ref := range refs {
		notes = append(notes, domain.Notification{
			MessageID: ref.MessageID,
			ChannelID: ref.ChannelID,
			PostID:    postID,
			CreatedAt: at,
			UpdatedAt: at,
		})
	}
	if err := translate(tx.Create(&notes).Error); err != nil {
		return fmt.Errorf("notifications for post %s: %w", postID, err)
	}
	return nil
}

// Ingest вставляет пост и его уведомления в одной транзакции.
func (s *Store) Ingest(ctx context.Context, post domain.Submission, refs []domain.NotificationRef) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post.ID = 0
		if err := insertPost(tx, &post); err != nil {
			return err
		}
		return createNotifications(tx, post.PostID, refs, post.CreatedAt)
	})
}

func (s *Store) NotificationsFor(ctx context.Context, postID string) ([]domain.NotificationRef, error) {
	var refs []domain.NotificationRef
	err := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Select("channel_id", "message_id").
		Where("post_id = ?", postID).
		Order("id ASC").
		Scan(&refs).Error
	return refs, err
}

// === Recheck Methods ===

func (s *Store) dueQuery(ctx context.Context, w storage.Window) *gorm.DB {
	newest := w.NewestCreated().UTC()
	return s.db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("status NOT IN ?", domain.TerminalStates).
		Where("created_at >= ? AND created_at <= ?", w.OldestCreated().UTC(), newest).
		Where("updated_at <= ?", newest)
}

// DueForRecheck читает кандидатов страницами по возрастанию id. Между
// страницами соединение свободно, поэтому в теле цикла можно писать в хранилище.
func (s *Store) DueForRecheck(ctx context.Context, w storage.Window) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		var after uint
		for {
			var page []domain.Submission
			err := s.dueQuery(ctx, w).
				Select("id", "post_id", "community").
				Where("id > ?", after).
				Order("id ASC").
				Limit(storage.PageSize).
				Find(&page).Error
			if err != nil {
				yield(domain.Candidate{}, err)
				return
			}
			for _, p := range page {
				if !yield(domain.Candidate{PostID: p.PostID, Community: p.Community}, nil) {
					return
				}
				after = p.ID
			}
			if len(page) < storage.PageSize {
				return
			}
		}
	}
}

func (s *Store) CountDueForRecheck(ctx context.Context, w storage.Window) (int64, error) {
	var n int64
	err := s.dueQuery(ctx, w).Count(&n).Error
	return n, err
}

func (s *Store) UpdatePostState(ctx context.Context, postID string, state domain.SubmissionState, at time.Time) error {
	return updatePostState(s.db.WithContext(ctx), postID, state, at)
}

func updatePostState(tx *gorm.DB, postID string, state domain.SubmissionState, at time.Time) error {
	res := tx.Model(&domain.Submission{}).
		Where("post_id = ?", postID).
		Updates(map[string]any{"status": state, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) TouchNotifications(ctx context.Context, postID string, at time.Time) error {
	return touchNotifications(s.db.WithContext(ctx), postID, at)
}

func touchNotifications(tx *gorm.DB, postID string, at time.Time) error {
	return tx.Model(&domain.Notification{}).
		Where("post_id = ?", postID).
		Update("updated_at", at.UTC()).Error
}

func (s *Store) MarkRechecked(ctx context.Context, postID string, state domain.SubmissionState, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updatePostState(tx, postID, state, at); err != nil {
			return err
		}
		return touchNotifications(tx, postID, at)
	})
}

// === Requester Methods ===

func (s *Store) IncrementRequester(ctx context.Context, handle string) (int, error) {
	var r domain.Requester
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_handle"}},
			DoUpdates: clause.Assignments(map[string]any{"request_count": gorm.Expr("users.request_count + 1")}),
		}).Create(&domain.Requester{UserHandle: handle, RequestCount: 1}).Error
		if err != nil {
			return err
		}
		return tx.First(&r, "user_handle = ?", handle).Error
	})
	if err != nil {
		return 0, err
	}
	return r.RequestCount, nil
}

// === Statistics Methods ===

func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("created_at >= ?", since.UTC()).
		Count(&n).Error
	return n, err
}

func (s *Store) CountSinceWithState(ctx context.Context, since time.Time, state domain.SubmissionState) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.Submission{}).
		Where("created_at >= ? AND status = ?", since.UTC(), state).
		Count(&n).Error
	return n, err
}

// translate приводит ошибки ограничений GORM к доменным.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrDuplicateKey, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", domain.ErrForeignKeyViolation, err)
	}
	return err
}
