package storage

import (
	"context"
	"iter"
	"time"

	"github.com/UkralStul/requestwatch/internal/domain"
)

// Window - окно перепроверки, зафиксированное на момент начала прохода.
// В окно попадают нетерминальные посты, созданные в [Now-MaxAge, Now-MinAge]
// и не трогавшиеся позже Now-MinAge.
type Window struct {
	Now    time.Time
	MinAge time.Duration
	MaxAge time.Duration
}

// NewestCreated - верхняя граница created_at; она же граница updated_at.
func (w Window) NewestCreated() time.Time { return w.Now.Add(-w.MinAge) }

// OldestCreated - нижняя граница created_at.
func (w Window) OldestCreated() time.Time { return w.Now.Add(-w.MaxAge) }

// Contains проверяет предикат для одной записи.
func (w Window) Contains(s *domain.Submission) bool {
	if s.Status.IsTerminal() {
		return false
	}
	newest, oldest := w.NewestCreated(), w.OldestCreated()
	return !s.CreatedAt.After(newest) && !s.CreatedAt.Before(oldest) && !s.UpdatedAt.After(newest)
}

// PageSize - размер страницы при обходе DueForRecheck.
const PageSize = 100

// Storage определяет контракт хранилища состояния. Все операции атомарны
// относительно друг друга.
type Storage interface {
	Exists(ctx context.Context, postID string) (bool, error)
	Post(ctx context.Context, postID string) (*domain.Submission, error)

	// InsertPost возвращает domain.ErrDuplicateKey, если пост уже есть.
	InsertPost(ctx context.Context, postID, community string, state domain.SubmissionState, at time.Time) error
	// RecordNotification возвращает domain.ErrForeignKeyViolation, если поста нет.
	RecordNotification(ctx context.Context, postID string, ref domain.NotificationRef, at time.Time) error
	// Ingest атомарно вставляет пост вместе с его уведомлениями.
	Ingest(ctx context.Context, post domain.Submission, refs []domain.NotificationRef) error

	// DueForRecheck лениво обходит кандидатов в порядке вставки.
	DueForRecheck(ctx context.Context, w Window) iter.Seq2[domain.Candidate, error]
	CountDueForRecheck(ctx context.Context, w Window) (int64, error)

	NotificationsFor(ctx context.Context, postID string) ([]domain.NotificationRef, error)
	UpdatePostState(ctx context.Context, postID string, state domain.SubmissionState, at time.Time) error
	TouchNotifications(ctx context.Context, postID string, at time.Time) error
	// MarkRechecked атомарно выполняет UpdatePostState и TouchNotifications.
	MarkRechecked(ctx context.Context, postID string, state domain.SubmissionState, at time.Time) error

	IncrementRequester(ctx context.Context, handle string) (int, error)

	// Методы для статистики
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountSinceWithState(ctx context.Context, since time.Time, state domain.SubmissionState) (int64, error)
}
