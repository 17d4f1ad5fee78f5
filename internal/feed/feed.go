// Package feed описывает источник постов, с которым работают движки.
package feed

import (
	"context"

	"github.com/UkralStul/requestwatch/internal/domain"
)

// Client - всё, что движкам нужно от источника.
//
// Ошибки сводятся к доменным: domain.ErrAccessDenied, domain.ErrNotFound,
// domain.ErrMalformedRequest, domain.ErrRateLimited, domain.ErrUnreachable.
type Client interface {
	// ListNewest возвращает до limit постов источника, новые первыми.
	ListNewest(ctx context.Context, source string, limit int) ([]domain.FeedPost, error)
	LoadPost(ctx context.Context, id string) (*domain.FeedPost, error)
	// TopLevelComments возвращает комментарии верхнего уровня в порядке ленты.
	TopLevelComments(ctx context.Context, postID string) ([]domain.Comment, error)

	LoadCommunity(ctx context.Context, handle string) (*domain.Community, error)
	ListModerators(ctx context.Context, handle string) ([]string, error)

	// LoadAuthor не ошибается на удалённых и заблокированных аккаунтах:
	// они возвращаются как DeletedAuthor и SuspendedAuthor.
	LoadAuthor(ctx context.Context, name string) (domain.Author, error)
}
