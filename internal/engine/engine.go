// Package engine содержит периодические задачи: обнаружение новых постов и
// перепроверку уже известных.
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/classify"
	"github.com/UkralStul/requestwatch/internal/community"
	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/feed"
	"github.com/UkralStul/requestwatch/internal/notify"
	"github.com/UkralStul/requestwatch/internal/storage"
)

// Publisher получает события об обработанных постах.
type Publisher interface {
	Publish(e events.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}

// Deps - общие зависимости обеих задач.
type Deps struct {
	Feed       feed.Client
	Sink       notify.Sink
	Store      storage.Storage
	Classifier *classify.Classifier
	Prober     *community.Prober
	Events     Publisher
	Now        func() time.Time
}

func (d *Deps) defaults() {
	if d.Events == nil {
		d.Events = noopPublisher{}
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Summary - итог одного прохода.
type Summary struct {
	Seen     int
	Inserted int
	Updated  int
	Skipped  int
	Missing  int
	Failed   int
}

func (s Summary) fields() logrus.Fields {
	return logrus.Fields{
		"seen":     s.Seen,
		"inserted": s.Inserted,
		"updated":  s.Updated,
		"skipped":  s.Skipped,
		"missing":  s.Missing,
		"failed":   s.Failed,
	}
}

// assessment - то, что обе задачи выводят о посте из ленты.
type assessment struct {
	handle  string
	state   domain.SubmissionState
	access  domain.CommunityState
	content notify.Content
}

// assess классифицирует пост, проверяет сообщество и собирает карточку.
// Ошибка означает, что пост нельзя обработать в этом проходе.
func (d *Deps) assess(ctx context.Context, log logrus.FieldLogger, post domain.FeedPost) (assessment, error) {
	comments, err := d.Feed.TopLevelComments(ctx, post.ID)
	if err != nil {
		return assessment{}, err
	}
	state := d.Classifier.Classify(comments)

	handle := community.ExtractHandle(post.URL)
	access, detail := d.Prober.ProbeDetail(ctx, handle)

	author, err := d.Feed.LoadAuthor(ctx, post.AuthorName)
	if err != nil {
		log.WithError(err).WithField("author", post.AuthorName).Warn("failed to load author")
		author = domain.DeletedAuthor{}
	}

	return assessment{
		handle: handle,
		state:  state,
		access: access,
		content: notify.Render(notify.View{
			Post:           post,
			Author:         author,
			Handle:         handle,
			State:          state,
			CommunityState: access,
			Detail:         detail,
		}),
	}, nil
}
