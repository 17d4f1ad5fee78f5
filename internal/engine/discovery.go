package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/metrics"
	"github.com/UkralStul/requestwatch/internal/notify"
)

// DiscoveryConfig - параметры сканирования ленты.
type DiscoveryConfig struct {
	Source   string
	Channels []string
	// FirstBatch используется в первом успешном проходе после старта.
	FirstBatch int
	Batch      int
}

// Discovery забирает новые посты из ленты и публикует их.
type Discovery struct {
	deps    Deps
	cfg     DiscoveryConfig
	started bool
}

func NewDiscovery(deps Deps, cfg DiscoveryConfig) *Discovery {
	deps.defaults()
	if cfg.FirstBatch <= 0 {
		cfg.FirstBatch = 250
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &Discovery{deps: deps, cfg: cfg}
}

func (d *Discovery) Name() string { return "discovery" }

// Run выполняет один проход. Посты обрабатываются от старых к новым; отмена
// ctx проверяется между постами, начатый пост доводится до конца.
func (d *Discovery) Run(ctx context.Context, log logrus.FieldLogger) (Summary, error) {
	limit := d.cfg.Batch
	if !d.started {
		limit = d.cfg.FirstBatch
	}

	posts, err := d.deps.Feed.ListNewest(ctx, d.cfg.Source, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list newest in %s: %w", d.cfg.Source, err)
	}
	d.started = true

	var sum Summary
	for i := len(posts) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			break
		}
		post := posts[i]
		sum.Seen++

		plog := log.WithField("post_id", post.ID)
		result, err := d.process(context.WithoutCancel(ctx), plog, post)
		if err != nil {
			plog.WithError(err).Error("failed to process new post")
		}
		metrics.DiscoveredPosts.WithLabelValues(result).Inc()
		switch result {
		case metrics.ResultInserted:
			sum.Inserted++
		case metrics.ResultSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	return sum, nil
}

func (d *Discovery) process(ctx context.Context, log logrus.FieldLogger, post domain.FeedPost) (string, error) {
	exists, err := d.deps.Store.Exists(ctx, post.ID)
	if err != nil {
		return metrics.ResultFailed, err
	}
	if exists {
		return metrics.ResultSkipped, nil
	}

	a, err := d.deps.assess(ctx, log, post)
	if err != nil {
		return metrics.ResultFailed, err
	}
	log = log.WithFields(logrus.Fields{"community": a.handle, "state": a.state})

	refs := make([]domain.NotificationRef, 0, len(d.cfg.Channels))
	for _, channel := range d.cfg.Channels {
		msgID, err := d.deps.Sink.Send(ctx, channel, a.content)
		if err != nil {
			log.WithError(err).WithField("channel", channel).Warn("failed to send notification")
			continue
		}
		refs = append(refs, domain.NotificationRef{ChannelID: channel, MessageID: msgID})
	}
	if len(refs) == 0 && len(d.cfg.Channels) > 0 {
		// Пост не сохраняем: следующий проход попробует снова.
		return metrics.ResultFailed, errors.New("no notification was delivered")
	}

	now := d.deps.Now()
	record := domain.Submission{
		PostID:    post.ID,
		Community: a.handle,
		Status:    a.state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.deps.Store.Ingest(ctx, record, refs); err != nil {
		return metrics.ResultFailed, fmt.Errorf("ingest: %w", err)
	}

	marker := notify.MarkerFor(a.state)
	for _, ref := range refs {
		if err := d.deps.Sink.AddMarker(ctx, ref, marker); err != nil {
			log.WithError(err).WithField("channel", ref.ChannelID).Debug("failed to add marker")
		}
	}

	if post.AuthorName != "" {
		if n, err := d.deps.Store.IncrementRequester(ctx, post.AuthorName); err != nil {
			log.WithError(err).Warn("failed to count requester")
		} else {
			log = log.WithField("requests", n)
		}
	}

	d.deps.Events.Publish(events.Event{
		Type:           events.TypeDiscovered,
		PostID:         post.ID,
		Community:      a.handle,
		State:          a.state,
		CommunityState: a.access,
		At:             now,
	})
	log.WithField("notifications", len(refs)).Info("new post published")
	return metrics.ResultInserted, nil
}
