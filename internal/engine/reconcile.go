package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/metrics"
	"github.com/UkralStul/requestwatch/internal/notify"
	"github.com/UkralStul/requestwatch/internal/storage"
)

// ReconcileConfig задаёт окно перепроверки.
type ReconcileConfig struct {
	MinAge time.Duration
	MaxAge time.Duration
}

// Reconciler перепроверяет посты, попавшие в окно, и обновляет их уведомления.
type Reconciler struct {
	deps Deps
	cfg  ReconcileConfig
}

func NewReconciler(deps Deps, cfg ReconcileConfig) *Reconciler {
	deps.defaults()
	return &Reconciler{deps: deps, cfg: cfg}
}

func (r *Reconciler) Name() string { return "reconciliation" }

// Run выполняет один проход. Окно фиксируется в начале прохода.
func (r *Reconciler) Run(ctx context.Context, log logrus.FieldLogger) (Summary, error) {
	w := storage.Window{Now: r.deps.Now(), MinAge: r.cfg.MinAge, MaxAge: r.cfg.MaxAge}

	estimated, err := r.deps.Store.CountDueForRecheck(ctx, w)
	if err != nil {
		return Summary{}, fmt.Errorf("count due posts: %w", err)
	}
	log.WithField("estimated", estimated).Info("reconciliation started")

	var sum Summary
	for c, err := range r.deps.Store.DueForRecheck(ctx, w) {
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return sum, fmt.Errorf("iterate due posts: %w", err)
		}
		sum.Seen++

		plog := log.WithFields(logrus.Fields{"post_id": c.PostID, "community": c.Community})
		result, err := r.process(context.WithoutCancel(ctx), plog, c)
		if err != nil {
			plog.WithError(err).Error("failed to recheck post")
		}
		metrics.RecheckedPosts.WithLabelValues(result).Inc()
		switch result {
		case metrics.ResultUpdated:
			sum.Updated++
		case metrics.ResultMissing:
			sum.Missing++
		default:
			sum.Failed++
		}

		plog.WithFields(logrus.Fields{
			"processed": sum.Seen,
			"estimated": estimated,
			"percent":   progress(sum.Seen, estimated),
		}).Debug("reconciliation progress")

		if ctx.Err() != nil {
			break
		}
	}
	return sum, nil
}

func progress(done int, estimated int64) int {
	if estimated <= 0 {
		return 100
	}
	return min(100, int(int64(done)*100/estimated))
}

func (r *Reconciler) process(ctx context.Context, log logrus.FieldLogger, c domain.Candidate) (string, error) {
	post, err := r.deps.Feed.LoadPost(ctx, c.PostID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("post disappeared upstream, skipping")
		return metrics.ResultMissing, nil
	}
	if err != nil {
		return metrics.ResultFailed, fmt.Errorf("load post: %w", err)
	}

	a, err := r.deps.assess(ctx, log, *post)
	if err != nil {
		return metrics.ResultFailed, err
	}
	log = log.WithField("state", a.state)

	var previous domain.SubmissionState
	if stored, err := r.deps.Store.Post(ctx, c.PostID); err == nil {
		previous = stored.Status
	}

	refs, err := r.deps.Store.NotificationsFor(ctx, c.PostID)
	if err != nil {
		return metrics.ResultFailed, fmt.Errorf("notifications: %w", err)
	}
	for _, ref := range refs {
		r.refresh(ctx, log.WithField("channel", ref.ChannelID), ref, a)
	}

	now := r.deps.Now()
	if err := r.deps.Store.MarkRechecked(ctx, c.PostID, a.state, now); err != nil {
		return metrics.ResultFailed, fmt.Errorf("mark rechecked: %w", err)
	}

	e := events.Event{
		Type:           events.TypeRechecked,
		PostID:         c.PostID,
		Community:      a.handle,
		State:          a.state,
		Previous:       previous,
		CommunityState: a.access,
		At:             now,
	}
	r.deps.Events.Publish(e)
	if e.Changed() {
		log.WithField("previous", previous).Info("request state changed")
	}
	return metrics.ResultUpdated, nil
}

// refresh обновляет одно сообщение. Метки ставятся по возможности.
func (r *Reconciler) refresh(ctx context.Context, log logrus.FieldLogger, ref domain.NotificationRef, a assessment) {
	sink := r.deps.Sink
	marker := func(err error, action string) {
		if err != nil {
			log.WithError(err).WithField("action", action).Debug("marker update failed")
		}
	}

	marker(sink.RemoveMarker(ctx, ref, notify.MarkerNew), "remove new")
	marker(sink.AddMarker(ctx, ref, notify.MarkerRefresh), "add refresh")
	if err := sink.Edit(ctx, ref, a.content); err != nil {
		log.WithError(err).Warn("failed to edit notification")
	}
	marker(sink.RemoveMarker(ctx, ref, notify.MarkerRefresh), "remove refresh")

	if m, ok := notify.TerminalMarker(a.state); ok {
		marker(sink.AddMarker(ctx, ref, m), "add terminal")
	}
}
