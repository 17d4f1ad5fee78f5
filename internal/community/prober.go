// Package community разбирает ссылки на сообщества и проверяет их доступность.
package community

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/metrics"
)

// Reader - часть клиента ленты, нужная для проверки сообщества.
type Reader interface {
	LoadCommunity(ctx context.Context, handle string) (*domain.Community, error)
	ListModerators(ctx context.Context, handle string) ([]string, error)
}

// Prober превращает исход попытки чтения в CommunityState. Ошибки чтения
// наружу не выходят.
type Prober struct {
	reader Reader
	log    logrus.FieldLogger
}

func NewProber(reader Reader, log logrus.FieldLogger) *Prober {
	return &Prober{reader: reader, log: log}
}

// Probe возвращает только состояние доступа.
func (p *Prober) Probe(ctx context.Context, handle string) domain.CommunityState {
	state, _, _ := p.load(ctx, handle)
	return state
}

// ProbeDetail дополнительно возвращает подробности для PUBLIC и RESTRICTED.
// Список модераторов запрашивается отдельно; его ошибка даёт пустой список,
// а не провал всей проверки.
func (p *Prober) ProbeDetail(ctx context.Context, handle string) (domain.CommunityState, *domain.CommunityDetail) {
	state, c, _ := p.load(ctx, handle)
	if !state.ShowsDetail() || c == nil {
		return state, nil
	}

	detail := &domain.CommunityDetail{
		Subscribers: c.Subscribers,
		Adult:       c.Adult,
		IconURL:     c.IconURL,
		CreatedAt:   c.CreatedAt,
		Moderators:  []string{},
	}

	mods, err := p.reader.ListModerators(ctx, handle)
	if err != nil {
		p.log.WithError(err).WithField("community", handle).Warn("failed to list moderators")
		return state, detail
	}
	detail.Moderators = mods
	return state, detail
}

func (p *Prober) load(ctx context.Context, handle string) (domain.CommunityState, *domain.Community, error) {
	if handle == "" {
		metrics.ProbeResults.WithLabelValues(string(domain.CommunityBadHandle)).Inc()
		return domain.CommunityBadHandle, nil, domain.ErrMalformedRequest
	}

	c, err := p.reader.LoadCommunity(ctx, handle)
	state := StateFor(c, err)
	metrics.ProbeResults.WithLabelValues(string(state)).Inc()

	if err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"community": handle,
			"state":     state,
		}).Debug("community probe failed")
	}
	return state, c, err
}

// StateFor отображает результат чтения сообщества на CommunityState.
func StateFor(c *domain.Community, err error) domain.CommunityState {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		return domain.CommunityPrivate
	case errors.Is(err, domain.ErrNotFound):
		return domain.CommunityBanned
	case errors.Is(err, domain.ErrMalformedRequest):
		return domain.CommunityBadHandle
	case err != nil, c == nil:
		return domain.CommunityNotReachable
	}

	switch c.Type {
	case "public":
		return domain.CommunityPublic
	case "restricted":
		return domain.CommunityRestricted
	}
	return domain.CommunityNotReachable
}
