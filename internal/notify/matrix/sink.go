// Package matrix публикует уведомления в комнаты Matrix.
package matrix

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/notify"
)

// Config - параметры подключения к homeserver.
type Config struct {
	HomeserverURL string
	UserID        string
	AccessToken   string
	// MarkerTTL - сколько помнить id реакций для последующего снятия.
	MarkerTTL     time.Duration
	RetryInterval time.Duration
}

// Sink реализует notify.Sink. Клиент mautrix этой версии не принимает
// context, поэтому отмена проверяется перед каждым вызовом.
type Sink struct {
	client  *mautrix.Client
	log     logrus.FieldLogger
	retry   time.Duration
	markers *cache.Cache

	ready     chan struct{}
	readyOnce sync.Once
}

var _ notify.Sink = (*Sink)(nil)

func New(cfg Config, log logrus.FieldLogger) (*Sink, error) {
	client, err := mautrix.NewClient(cfg.HomeserverURL, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = 14 * 24 * time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	return &Sink{
		client:  client,
		log:     log,
		retry:   cfg.RetryInterval,
		markers: cache.New(cfg.MarkerTTL, time.Hour),
		ready:   make(chan struct{}),
	}, nil
}

// Connect проверяет токен через whoami, повторяя попытки до успеха или отмены.
func (s *Sink) Connect(ctx context.Context) error {
	for {
		resp, err := s.client.Whoami()
		if err == nil {
			s.log.WithFields(logrus.Fields{"user_id": resp.UserID, "device_id": resp.DeviceID}).Info("matrix connection ready")
			s.readyOnce.Do(func() { close(s.ready) })
			return nil
		}
		s.log.WithError(err).Warn("matrix whoami failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retry):
		}
	}
}

func (s *Sink) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// === Messages ===

func (s *Sink) Send(ctx context.Context, channelID string, content notify.Content) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.client.SendMessageEvent(id.RoomID(channelID), event.EventMessage, messageContent(content))
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", channelID, err)
	}
	return resp.EventID.String(), nil
}

// Edit отправляет замену через отношение m.replace.
func (s *Sink) Edit(ctx context.Context, ref domain.NotificationRef, content notify.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	replacement := messageContent(content)
	edit := &event.MessageEventContent{
		MsgType:       replacement.MsgType,
		Body:          "* " + replacement.Body,
		Format:        replacement.Format,
		FormattedBody: "* " + replacement.FormattedBody,
		NewContent:    replacement,
		RelatesTo: &event.RelatesTo{
			Type:    event.RelReplace,
			EventID: id.EventID(ref.MessageID),
		},
	}
	if _, err := s.client.SendMessageEvent(id.RoomID(ref.ChannelID), event.EventMessage, edit); err != nil {
		return fmt.Errorf("edit %s in %s: %w", ref.MessageID, ref.ChannelID, err)
	}
	return nil
}

// === Markers ===

func markerKey(ref domain.NotificationRef, marker notify.Marker) string {
	return ref.ChannelID + "|" + ref.MessageID + "|" + string(marker)
}

func (s *Sink) AddMarker(ctx context.Context, ref domain.NotificationRef, marker notify.Marker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := markerKey(ref, marker)
	if _, ok := s.markers.Get(key); ok {
		return nil
	}
	resp, err := s.client.SendReaction(id.RoomID(ref.ChannelID), id.EventID(ref.MessageID), string(marker))
	if err != nil {
		return fmt.Errorf("react %s on %s: %w", marker, ref.MessageID, err)
	}
	s.markers.Set(key, resp.EventID, cache.DefaultExpiration)
	return nil
}

// RemoveMarker снимает реакцию, поставленную этим процессом. Реакции,
// о которых кэш не знает, не трогаются.
func (s *Sink) RemoveMarker(ctx context.Context, ref domain.NotificationRef, marker notify.Marker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := markerKey(ref, marker)
	v, ok := s.markers.Get(key)
	if !ok {
		return nil
	}
	if _, err := s.client.RedactEvent(id.RoomID(ref.ChannelID), v.(id.EventID)); err != nil {
		return fmt.Errorf("redact %s on %s: %w", marker, ref.MessageID, err)
	}
	s.markers.Delete(key)
	return nil
}

// === Formatting ===

func messageContent(c notify.Content) *event.MessageEventContent {
	return &event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          plainBody(c),
		Format:        event.FormatHTML,
		FormattedBody: htmlBody(c),
	}
}

func plainBody(c notify.Content) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", c.Title, c.URL)
	fmt.Fprintf(&b, "%s · %s\n", c.AuthorName, c.Timestamp.UTC().Format(time.RFC3339))
	if c.Description != "" {
		b.WriteString(c.Description + "\n")
	}
	for _, f := range c.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func htmlBody(c notify.Content) string {
	esc := html.EscapeString
	var b strings.Builder
	fmt.Fprintf(&b, `<h4><font data-mx-color="#%06x">■</font> <a href="%s">%s</a></h4>`, c.Color, esc(c.URL), esc(c.Title))
	fmt.Fprintf(&b, `<p><a href="%s">%s</a> · %s</p>`, esc(c.AuthorURL), esc(c.AuthorName), c.Timestamp.UTC().Format(time.RFC3339))
	if c.Description != "" {
		fmt.Fprintf(&b, "<p>%s</p>", esc(c.Description))
	}
	if len(c.Fields) > 0 {
		b.WriteString("<ul>")
		for _, f := range c.Fields {
			fmt.Fprintf(&b, "<li><b>%s</b>: %s</li>", esc(f.Name), esc(f.Value))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}
