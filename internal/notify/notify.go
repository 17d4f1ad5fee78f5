// Package notify описывает приёмник уведомлений и собирает их содержимое.
package notify

import (
	"context"

	"github.com/UkralStul/requestwatch/internal/domain"
)

// Sink - чат, в который публикуются уведомления.
type Sink interface {
	// WaitReady блокируется, пока соединение с чатом не готово.
	WaitReady(ctx context.Context) error
	Send(ctx context.Context, channelID string, content Content) (messageID string, err error)
	Edit(ctx context.Context, ref domain.NotificationRef, content Content) error
	AddMarker(ctx context.Context, ref domain.NotificationRef, marker Marker) error
	RemoveMarker(ctx context.Context, ref domain.NotificationRef, marker Marker) error
}

// Marker - реакция-метка на сообщении. Только отображение: истинный статус
// хранится в базе.
type Marker string

const (
	MarkerNew     Marker = "🆕"
	MarkerRefresh Marker = "🔄"
	MarkerGranted Marker = "✔"
	MarkerDenied  Marker = "❌"
)

// MarkerFor возвращает метку для только что обнаруженного поста.
func MarkerFor(state domain.SubmissionState) Marker {
	if m, ok := TerminalMarker(state); ok {
		return m
	}
	return MarkerNew
}

// TerminalMarker возвращает метку итогового статуса.
func TerminalMarker(state domain.SubmissionState) (Marker, bool) {
	switch state {
	case domain.StateGranted:
		return MarkerGranted, true
	case domain.StateDenied:
		return MarkerDenied, true
	}
	return "", false
}
