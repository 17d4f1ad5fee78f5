// Package events раздаёт изменения статусов живым подписчикам.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/UkralStul/requestwatch/internal/domain"
)

// Тип события.
const (
	TypeDiscovered = "discovered"
	TypeRechecked  = "rechecked"
)

// Event - одно изменение, видимое на дашборде.
type Event struct {
	Type           string                 `json:"type"`
	PostID         string                 `json:"postId"`
	Community      string                 `json:"community"`
	State          domain.SubmissionState `json:"state"`
	Previous       domain.SubmissionState `json:"previous,omitempty"`
	CommunityState domain.CommunityState  `json:"communityState"`
	At             time.Time              `json:"at"`
}

// Changed сообщает, что статус поста изменился при перепроверке.
func (e Event) Changed() bool {
	return e.Previous != "" && e.Previous != e.State
}

// allPosts - ключ подписки на все посты.
const allPosts = ""

// Hub хранит каналы подписчиков.
type Hub struct {
	mu sync.RWMutex
	//          map[postID] map[subscriberID] channel
	subs   map[string]map[string]chan Event
	buffer int
}

// NewHub создаёт хаб; buffer - ёмкость канала каждого подписчика.
func NewHub(buffer int) *Hub {
	return &Hub{
		subs:   make(map[string]map[string]chan Event),
		buffer: buffer,
	}
}

// Publish не блокируется: медленный подписчик теряет событие.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range []string{e.PostID, allPosts} {
		for _, ch := range h.subs[key] {
			select {
			case ch <- e:
			default:
				// Клиент не успевает читать
			}
		}
	}
}

// Subscribe подписывает на события поста postID ("" - на все). Подписка
// снимается и канал закрывается по завершении ctx.
func (h *Hub) Subscribe(ctx context.Context, postID string) <-chan Event {
	ch := make(chan Event, h.buffer)
	subID := uuid.NewString()

	h.mu.Lock()
	if h.subs[postID] == nil {
		h.subs[postID] = make(map[string]chan Event)
	}
	h.subs[postID][subID] = ch
	h.mu.Unlock()

	// Горутина для очистки при отключении клиента
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if postSubs, ok := h.subs[postID]; ok {
			delete(postSubs, subID)
			if len(postSubs) == 0 {
				delete(h.subs, postID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers возвращает число активных подписок.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, postSubs := range h.subs {
		n += len(postSubs)
	}
	return n
}
