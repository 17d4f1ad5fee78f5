// Package httpapi - HTTP-интерфейс оператора: статистика, карточки постов,
// поток событий и метрики.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/stats"
	"github.com/UkralStul/requestwatch/internal/storage"
)

const (
	defaultHours = 24
	pingInterval = 10 * time.Second
	writeWait    = 5 * time.Second
)

// Pinger реализуют хранилища с сетевым соединением.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps - зависимости обработчиков.
type Deps struct {
	Store storage.Storage
	Hub   *events.Hub
	Log   logrus.FieldLogger
	Now   func() time.Time
}

type handler struct {
	Deps
	upgrader websocket.Upgrader
}

// NewRouter собирает маршруты.
func NewRouter(deps Deps) http.Handler {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	h := &handler{
		Deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: deps.Log, NoColor: true}))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/stats", h.stats)
	router.Get("/posts/{postID}", h.post)
	router.Get("/events", h.events)
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Log.WithError(err).Warn("storage ping failed")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	*stats.Report
	Rates  *stats.Rates `json:"rates,omitempty"`
	NoData bool         `json:"noData"`
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	hours := defaultHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	report, err := stats.Build(r.Context(), h.Store, h.Now(), hours)
	if err != nil {
		h.Log.WithError(err).Error("failed to build stats")
		writeError(w, http.StatusInternalServerError, "failed to build stats")
		return
	}

	resp := statsResponse{Report: report}
	rates, err := report.Rates()
	if errors.Is(err, stats.ErrNoData) {
		resp.NoData = true
	} else {
		resp.Rates = &rates
	}
	writeJSON(w, http.StatusOK, resp)
}

type postResponse struct {
	*domain.Submission
	Notifications []domain.NotificationRef `json:"notifications"`
}

func (h *handler) post(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	post, err := h.Store.Post(r.Context(), postID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		h.Log.WithError(err).WithField("post_id", postID).Error("failed to load post")
		writeError(w, http.StatusInternalServerError, "failed to load post")
		return
	}

	refs, err := h.Store.NotificationsFor(r.Context(), postID)
	if err != nil {
		h.Log.WithError(err).WithField("post_id", postID).Error("failed to load notifications")
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}
	if refs == nil {
		refs = []domain.NotificationRef{}
	}
	writeJSON(w, http.StatusOK, postResponse{Submission: post, Notifications: refs})
}

// events отдаёт поток событий по websocket. ?post=<id> ограничивает поток
// одним постом.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Чтение нужно только для обработки close и pong.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stream := h.Hub.Subscribe(ctx, r.URL.Query().Get("post"))
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-stream:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
