package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/notify"
)

type request struct {
	Method string
	Path   string
	Body   map[string]any
}

type homeserver struct {
	mu       sync.Mutex
	requests []request
	whoami   int
	failFor  int
	seq      int
}

func (h *homeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errcode":"M_UNKNOWN_TOKEN","error":"bad token"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/account/whoami") {
		h.whoami++
		if h.whoami <= h.failFor {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"errcode":"M_UNKNOWN","error":"down"}`)
			return
		}
		fmt.Fprint(w, `{"user_id":"@bot:test","device_id":"DEV"}`)
		return
	}

	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)
	h.requests = append(h.requests, request{Method: r.Method, Path: r.URL.Path, Body: body})
	h.seq++
	fmt.Fprintf(w, `{"event_id":"$evt%d"}`, h.seq)
}

func (h *homeserver) snapshot() []request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]request(nil), h.requests...)
}

func newTestSink(t *testing.T, hs *homeserver) *Sink {
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	sink, err := New(Config{
		HomeserverURL: srv.URL,
		UserID:        "@bot:test",
		AccessToken:   "secret",
		RetryInterval: 10 * time.Millisecond,
	}, log)
	require.NoError(t, err)
	return sink
}

var content = notify.Content{
	Title:       "r/foo",
	URL:         "https://www.reddit.com/r/redditrequest/comments/abc/x/",
	Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	Description: "Requesting <foo>",
	Color:       0x2ecc71,
	AuthorName:  "u/alice",
	Fields:      []notify.Field{{Name: "Request state", Value: "GRANTED"}},
}

func TestConnect_RetriesUntilReady(t *testing.T) {
	hs := &homeserver{failFor: 2}
	sink := newTestSink(t, hs)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sink.Connect(ctx))
	require.NoError(t, sink.WaitReady(ctx))
	hs.mu.Lock()
	defer hs.mu.Unlock()
	assert.GreaterOrEqual(t, hs.whoami, 3)
}

func TestWaitReady_Cancelled(t *testing.T) {
	sink := newTestSink(t, &homeserver{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sink.WaitReady(ctx), context.Canceled)
}

func TestSendAndEdit(t *testing.T) {
	hs := &homeserver{}
	sink := newTestSink(t, hs)
	ctx := context.Background()

	msgID, err := sink.Send(ctx, "!room:test", content)
	require.NoError(t, err)
	assert.Equal(t, "$evt1", msgID)

	ref := domain.NotificationRef{ChannelID: "!room:test", MessageID: msgID}
	require.NoError(t, sink.Edit(ctx, ref, content))

	reqs := hs.snapshot()
	require.Len(t, reqs, 2)

	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Contains(t, reqs[0].Path, "/rooms/!room:test/send/m.room.message/")
	assert.Equal(t, "m.notice", reqs[0].Body["msgtype"])
	assert.Equal(t, "org.matrix.custom.html", reqs[0].Body["format"])
	assert.Contains(t, reqs[0].Body["formatted_body"], "Requesting &lt;foo&gt;")
	assert.Contains(t, reqs[0].Body["formatted_body"], `data-mx-color="#2ecc71"`)
	assert.Contains(t, reqs[0].Body["body"], "Request state: GRANTED")

	relates, ok := reqs[1].Body["m.relates_to"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m.replace", relates["rel_type"])
	assert.Equal(t, "$evt1", relates["event_id"])
	newContent, ok := reqs[1].Body["m.new_content"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m.notice", newContent["msgtype"])
}

func TestMarkers(t *testing.T) {
	hs := &homeserver{}
	sink := newTestSink(t, hs)
	ctx := context.Background()
	ref := domain.NotificationRef{ChannelID: "!room:test", MessageID: "$msg"}

	require.NoError(t, sink.AddMarker(ctx, ref, notify.MarkerNew))
	// Повторная метка не дублируется.
	require.NoError(t, sink.AddMarker(ctx, ref, notify.MarkerNew))
	require.NoError(t, sink.RemoveMarker(ctx, ref, notify.MarkerNew))
	// Неизвестная метка снимается без запросов.
	require.NoError(t, sink.RemoveMarker(ctx, ref, notify.MarkerRefresh))

	reqs := hs.snapshot()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Path, "/send/m.reaction/")
	relates := reqs[0].Body["m.relates_to"].(map[string]any)
	assert.Equal(t, "m.annotation", relates["rel_type"])
	assert.Equal(t, "$msg", relates["event_id"])
	assert.Equal(t, string(notify.MarkerNew), relates["key"])

	assert.Contains(t, reqs[1].Path, "/redact/$evt1/")
}

func TestSend_CancelledContext(t *testing.T) {
	hs := &homeserver{}
	sink := newTestSink(t, hs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sink.Send(ctx, "!room:test", content)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, hs.snapshot())
}
