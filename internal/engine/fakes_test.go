package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/classify"
	"github.com/UkralStul/requestwatch/internal/community"
	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/notify"
	"github.com/UkralStul/requestwatch/internal/storage/inmemory"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// === Feed ===

type fakeFeed struct {
	mu          sync.Mutex
	newest      []domain.FeedPost
	listErr     error
	listLimits  []int
	posts       map[string]domain.FeedPost
	comments    map[string][]domain.Comment
	commentErrs map[string]error
	authorErr   error
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		posts:       make(map[string]domain.FeedPost),
		comments:    make(map[string][]domain.Comment),
		commentErrs: make(map[string]error),
	}
}

func feedPost(id string) domain.FeedPost {
	return domain.FeedPost{
		ID:         id,
		URL:        "https://www.reddit.com/r/" + id + "/",
		Title:      "Requesting r/" + id,
		Permalink:  "/r/redditrequest/comments/" + id + "/x/",
		AuthorName: "alice",
		CreatedAt:  testNow.Add(-time.Hour),
	}
}

// addNewest кладёт посты в ленту; первый аргумент - самый новый.
func (f *fakeFeed) addNewest(posts ...domain.FeedPost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newest = append(f.newest, posts...)
	for _, p := range posts {
		f.posts[p.ID] = p
	}
}

func (f *fakeFeed) setComments(postID string, comments ...domain.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[postID] = comments
}

func (f *fakeFeed) ListNewest(_ context.Context, _ string, limit int) ([]domain.FeedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLimits = append(f.listLimits, limit)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.FeedPost(nil), f.newest[:min(limit, len(f.newest))]...), nil
}

func (f *fakeFeed) LoadPost(_ context.Context, id string) (*domain.FeedPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (f *fakeFeed) TopLevelComments(_ context.Context, postID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commentErrs[postID]; err != nil {
		return nil, err
	}
	return f.comments[postID], nil
}

func (f *fakeFeed) LoadCommunity(_ context.Context, handle string) (*domain.Community, error) {
	return &domain.Community{Handle: handle, Type: "public", Subscribers: 10}, nil
}

func (f *fakeFeed) ListModerators(context.Context, string) ([]string, error) {
	return []string{"u/mod"}, nil
}

func (f *fakeFeed) LoadAuthor(_ context.Context, name string) (domain.Author, error) {
	if f.authorErr != nil {
		return nil, f.authorErr
	}
	return domain.ActiveAuthor{Name: name, CreatedAt: testNow.Add(-365 * 24 * time.Hour)}, nil
}

// === Sink ===

type sentMessage struct {
	channel string
	id      string
	content notify.Content
}

type fakeSink struct {
	mu       sync.Mutex
	ready    chan struct{}
	seq      int
	sent     []sentMessage
	ops      []string
	failSend map[string]bool
	failEdit bool
	onSend   func()
}

func newFakeSink() *fakeSink {
	s := &fakeSink{ready: make(chan struct{}), failSend: make(map[string]bool)}
	close(s.ready)
	return s
}

func (s *fakeSink) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSink) Send(_ context.Context, channel string, content notify.Content) (string, error) {
	s.mu.Lock()
	if s.failSend[channel] {
		s.mu.Unlock()
		return "", errors.New("send failed")
	}
	s.seq++
	id := fmt.Sprintf("$m%d", s.seq)
	s.sent = append(s.sent, sentMessage{channel: channel, id: id, content: content})
	hook := s.onSend
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, nil
}

func (s *fakeSink) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *fakeSink) Edit(_ context.Context, ref domain.NotificationRef, content notify.Content) error {
	s.record("edit " + ref.MessageID + " " + content.State.String())
	if s.failEdit {
		return errors.New("edit failed")
	}
	return nil
}

func (s *fakeSink) AddMarker(_ context.Context, ref domain.NotificationRef, m notify.Marker) error {
	s.record("add " + ref.MessageID + " " + string(m))
	return nil
}

func (s *fakeSink) RemoveMarker(_ context.Context, ref domain.NotificationRef, m notify.Marker) error {
	s.record("remove " + ref.MessageID + " " + string(m))
	return nil
}

func (s *fakeSink) snapshot() ([]sentMessage, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...), append([]string(nil), s.ops...)
}

// === Events ===

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// === Wiring ===

type fixture struct {
	feed   *fakeFeed
	sink   *fakeSink
	store  *inmemory.Store
	events *recorder
	deps   Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		feed:   newFakeFeed(),
		sink:   newFakeSink(),
		store:  inmemory.New(),
		events: &recorder{},
	}
	f.deps = Deps{
		Feed:       f.feed,
		Sink:       f.sink,
		Store:      f.store,
		Classifier: classify.New(classify.ByFlair("admin")),
		Prober:     community.NewProber(f.feed, quietLogger()),
		Events:     f.events,
		Now:        func() time.Time { return testNow },
	}
	return f
}

func adminComment(body string) domain.Comment {
	return domain.Comment{AuthorName: "request_bot", AuthorFlair: "admin", Body: body}
}
