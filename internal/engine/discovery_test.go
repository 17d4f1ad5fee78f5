package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
	"github.com/UkralStul/requestwatch/internal/notify"
)

var channels = []string{"!a:test", "!b:test"}

func newDiscovery(f *fixture) *Discovery {
	return NewDiscovery(f.deps, DiscoveryConfig{Source: "redditrequest", Channels: channels})
}

func TestDiscovery_NewPostWithoutVerdict(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("foo"))
	ctx := context.Background()

	sum, err := newDiscovery(f).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)

	post, err := f.store.Post(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotAssessed, post.Status)
	assert.Equal(t, "foo", post.Community)
	assert.Equal(t, testNow, post.CreatedAt)

	refs, err := f.store.NotificationsFor(ctx, "foo")
	require.NoError(t, err)
	require.Len(t, refs, len(channels))

	sent, ops := f.sink.snapshot()
	require.Len(t, sent, 2)
	assert.Equal(t, "!a:test", sent[0].channel)
	assert.Equal(t, "!b:test", sent[1].channel)
	assert.Equal(t, "r/foo", sent[0].content.Title)
	assert.Equal(t, domain.CommunityPublic, sent[0].content.CommunityState)
	assert.Equal(t, []string{"add $m1 🆕", "add $m2 🆕"}, ops)

	n, err := f.store.IncrementRequester(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.TypeDiscovered, f.events.events[0].Type)
}

func TestDiscovery_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("b"), feedPost("a"))
	d := newDiscovery(f)
	ctx := context.Background()

	first, err := d.Run(ctx, quietLogger())
	require.NoError(t, err)
	second, err := d.Run(ctx, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, first.Inserted)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 2, second.Skipped)

	sent, _ := f.sink.snapshot()
	assert.Len(t, sent, 4)
}

func TestDiscovery_OldestFirst(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("c"), feedPost("b"), feedPost("a"))
	d := NewDiscovery(f.deps, DiscoveryConfig{Source: "redditrequest", Channels: channels[:1]})

	_, err := d.Run(context.Background(), quietLogger())
	require.NoError(t, err)

	sent, _ := f.sink.snapshot()
	var titles []string
	for _, m := range sent {
		titles = append(titles, m.content.Title)
	}
	assert.Equal(t, []string{"r/a", "r/b", "r/c"}, titles)
}

func TestDiscovery_BatchSizes(t *testing.T) {
	f := newFixture(t)
	d := newDiscovery(f)
	ctx := context.Background()

	f.feed.listErr = errors.New("down")
	_, err := d.Run(ctx, quietLogger())
	require.Error(t, err)

	f.feed.listErr = nil
	_, err = d.Run(ctx, quietLogger())
	require.NoError(t, err)
	_, err = d.Run(ctx, quietLogger())
	require.NoError(t, err)

	// Неудачный первый проход не считается.
	assert.Equal(t, []int{250, 250, 50}, f.feed.listLimits)
}

func TestDiscovery_ErrorIsolation(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("c"), feedPost("b"), feedPost("a"))
	f.feed.commentErrs["b"] = domain.ErrRateLimited
	ctx := context.Background()

	sum, err := newDiscovery(f).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.Failed)

	for id, want := range map[string]bool{"a": true, "b": false, "c": true} {
		ok, err := f.store.Exists(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, id)
	}
}

func TestDiscovery_TerminalMarker(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("foo"))
	f.feed.setComments("foo", adminComment("Your request has been granted"))

	_, err := NewDiscovery(f.deps, DiscoveryConfig{Source: "redditrequest", Channels: channels[:1]}).Run(context.Background(), quietLogger())
	require.NoError(t, err)

	post, err := f.store.Post(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, domain.StateGranted, post.Status)

	_, ops := f.sink.snapshot()
	assert.Equal(t, []string{"add $m1 " + string(notify.MarkerGranted)}, ops)
}

func TestDiscovery_UndeliveredPostIsRetried(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("foo"))
	for _, ch := range channels {
		f.sink.failSend[ch] = true
	}
	d := newDiscovery(f)
	ctx := context.Background()

	sum, err := d.Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	ok, err := f.store.Exists(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, ok)

	f.sink.mu.Lock()
	f.sink.failSend = map[string]bool{"!b:test": true}
	f.sink.mu.Unlock()

	sum, err = d.Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	refs, err := f.store.NotificationsFor(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, []domain.NotificationRef{{ChannelID: "!a:test", MessageID: "$m1"}}, refs)
}

func TestDiscovery_AuthorFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("foo"))
	f.feed.authorErr = domain.ErrUnreachable

	sum, err := newDiscovery(f).Run(context.Background(), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)

	sent, _ := f.sink.snapshot()
	require.NotEmpty(t, sent)
	assert.Equal(t, "u/[deleted]", sent[0].content.AuthorName)
}

func TestDiscovery_CancelFinishesCurrentPost(t *testing.T) {
	f := newFixture(t)
	f.feed.addNewest(feedPost("c"), feedPost("b"), feedPost("a"))
	ctx, cancel := context.WithCancel(context.Background())
	f.sink.onSend = cancel

	sum, err := newDiscovery(f).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)

	refs, err := f.store.NotificationsFor(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	ok, err := f.store.Exists(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, ok)
}
