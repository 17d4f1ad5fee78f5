package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/events"
)

var window = ReconcileConfig{MinAge: 24 * time.Hour, MaxAge: 14 * 24 * time.Hour}

// seed сохраняет пост, обнаруженный age назад, с одним уведомлением.
func seed(t *testing.T, f *fixture, id string, state domain.SubmissionState, age time.Duration) domain.NotificationRef {
	t.Helper()
	at := testNow.Add(-age)
	ref := domain.NotificationRef{ChannelID: "!a:test", MessageID: "$" + id}
	require.NoError(t, f.store.Ingest(context.Background(), domain.Submission{
		PostID: id, Community: id, Status: state, CreatedAt: at, UpdatedAt: at,
	}, []domain.NotificationRef{ref}))
	return ref
}

func TestReconcile_UpdatesStateAndMessages(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "foo", domain.StateNotAssessed, 3*24*time.Hour)
	f.feed.addNewest(feedPost("foo"))
	f.feed.setComments("foo", adminComment("Request approved."))
	ctx := context.Background()

	sum, err := NewReconciler(f.deps, window).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	post, err := f.store.Post(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, domain.StateGranted, post.Status)
	assert.Equal(t, testNow, post.UpdatedAt)

	_, ops := f.sink.snapshot()
	assert.Equal(t, []string{
		"remove $foo 🆕",
		"add $foo 🔄",
		"edit $foo GRANTED",
		"remove $foo 🔄",
		"add $foo ✔",
	}, ops)

	require.Len(t, f.events.events, 1)
	e := f.events.events[0]
	assert.Equal(t, events.TypeRechecked, e.Type)
	assert.Equal(t, domain.StateNotAssessed, e.Previous)
	assert.True(t, e.Changed())
}

func TestReconcile_NonTerminalGetsNoVerdictMarker(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "foo", domain.StateNotAssessed, 3*24*time.Hour)
	f.feed.addNewest(feedPost("foo"))
	f.feed.setComments("foo", adminComment("This is under manual review"))

	_, err := NewReconciler(f.deps, window).Run(context.Background(), quietLogger())
	require.NoError(t, err)

	_, ops := f.sink.snapshot()
	assert.Equal(t, []string{"remove $foo 🆕", "add $foo 🔄", "edit $foo MANUAL_REVIEW", "remove $foo 🔄"}, ops)
}

func TestReconcile_SkipsMissingPosts(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "gone", domain.StateNotAssessed, 3*24*time.Hour)
	seed(t, f, "kept", domain.StateNotAssessed, 3*24*time.Hour)
	f.feed.addNewest(feedPost("kept"))
	ctx := context.Background()

	sum, err := NewReconciler(f.deps, window).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Missing)
	assert.Equal(t, 1, sum.Updated)

	gone, err := f.store.Post(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-3*24*time.Hour), gone.UpdatedAt)
}

func TestReconcile_ErrorIsolation(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "bad", domain.StateNotAssessed, 3*24*time.Hour)
	seed(t, f, "good", domain.StateNotAssessed, 2*24*time.Hour)
	f.feed.addNewest(feedPost("bad"), feedPost("good"))
	f.feed.commentErrs["bad"] = domain.ErrUnreachable
	f.feed.setComments("good", adminComment("mods are still active"))
	ctx := context.Background()

	sum, err := NewReconciler(f.deps, window).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Updated)

	good, err := f.store.Post(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDenied, good.Status)
}

func TestReconcile_SkipsTerminalAndOutOfWindow(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "granted", domain.StateGranted, 3*24*time.Hour)
	seed(t, f, "denied", domain.StateDenied, 3*24*time.Hour)
	seed(t, f, "young", domain.StateNotAssessed, time.Hour)
	seed(t, f, "old", domain.StateNotAssessed, 30*24*time.Hour)
	for _, id := range []string{"granted", "denied", "young", "old"} {
		f.feed.addNewest(feedPost(id))
	}

	sum, err := NewReconciler(f.deps, window).Run(context.Background(), quietLogger())
	require.NoError(t, err)
	assert.Zero(t, sum.Seen)
	_, ops := f.sink.snapshot()
	assert.Empty(t, ops)
}

func TestReconcile_EditFailureStillMarksRechecked(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "foo", domain.StateNotAssessed, 3*24*time.Hour)
	f.feed.addNewest(feedPost("foo"))
	f.sink.failEdit = true
	ctx := context.Background()

	sum, err := NewReconciler(f.deps, window).Run(ctx, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	post, err := f.store.Post(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, testNow, post.UpdatedAt)
}

func TestReconcile_RecheckedPostLeavesWindow(t *testing.T) {
	f := newFixture(t)
	seed(t, f, "foo", domain.StateNotAssessed, 3*24*time.Hour)
	f.feed.addNewest(feedPost("foo"))
	r := NewReconciler(f.deps, window)

	first, err := r.Run(context.Background(), quietLogger())
	require.NoError(t, err)
	second, err := r.Run(context.Background(), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Seen)
	assert.Zero(t, second.Seen)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 50, progress(1, 2))
	assert.Equal(t, 100, progress(3, 2))
	assert.Equal(t, 100, progress(0, 0))
}
