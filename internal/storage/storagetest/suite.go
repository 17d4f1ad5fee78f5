// Package storagetest содержит общий набор тестов контракта storage.Storage.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/storage"
)

// Factory создаёт пустое хранилище для одного теста.
type Factory func(t *testing.T) storage.Storage

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Run прогоняет все проверки контракта.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndExists", func(t *testing.T) { testInsertAndExists(t, newStore(t)) })
	t.Run("DuplicateInsert", func(t *testing.T) { testDuplicateInsert(t, newStore(t)) })
	t.Run("NotificationRequiresPost", func(t *testing.T) { testNotificationRequiresPost(t, newStore(t)) })
	t.Run("IngestAtomic", func(t *testing.T) { testIngestAtomic(t, newStore(t)) })
	t.Run("DueWindow", func(t *testing.T) { testDueWindow(t, newStore(t)) })
	t.Run("DueOrderAndPaging", func(t *testing.T) { testDueOrderAndPaging(t, newStore(t)) })
	t.Run("MarkRechecked", func(t *testing.T) { testMarkRechecked(t, newStore(t)) })
	t.Run("Requester", func(t *testing.T) { testRequester(t, newStore(t)) })
	t.Run("Counts", func(t *testing.T) { testCounts(t, newStore(t)) })
}

func testInsertAndExists(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	ok, err := s.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertPost(ctx, "abc", "foo", domain.StateNotAssessed, base))

	ok, err = s.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	post, err := s.Post(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "foo", post.Community)
	assert.Equal(t, domain.StateNotAssessed, post.Status)
	assert.True(t, post.CreatedAt.Equal(base))
	assert.True(t, post.UpdatedAt.Equal(base))

	_, err = s.Post(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testDuplicateInsert(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.InsertPost(ctx, "abc", "foo", domain.StateNotAssessed, base))
	err := s.InsertPost(ctx, "abc", "bar", domain.StateGranted, base.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	post, err := s.Post(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "foo", post.Community)
}

func testNotificationRequiresPost(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	ref := domain.NotificationRef{ChannelID: "!room:a", MessageID: "$1"}

	err := s.RecordNotification(ctx, "abc", ref, base)
	assert.ErrorIs(t, err, domain.ErrForeignKeyViolation)

	require.NoError(t, s.InsertPost(ctx, "abc", "foo", domain.StateNotAssessed, base))
	require.NoError(t, s.RecordNotification(ctx, "abc", ref, base))

	err = s.RecordNotification(ctx, "abc", ref, base)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	// Тот же id сообщения в другом канале допустим.
	require.NoError(t, s.RecordNotification(ctx, "abc", domain.NotificationRef{ChannelID: "!room:b", MessageID: "$1"}, base))

	refs, err := s.NotificationsFor(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func testIngestAtomic(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	refs := []domain.NotificationRef{
		{ChannelID: "!room:a", MessageID: "$1"},
		{ChannelID: "!room:b", MessageID: "$2"},
	}
	post := domain.Submission{PostID: "abc", Community: "foo", Status: domain.StateDenied, CreatedAt: base, UpdatedAt: base}

	require.NoError(t, s.Ingest(ctx, post, refs))

	got, err := s.NotificationsFor(ctx, "abc")
	require.NoError(t, err)
	assert.ElementsMatch(t, refs, got)

	// Повтор отклоняется целиком.
	err = s.Ingest(ctx, post, []domain.NotificationRef{{ChannelID: "!room:c", MessageID: "$3"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	got, err = s.NotificationsFor(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Конфликт по сообщению не оставляет пост без уведомлений.
	clash := domain.Submission{PostID: "def", Community: "bar", Status: domain.StateNotAssessed, CreatedAt: base, UpdatedAt: base}
	err = s.Ingest(ctx, clash, []domain.NotificationRef{{ChannelID: "!room:a", MessageID: "$1"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
	ok, err := s.Exists(ctx, "def")
	require.NoError(t, err)
	assert.False(t, ok)
}

func collect(t *testing.T, s storage.Storage, w storage.Window) []string {
	var ids []string
	for c, err := range s.DueForRecheck(context.Background(), w) {
		require.NoError(t, err)
		ids = append(ids, c.PostID)
	}
	return ids
}

func testDueWindow(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	now := base.Add(30 * 24 * time.Hour)
	w := storage.Window{Now: now, MinAge: 24 * time.Hour, MaxAge: 14 * 24 * time.Hour}

	insert := func(id string, age time.Duration, state domain.SubmissionState) {
		require.NoError(t, s.InsertPost(ctx, id, "c-"+id, state, now.Add(-age)))
	}
	insert("due", 3*24*time.Hour, domain.StateNotAssessed)
	insert("review", 2*24*time.Hour, domain.StateManualReview)
	insert("young", time.Hour, domain.StateNotAssessed)
	insert("old", 20*24*time.Hour, domain.StateNotAssessed)
	insert("granted", 3*24*time.Hour, domain.StateGranted)
	insert("denied", 3*24*time.Hour, domain.StateDenied)
	insert("touched", 5*24*time.Hour, domain.StateFollowup)
	require.NoError(t, s.UpdatePostState(ctx, "touched", domain.StateFollowup, now.Add(-2*time.Hour)))

	assert.Equal(t, []string{"due", "review"}, collect(t, s, w))

	n, err := s.CountDueForRecheck(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testDueOrderAndPaging(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	now := base.Add(30 * 24 * time.Hour)
	w := storage.Window{Now: now, MinAge: time.Hour, MaxAge: 10 * 24 * time.Hour}

	total := storage.PageSize + 7
	var want []string
	for i := range total {
		id := fmt.Sprintf("p%03d", i)
		// Время создания убывает, порядок обхода всё равно по вставке.
		require.NoError(t, s.InsertPost(ctx, id, "foo", domain.StateNotAssessed, now.Add(-2*time.Hour-time.Duration(i)*time.Minute)))
		want = append(want, id)
	}

	assert.Equal(t, want, collect(t, s, w))

	// Досрочный выход из обхода.
	var seen int
	for range s.DueForRecheck(ctx, w) {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func testMarkRechecked(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	later := base.Add(48 * time.Hour)
	post := domain.Submission{PostID: "abc", Community: "foo", Status: domain.StateNotAssessed, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Ingest(ctx, post, []domain.NotificationRef{{ChannelID: "!room:a", MessageID: "$1"}}))

	require.NoError(t, s.MarkRechecked(ctx, "abc", domain.StateGranted, later))

	got, err := s.Post(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.StateGranted, got.Status)
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.True(t, got.CreatedAt.Equal(base))

	assert.ErrorIs(t, s.MarkRechecked(ctx, "missing", domain.StateGranted, later), domain.ErrNotFound)
	assert.NoError(t, s.TouchNotifications(ctx, "abc", later))
}

func testRequester(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementRequester(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err := s.IncrementRequester(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testCounts(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.InsertPost(ctx, "a", "x", domain.StateGranted, base))
	require.NoError(t, s.InsertPost(ctx, "b", "x", domain.StateGranted, base.Add(time.Hour)))
	require.NoError(t, s.InsertPost(ctx, "c", "x", domain.StateDenied, base.Add(2*time.Hour)))
	require.NoError(t, s.InsertPost(ctx, "old", "x", domain.StateGranted, base.Add(-48*time.Hour)))

	n, err := s.CountSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.CountSinceWithState(ctx, base, domain.StateGranted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CountSinceWithState(ctx, base, domain.StateManualReview)
	require.NoError(t, err)
	assert.Zero(t, n)
}
