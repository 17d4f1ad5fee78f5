package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/storage"
	"github.com/UkralStul/requestwatch/internal/storage/storagetest"
)

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage { return New() })
}

func TestStore_PostReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.InsertPost(ctx, "abc", "foo", domain.StateNotAssessed, time.Now()))

	p, err := store.Post(ctx, "abc")
	require.NoError(t, err)
	p.Status = domain.StateGranted

	again, err := store.Post(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotAssessed, again.Status)
}

func TestStore_DueForRecheckCancelled(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range store.DueForRecheck(ctx, storage.Window{Now: time.Now(), MaxAge: time.Hour}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}
