package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmclub/cinema-service/internal/storage"
)

type memBackend struct{ data []byte }

func (b *memBackend) Load() ([]byte, error) {
	if b.data == nil {
		return nil, storage.ErrNoSnapshot
	}
	return b.data, nil
}

func (b *memBackend) Save(data []byte) error {
	b.data = data
	return nil
}

func newTestAuthority(t *testing.T) (*Authority, *storage.Store) {
	t.Helper()

	store, err := storage.Open(&memBackend{})
	require.NoError(t, err)
	return NewAuthority(store, "test-secret"), store
}

func TestBootstrap_Validate_RoundTrip(t *testing.T) {
	auth, _ := newTestAuthority(t)

	token, err := auth.Bootstrap(1, "ripley")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, auth.Validate(1, token))
	assert.ErrorIs(t, auth.Validate(1, token+"x"), ErrInvalidToken)
	assert.ErrorIs(t, auth.Validate(2, token), ErrNoSession)
}

func TestBootstrap_Rejections(t *testing.T) {
	auth, store := newTestAuthority(t)

	_, err := auth.Bootstrap(0, "ripley")
	assert.Error(t, err)

	_, err = auth.Bootstrap(1, "")
	assert.Error(t, err)

	_, err = store.UpsertProfile(1, "ripley", "", "", "")
	require.NoError(t, err)

	_, err = auth.Bootstrap(1, "someone-else")
	assert.ErrorIs(t, err, ErrNicknameMismatch)

	// matching nickname, any case, is the same identity
	_, err = auth.Bootstrap(1, "RIPLEY")
	assert.NoError(t, err)
}

func TestBootstrap_InvalidatesPreviousToken(t *testing.T) {
	auth, _ := newTestAuthority(t)

	first, err := auth.Bootstrap(1, "ripley")
	require.NoError(t, err)
	second, err := auth.Bootstrap(1, "ripley")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, auth.Validate(1, first), ErrInvalidToken)
	assert.NoError(t, auth.Validate(1, second))
}

func TestSyncAuthorize(t *testing.T) {
	t.Run("valid token passes through", func(t *testing.T) {
		auth, _ := newTestAuthority(t)
		token, err := auth.Bootstrap(1, "ripley")
		require.NoError(t, err)

		got, refreshed, err := auth.SyncAuthorize(1, "ripley", token)
		require.NoError(t, err)
		assert.False(t, refreshed)
		assert.Equal(t, token, got)
	})

	t.Run("stale token heals when nickname matches", func(t *testing.T) {
		auth, store := newTestAuthority(t)
		_, err := store.UpsertProfile(1, "ripley", "", "", "")
		require.NoError(t, err)
		old, err := auth.Bootstrap(1, "ripley")
		require.NoError(t, err)

		got, refreshed, err := auth.SyncAuthorize(1, "ripley", "wiped-out")
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.NotEqual(t, old, got)
		assert.NoError(t, auth.Validate(1, got))
	})

	t.Run("no profile yet heals too", func(t *testing.T) {
		auth, _ := newTestAuthority(t)

		got, refreshed, err := auth.SyncAuthorize(1, "newcomer", "")
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.NoError(t, auth.Validate(1, got))
	})

	t.Run("nickname mismatch propagates the validation error", func(t *testing.T) {
		auth, store := newTestAuthority(t)
		_, err := store.UpsertProfile(1, "ripley", "", "", "")
		require.NoError(t, err)
		_, err = auth.Bootstrap(1, "ripley")
		require.NoError(t, err)

		_, _, err = auth.SyncAuthorize(1, "impostor", "bad-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
