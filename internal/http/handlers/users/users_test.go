package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmclub/cinema-service/internal/http/middleware"
	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/types"
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

func newTestEnv(t *testing.T) (*storage.Store, *session.Authority) {
	t.Helper()

	store, err := storage.Open(&memBackend{})
	require.NoError(t, err)
	return store, session.NewAuthority(store, "test-secret")
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestBootstrap(t *testing.T) {
	_, auth := newTestEnv(t)
	handler := Bootstrap(auth)

	t.Run("issues a token", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/users/session/bootstrap",
			BootstrapRequest{UserID: 1, Nickname: "ripley"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "1", body["user_id"])
		assert.NotEmpty(t, body["token"])
	})

	t.Run("validation failure", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/users/session/bootstrap",
			BootstrapRequest{UserID: 0, Nickname: ""}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/users/session/bootstrap", http.NoBody)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("claimed id with different nickname", func(t *testing.T) {
		store, auth := newTestEnv(t)
		_, err := store.UpsertProfile(5, "dallas", "", "", "")
		require.NoError(t, err)

		rec := postJSON(t, Bootstrap(auth), "/api/users/session/bootstrap",
			BootstrapRequest{UserID: 5, Nickname: "impostor"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestProfileSync(t *testing.T) {
	t.Run("creates profile and reports the refreshed token", func(t *testing.T) {
		store, auth := newTestEnv(t)
		rec := postJSON(t, ProfileSync(auth, store), "/api/users/profile-sync",
			ProfileSyncRequest{UserID: 1, Nickname: "ripley", DisplayName: "Ellen"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data struct {
				Token     string            `json:"token"`
				Refreshed bool              `json:"refreshed"`
				Profile   types.UserProfile `json:"profile"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Data.Refreshed)
		assert.NoError(t, auth.Validate(1, body.Data.Token))
		assert.Equal(t, "Ellen", body.Data.Profile.DisplayName)
	})

	t.Run("valid token is kept", func(t *testing.T) {
		store, auth := newTestEnv(t)
		token, err := auth.Bootstrap(1, "ripley")
		require.NoError(t, err)

		rec := postJSON(t, ProfileSync(auth, store), "/api/users/profile-sync",
			ProfileSyncRequest{UserID: 1, Nickname: "ripley"},
			func(req *http.Request) { req.Header.Set(middleware.UserTokenHeader, token) })
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data struct {
				Token     string `json:"token"`
				Refreshed bool   `json:"refreshed"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Data.Refreshed)
		assert.Equal(t, token, body.Data.Token)
	})

	t.Run("nickname conflict", func(t *testing.T) {
		store, auth := newTestEnv(t)
		_, err := store.UpsertProfile(2, "ripley", "", "", "")
		require.NoError(t, err)

		rec := postJSON(t, ProfileSync(auth, store), "/api/users/profile-sync",
			ProfileSyncRequest{UserID: 1, Nickname: "ripley"}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("wrong identity for an existing profile", func(t *testing.T) {
		store, auth := newTestEnv(t)
		_, err := store.UpsertProfile(1, "ripley", "", "", "")
		require.NoError(t, err)
		_, err = auth.Bootstrap(1, "ripley")
		require.NoError(t, err)

		rec := postJSON(t, ProfileSync(auth, store), "/api/users/profile-sync",
			ProfileSyncRequest{UserID: 1, Nickname: "hijacker"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("privacy flags applied in the same call", func(t *testing.T) {
		store, auth := newTestEnv(t)
		rec := postJSON(t, ProfileSync(auth, store), "/api/users/profile-sync",
			ProfileSyncRequest{
				UserID:   1,
				Nickname: "ripley",
				Privacy:  &types.PrivacyFlags{Watchlist: true},
			}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		p, ok := store.Profile(1)
		require.True(t, ok)
		assert.True(t, p.Privacy.Watchlist)
		assert.False(t, p.Privacy.Favorites)
	})
}

func TestMovieState_PrivacyFiltering(t *testing.T) {
	store, auth := newTestEnv(t)
	_, err := store.UpsertProfile(1, "ripley", "", "", "")
	require.NoError(t, err)
	require.NoError(t, store.SetPrivacy(1, types.PrivacyFlags{Watchlist: true}))
	_, err = store.ToggleListEntry(1, storage.ListWatchlist, 10)
	require.NoError(t, err)
	_, err = store.ToggleListEntry(1, storage.ListFavorites, 11)
	require.NoError(t, err)
	_, err = store.SetRating(1, 12, 8)
	require.NoError(t, err)

	_, err = store.UpsertProfile(2, "dallas", "", "", "")
	require.NoError(t, err)
	require.NoError(t, store.Follow(1, 2))

	token, err := auth.Bootstrap(1, "ripley")
	require.NoError(t, err)

	handler := MovieState(auth, store)
	get := func(id, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/users/"+id+"/movie-state", nil)
		req.SetPathValue("id", id)
		if token != "" {
			req.Header.Set(middleware.UserTokenHeader, token)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) MovieStateResponse {
		t.Helper()
		var body struct {
			Data MovieStateResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Data
	}

	t.Run("anonymous caller sees only public categories", func(t *testing.T) {
		rec := get("1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		state := decode(t, rec)
		assert.Len(t, state.Watchlist, 1)
		assert.Empty(t, state.Favorites)
		assert.Empty(t, state.Rated)
		assert.Nil(t, state.Privacy)
		assert.Empty(t, state.Followees)
	})

	t.Run("owner sees everything", func(t *testing.T) {
		rec := get("1", token)
		require.Equal(t, http.StatusOK, rec.Code)
		state := decode(t, rec)
		assert.Len(t, state.Watchlist, 1)
		assert.Len(t, state.Favorites, 1)
		assert.Len(t, state.Rated, 1)
		require.NotNil(t, state.Privacy)
		assert.True(t, state.Privacy.Watchlist)
		assert.Equal(t, []int{2}, state.Followees)
	})

	t.Run("stale token downgrades to public view", func(t *testing.T) {
		rec := get("1", "stale")
		require.Equal(t, http.StatusOK, rec.Code)
		state := decode(t, rec)
		assert.Empty(t, state.Favorites)
		assert.Nil(t, state.Privacy)
	})

	t.Run("unknown profile", func(t *testing.T) {
		rec := get("99", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestToggle(t *testing.T) {
	store, _ := newTestEnv(t)
	_, err := store.UpsertProfile(1, "ripley", "", "", "")
	require.NoError(t, err)

	handler := Toggle(store)
	authed := func(req *http.Request) {
		ctx := context.WithValue(req.Context(), middleware.UserIDKey, 1)
		*req = *req.WithContext(ctx)
	}

	t.Run("requires authentication context", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/users/1/movie-state/toggle",
			ToggleRequest{Category: "watchlist", MovieID: 10}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/users/1/movie-state/toggle",
			ToggleRequest{Category: "watched", MovieID: 10}, authed)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("round trip", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/users/1/movie-state/toggle",
			ToggleRequest{Category: "watchlist", MovieID: 10}, authed)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data struct {
				Member bool `json:"member"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Data.Member)

		rec = postJSON(t, handler, "/api/users/1/movie-state/toggle",
			ToggleRequest{Category: "watchlist", MovieID: 10}, authed)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Data.Member)
	})
}

func TestRating_ClampSurfacesStoredValue(t *testing.T) {
	store, _ := newTestEnv(t)
	_, err := store.UpsertProfile(1, "ripley", "", "", "")
	require.NoError(t, err)

	rating := 15.0
	rec := postJSON(t, Rating(store), "/api/users/1/movie-state/rating",
		RatingRequest{MovieID: 10, Rating: &rating},
		func(req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, 1)
			*req = *req.WithContext(ctx)
		})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Rating float64 `json:"rating"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 10.0, body.Data.Rating)
}
