package session

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/taxonia/internal/apperror"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func TestGenerateToken_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)
		assert.Regexp(t, tokenPattern, tok)
		assert.False(t, seen[tok], "duplicate token %q", tok)
		seen[tok] = true
	}
}

func TestCreateSession_ThenGetSession_ReturnsUser(t *testing.T) {
	store, mr := newTestStore(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	created, err := store.CreateSession(ctx, 42)
	require.NoError(t, err)
	id := created.ID
	assert.Regexp(t, tokenPattern, id)
	assert.Equal(t, int64(42), created.UserID)
	assert.True(t, created.CreatedAt.Equal(fixed))

	got, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, int64(42), got.UserID)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))

	assert.Equal(t, SessionTTL, mr.TTL("session:"+id))
}

func TestGetSession_Expired_ReturnsNil(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(SessionTTL + time.Second)

	got, err := store.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSession_Missing_ReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetSession(context.Background(), "doesnotexist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSession_EmptyID_ReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetSession(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSession_MalformedPayload_ReturnsNil(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("session:broken", "{not json"))

	got, err := store.GetSession(context.Background(), "broken")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumeOAuthState_TrueExactlyOnce(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreOAuthState(ctx, "abc"))
	assert.Equal(t, OAuthStateTTL, mr.TTL("oauth_state:abc"))

	ok, err := store.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ConsumeOAuthState(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeOAuthState_Concurrent_OnlyOneWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.StoreOAuthState(ctx, "race"))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ConsumeOAuthState(ctx, "race")
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestConsumeOAuthState_Expired_ReturnsFalse(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.StoreOAuthState(ctx, "old"))

	mr.FastForward(OAuthStateTTL + time.Second)

	ok, err := store.ConsumeOAuthState(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeOAuthState_Unknown_ReturnsFalse(t *testing.T) {
	store, _ := newTestStore(t)

	ok, err := store.ConsumeOAuthState(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ServerDown_ReturnsTransportError(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()
	ctx := context.Background()

	_, err := store.CreateSession(ctx, 1)
	assert.True(t, errors.Is(err, apperror.ErrTransport), "CreateSession: %v", err)

	_, err = store.GetSession(ctx, "x")
	assert.True(t, errors.Is(err, apperror.ErrTransport), "GetSession: %v", err)

	err = store.StoreOAuthState(ctx, "x")
	assert.True(t, errors.Is(err, apperror.ErrTransport), "StoreOAuthState: %v", err)

	_, err = store.ConsumeOAuthState(ctx, "x")
	assert.True(t, errors.Is(err, apperror.ErrTransport), "ConsumeOAuthState: %v", err)

	assert.True(t, errors.Is(store.Ping(ctx), apperror.ErrTransport))
}
