package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idilsaglam/tasks/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), zap.NewNop())
	s.getenv = func(string) string { return "" }
	return s
}

func TestStore_GetAbsent(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Get()
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, "", s.Token())
}

func TestStore_SaveSessionThenGet(t *testing.T) {
	s := newTestStore(t)
	user := &model.User{ID: "u1", Username: "alice", Email: "a@b.com"}

	require.NoError(t, s.SaveSession("t1", user))

	sess, err := s.Get()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, "t1", sess.Token)
	assert.Equal(t, SourceFile, sess.Source)
	assert.Equal(t, user, sess.User)

	fi, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSession("t1", &model.User{ID: "u1"}))
	require.NoError(t, s.Save("Bearer t2"))

	sess, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "t2", sess.Token)
	assert.Nil(t, sess.User)
}

func TestStore_SaveRejectsEmptyToken(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Save("   "))
}

func TestStore_ClearRemovesTokenAndUser(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveSession("t1", &model.User{ID: "u1"}))

	require.NoError(t, s.Clear())
	sess, err := s.Get()
	require.NoError(t, err)
	assert.Nil(t, sess)

	// clearing twice is fine
	require.NoError(t, s.Clear())
}

func TestStore_EnvOverride(t *testing.T) {
	s := newTestStore(t)
	s.getenv = func(k string) string {
		if k == EnvToken {
			return "bearer envtok"
		}
		return ""
	}
	require.NoError(t, s.Save("filetok"))

	sess, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "envtok", sess.Token)
	assert.Equal(t, SourceEnv, sess.Source)
}

func TestStore_ClearIgnoresEnvTokenAfterwards(t *testing.T) {
	s := newTestStore(t)
	s.getenv = func(k string) string {
		if k == EnvToken {
			return "envtok"
		}
		return ""
	}
	require.NoError(t, s.Clear())

	sess, err := s.Get()
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	assert.Empty(t, s.Token())

	// a fresh login in the same process still works
	require.NoError(t, s.Save("filetok"))
	assert.Equal(t, "filetok", s.Token())
}

func TestExpiry_FromJWT(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	got := Expiry(tok)
	require.NotNil(t, got)
	assert.True(t, got.Equal(exp))

	assert.Nil(t, Expiry("opaque-token"))
	_, ok := Claims("opaque-token")
	assert.False(t, ok)
}

func TestStore_WatchSeesLogoutFromAnotherWriter(t *testing.T) {
	dir := t.TempDir()
	watcher := NewStore(dir, zap.NewNop())
	other := NewStore(dir, zap.NewNop())
	watcher.getenv = func(string) string { return "" }
	other.getenv = watcher.getenv

	require.NoError(t, other.SaveSession("t1", &model.User{ID: "u1"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []*Session
	)
	require.NoError(t, watcher.Watch(ctx, func(s *Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}))

	require.NoError(t, other.Clear())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == nil
	}, 2*time.Second, 20*time.Millisecond)
}
