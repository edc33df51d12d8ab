package app_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/otp-fetcher/internal/domain"
	"github.com/aelexs/otp-fetcher/internal/otp/app"
)

// stubHandle implements app.PollHandle and counts Stop calls.
type stubHandle struct {
	stops atomic.Int32
}

func (h *stubHandle) Stop() bool {
	return h.stops.Add(1) == 1
}

func TestSessionStorePutGet(t *testing.T) {
	store := app.NewSessionStore()
	user := domain.MustUserID("user-1")

	_, ok := store.Get(user)
	assert.False(t, ok)

	store.Put(user, app.Session{ID: domain.GenerateSessionID(), Status: domain.SessionPending})

	sess, ok := store.Get(user)
	require.True(t, ok)
	assert.Equal(t, user, sess.UserID, "Put stamps the owner")
	assert.Equal(t, 1, store.Len())
}

func TestSessionStoreGetReturnsCopy(t *testing.T) {
	store := app.NewSessionStore()
	user := domain.MustUserID("user-1")
	store.Put(user, app.Session{Status: domain.SessionPending})

	sess, _ := store.Get(user)
	sess.Status = domain.SessionReceived
	sess.OTP = "000000"

	again, _ := store.Get(user)
	assert.Equal(t, domain.SessionPending, again.Status)
	assert.Empty(t, again.OTP)

	all := store.ListAll()
	s := all[user]
	s.OTP = "111111"
	again, _ = store.Get(user)
	assert.Empty(t, again.OTP)
}

func TestSessionStorePutStopsReplacedHandle(t *testing.T) {
	store := app.NewSessionStore()
	user := domain.MustUserID("user-1")
	old := &stubHandle{}

	store.Put(user, app.Session{PollHandle: old})
	store.Put(user, app.Session{})

	assert.Equal(t, int32(1), old.stops.Load())

	// Re-putting the same handle does not stop it.
	same := &stubHandle{}
	store.Put(user, app.Session{PollHandle: same})
	store.Put(user, app.Session{PollHandle: same})
	assert.Equal(t, int32(0), same.stops.Load())
}

func TestSessionStoreRemove(t *testing.T) {
	store := app.NewSessionStore()
	user := domain.MustUserID("user-1")
	handle := &stubHandle{}

	assert.False(t, store.Remove(user))

	store.Put(user, app.Session{PollHandle: handle})
	assert.True(t, store.Remove(user))
	assert.Equal(t, int32(1), handle.stops.Load())

	_, ok := store.Get(user)
	assert.False(t, ok)
	assert.False(t, store.Remove(user))
}

func TestSessionStoreUpdate(t *testing.T) {
	store := app.NewSessionStore()
	user := domain.MustUserID("user-1")

	err := store.Update(user, func(*app.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	store.Put(user, app.Session{Status: domain.SessionPending})

	t.Run("commits on success", func(t *testing.T) {
		err := store.Update(user, func(s *app.Session) error {
			s.Status = domain.SessionReceived
			s.OTP = "123456"
			return nil
		})
		require.NoError(t, err)

		sess, _ := store.Get(user)
		assert.Equal(t, domain.SessionReceived, sess.Status)
		assert.Equal(t, "123456", sess.OTP)
	})

	t.Run("discards on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Update(user, func(s *app.Session) error {
			s.OTP = "999999"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		sess, _ := store.Get(user)
		assert.Equal(t, "123456", sess.OTP)
	})

	t.Run("owner cannot be rewritten", func(t *testing.T) {
		err := store.Update(user, func(s *app.Session) error {
			s.UserID = domain.MustUserID("someone-else")
			return nil
		})
		require.NoError(t, err)

		sess, _ := store.Get(user)
		assert.Equal(t, user, sess.UserID)
	})
}

func TestSessionStoreStoresAreIndependent(t *testing.T) {
	a, b := app.NewSessionStore(), app.NewSessionStore()
	user := domain.MustUserID("user-1")

	a.Put(user, app.Session{})

	_, ok := b.Get(user)
	assert.False(t, ok)
	assert.Empty(t, b.ListAll())
}
