package exchange_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/onec2www/internal/exchange"
)

func TestSessionStore_OpenGetClose(t *testing.T) {
	store := exchange.NewSessionStore(time.Hour)

	sess := store.Open()
	require.NotNil(t, sess)
	assert.Len(t, sess.Token, 32, "token to uuid bez myślników")
	assert.NotContains(t, sess.Token, "-")

	got := store.Get(sess.Token)
	require.NotNil(t, got)
	assert.Equal(t, sess.Token, got.Token)

	store.Close(sess.Token)
	assert.Nil(t, store.Get(sess.Token))
}

func TestSessionStore_UnknownToken(t *testing.T) {
	store := exchange.NewSessionStore(time.Hour)
	assert.Nil(t, store.Get(""))
	assert.Nil(t, store.Get("nie-ma-takiego"))
}

func TestSessionStore_Expiry(t *testing.T) {
	store := exchange.NewSessionStore(30 * time.Millisecond)
	sess := store.Open()

	time.Sleep(60 * time.Millisecond)
	assert.Nil(t, store.Get(sess.Token), "sesja po TTL ma wygasnąć")
}

func TestSessionStore_PeekDoesNotRefresh(t *testing.T) {
	store := exchange.NewSessionStore(time.Hour)
	sess := store.Open()
	old := time.Now().Add(-30 * time.Minute)
	sess.LastSeen = old

	got := store.Peek(sess.Token)
	require.NotNil(t, got)
	assert.Equal(t, old, got.LastSeen, "Peek nie dotyka last-activity")

	// Get odświeża, więc reaper musi używać Peek
	require.NotNil(t, store.Get(sess.Token))
	assert.True(t, sess.LastSeen.After(old))
}

func TestSessionStore_PeekExpired(t *testing.T) {
	store := exchange.NewSessionStore(10 * time.Minute)
	sess := store.Open()
	sess.LastSeen = time.Now().Add(-time.Hour)

	assert.Nil(t, store.Peek(sess.Token))
	assert.Nil(t, store.Peek(""))
	assert.Nil(t, store.Peek("nie-ma-takiego"))
}

func TestSessionStore_TokensUnique(t *testing.T) {
	store := exchange.NewSessionStore(time.Hour)
	a := store.Open()
	b := store.Open()
	assert.NotEqual(t, a.Token, b.Token)
}
