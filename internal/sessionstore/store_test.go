package sessionstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, expiry time.Duration) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "sessions")
	return New(zap.NewNop(), dir, expiry), dir
}

func sampleCookies() []Cookie {
	return []Cookie{
		{Name: "session_token", Value: "abc123", Domain: ".example.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "prefs", Value: "dark", Domain: ".example.com", Path: "/"},
	}
}

// writeAged writes a session file whose timestamp lies age in the past.
func writeAged(t *testing.T, dir, id string, age time.Duration) {
	t.Helper()
	doc := StoredSession{
		Cookies:      sampleCookies(),
		LocalStorage: map[string]string{"k": "v"},
		Timestamp:    time.Now().Add(-age),
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), data, 0o600))
}

func TestSaveAndRestore_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t, 24*time.Hour)

	cookies := sampleCookies()
	storage := map[string]string{"theme": "dark", "lang": "en"}
	store.Save("default", cookies, storage)

	res := store.Restore("default")
	require.Equal(t, StatusRestored, res.Status)
	assert.Equal(t, cookies, res.Cookies)
	assert.Equal(t, storage, res.LocalStorage)
}

func TestSave_CreatesDirectoryOnDemand(t *testing.T) {
	store, dir := newTestStore(t, time.Hour)
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))

	store.Save("default", nil, nil)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSave_SupersedesPreviousFile(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	store.Save("default", sampleCookies(), nil)
	store.Save("default", sampleCookies()[:1], nil)

	res := store.Restore("default")
	require.Equal(t, StatusRestored, res.Status)
	assert.Len(t, res.Cookies, 1)
}

func TestRestore_NotFound(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	assert.Equal(t, StatusNotFound, store.Restore("missing").Status)
}

func TestRestore_ExpiredDeletesFile(t *testing.T) {
	store, dir := newTestStore(t, 24*time.Hour)
	writeAged(t, dir, "stale", 25*time.Hour)

	res := store.Restore("stale")
	assert.Equal(t, StatusExpired, res.Status)
	assert.Empty(t, res.Cookies)

	// The file is gone; a further read reports not found.
	_, err := os.Stat(filepath.Join(dir, "stale.json"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, StatusNotFound, store.Restore("stale").Status)
}

func TestRestore_CorruptFileRemoved(t *testing.T) {
	store, dir := newTestStore(t, time.Hour)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))

	assert.Equal(t, StatusNotFound, store.Restore("bad").Status)
	_, err := os.Stat(filepath.Join(dir, "bad.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestClearExpired(t *testing.T) {
	store, dir := newTestStore(t, 24*time.Hour)
	writeAged(t, dir, "fresh", time.Hour)
	writeAged(t, dir, "stale-1", 25*time.Hour)
	writeAged(t, dir, "stale-2", 48*time.Hour)

	removed, err := store.ClearExpired()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Idempotent: the second consecutive sweep deletes nothing.
	removed, err = store.ClearExpired()
	require.NoError(t, err)
	assert.Zero(t, removed)

	// The fresh session survived both sweeps.
	assert.Equal(t, StatusRestored, store.Restore("fresh").Status)
}

func TestClearExpired_MissingDirectory(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	removed, err := store.ClearExpired()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDelete(t *testing.T) {
	store, dir := newTestStore(t, time.Hour)
	store.Save("default", sampleCookies(), nil)

	require.NoError(t, store.Delete("default"))
	_, err := os.Stat(filepath.Join(dir, "default.json"))
	assert.True(t, os.IsNotExist(err))

	// Deleting a missing session is not an error.
	assert.NoError(t, store.Delete("default"))
}

func TestList(t *testing.T) {
	store, dir := newTestStore(t, 24*time.Hour)
	writeAged(t, dir, "fresh", time.Hour)
	writeAged(t, dir, "stale", 48*time.Hour)

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]Entry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.False(t, byID["fresh"].Expired)
	assert.True(t, byID["stale"].Expired)
}

func TestList_MissingDirectory(t *testing.T) {
	store := New(zap.NewNop(), filepath.Join(t.TempDir(), "nope"), time.Hour)
	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
