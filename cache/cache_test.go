package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plaza/store"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestFreshenAppendsBustParam(t *testing.T) {
	out := Freshen("https://cdn.example.com/a.jpg")
	assert.True(t, strings.HasPrefix(out, "https://cdn.example.com/a.jpg?nocache="))
	assert.Equal(t, 1, strings.Count(out, "nocache="))
}

func TestFreshenPreservesExistingQuery(t *testing.T) {
	out := Freshen("https://cdn.example.com/a.jpg?size=200")
	assert.True(t, strings.HasPrefix(out, "https://cdn.example.com/a.jpg?size=200&nocache="))
}

func TestFreshenReplacesInsteadOfAccumulating(t *testing.T) {
	url := "https://cdn.example.com/a.jpg"
	out := url
	for i := 0; i < 5; i++ {
		out = Freshen(out)
	}
	assert.Equal(t, 1, strings.Count(out, "nocache="))
	assert.True(t, strings.HasPrefix(out, url+"?nocache="))
}

func TestFreshenStripsLegacyCacheParam(t *testing.T) {
	out := Freshen("https://cdn.example.com/a.jpg?cache=123&size=200")
	assert.NotContains(t, out, "cache=123")
	assert.Contains(t, out, "size=200")
	assert.Equal(t, 1, strings.Count(out, "nocache="))
}

func TestFreshenEmptyStaysEmpty(t *testing.T) {
	assert.Empty(t, Freshen(""))
}

func TestPurgeAllRemovesCachedEntriesAndSparesSession(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	sessionKey := store.SessionKey("u1")

	require.NoError(t, kv.Set(ctx, "imageCache_abc", "blob"))
	require.NoError(t, kv.Set(ctx, "profile_photo_u1", "https://cdn.example.com/a.jpg"))
	require.NoError(t, kv.Set(ctx, "settings:theme", "dark"))
	require.NoError(t, kv.Set(ctx, sessionKey, `{"displayName":"Ana","photoUrl":"https://cdn.example.com/a.jpg"}`))

	c := New(kv, "")
	c.PurgeAll(ctx, "u1")

	_, ok, _ := kv.Get(ctx, "imageCache_abc")
	assert.False(t, ok)
	_, ok, _ = kv.Get(ctx, "profile_photo_u1")
	assert.False(t, ok)

	// Unrelated entries survive.
	v, ok, _ := kv.Get(ctx, "settings:theme")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	// The session entry survives, minus its cached photo.
	raw, ok, _ := kv.Get(ctx, sessionKey)
	require.True(t, ok)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	assert.Equal(t, "Ana", data["displayName"])
	assert.NotContains(t, data, "photoUrl")
}

func TestPurgeAllSparesOtherUsersSessions(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()

	require.NoError(t, kv.Set(ctx, store.SessionKey("u1"), `{"displayName":"Ana","photoUrl":"https://cdn.example.com/a.jpg"}`))
	require.NoError(t, kv.Set(ctx, store.SessionKey("u2"), `{"displayName":"Bea","photoUrl":"https://cdn.example.com/b.jpg"}`))

	c := New(kv, "")
	c.PurgeAll(ctx, "u1")

	// u2's canonical session entry is untouched: the purge only ever
	// operates on the purging user's own session photo.
	raw, ok, _ := kv.Get(ctx, store.SessionKey("u2"))
	require.True(t, ok)
	var other map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &other))
	assert.Equal(t, "Bea", other["displayName"])
	assert.Equal(t, "https://cdn.example.com/b.jpg", other["photoUrl"])

	raw, ok, _ = kv.Get(ctx, store.SessionKey("u1"))
	require.True(t, ok)
	var own map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &own))
	assert.NotContains(t, own, "photoUrl")
}

func TestPurgeAllRemovesScratchImages(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "upload.jpg")
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	c := New(newMemKV(), dir)
	c.PurgeAll(context.Background(), "u1")

	_, err := os.Stat(img)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(txt)
	assert.NoError(t, err)
}

func TestPurgeAllMissingScratchDirIsHarmless(t *testing.T) {
	c := New(newMemKV(), filepath.Join(t.TempDir(), "nope"))
	c.PurgeAll(context.Background(), "u1")
}
