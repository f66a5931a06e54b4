package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", false, errors.New("backend unavailable")
	}
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

func TestOverrideLifecycle(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := NewOverrideStore(kv)

	assert.False(t, s.ForcePhotoAbsent(ctx, "u1"))

	require.NoError(t, s.SetForcePhotoAbsent(ctx, "u1"))
	assert.True(t, s.ForcePhotoAbsent(ctx, "u1"))
	assert.False(t, s.ForcePhotoAbsent(ctx, "u2"))

	// The entry persists a timestamp alongside the flag.
	raw, ok, err := kv.Get(ctx, "auth_overrides:u1")
	require.NoError(t, err)
	require.True(t, ok)
	var o Overrides
	require.NoError(t, json.Unmarshal([]byte(raw), &o))
	assert.True(t, o.ForcePhotoAbsent)
	assert.NotZero(t, o.LastUpdated)

	require.NoError(t, s.Clear(ctx, "u1"))
	assert.False(t, s.ForcePhotoAbsent(ctx, "u1"))
}

func TestOverrideSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewOverrideStore(newMemKV())

	require.NoError(t, s.SetForcePhotoAbsent(ctx, "u1"))
	require.NoError(t, s.SetForcePhotoAbsent(ctx, "u1"))
	assert.True(t, s.ForcePhotoAbsent(ctx, "u1"))
}

func TestOverrideReadFailureDegradesToOff(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := NewOverrideStore(kv)
	require.NoError(t, s.SetForcePhotoAbsent(ctx, "u1"))

	kv.failGet = true
	assert.False(t, s.ForcePhotoAbsent(ctx, "u1"))
}

func TestOverrideCorruptedEntryDegradesToOff(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	require.NoError(t, kv.Set(ctx, "auth_overrides:u1", "{not json"))

	s := NewOverrideStore(kv)
	assert.False(t, s.ForcePhotoAbsent(ctx, "u1"))
}

func TestSessionKeyFormat(t *testing.T) {
	assert.Equal(t, "userData:u1", SessionKey("u1"))
}
