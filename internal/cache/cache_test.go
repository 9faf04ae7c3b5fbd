package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyStableAcrossContextOrder(t *testing.T) {
	// Same logical context must hash identically regardless of how the
	// map was built.
	a := map[string]any{"user": "alice", "channel": "api", "attempt": 2}
	b := map[string]any{"attempt": 2, "channel": "api", "user": "alice"}

	assert.Equal(t, Key("prompt", a), Key("prompt", b))
	assert.NotEqual(t, Key("prompt", a), Key("other prompt", a))
	assert.NotEqual(t, Key("prompt", a), Key("prompt", map[string]any{"user": "bob"}))
}

func TestKeyEmptyContext(t *testing.T) {
	assert.Equal(t, Key("p", nil), Key("p", map[string]any{}))
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(t.TempDir(), time.Hour, nil)

	ctxMap := map[string]any{"source": "test"}
	_, ok := c.Get("prompt", ctxMap)
	assert.False(t, ok)

	c.Put("prompt", ctxMap, DecisionBlock, 0.9, "injection detected")

	entry, ok := c.Get("prompt", ctxMap)
	require.True(t, ok)
	assert.Equal(t, DecisionBlock, entry.Decision)
	assert.Equal(t, 0.9, entry.Confidence)
	assert.Equal(t, "injection detected", entry.Reasoning)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestExpiryLazyEviction(t *testing.T) {
	c := New(t.TempDir(), time.Hour, nil)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("prompt", nil, DecisionAllow, 0.8, "fine")

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok := c.Get("prompt", nil)
	assert.False(t, ok, "expired entry must not be returned")
	assert.Zero(t, c.Stats().Size, "expired entry removed on lookup")
}

func TestSweep(t *testing.T) {
	c := New(t.TempDir(), time.Hour, nil)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("old1", nil, DecisionAllow, 0.8, "")
	c.Put("old2", nil, DecisionAllow, 0.8, "")

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	c.Put("fresh", nil, DecisionBlock, 0.9, "")

	assert.Equal(t, 2, c.Sweep())
	assert.Equal(t, 1, c.Stats().Size)
	assert.Zero(t, c.Sweep())
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c1 := New(dir, time.Hour, nil)
	c1.Put("prompt", map[string]any{"k": "v"}, DecisionBlock, 0.95, "persisted")

	c2 := New(dir, time.Hour, nil)
	entry, ok := c2.Get("prompt", map[string]any{"k": "v"})
	require.True(t, ok)
	assert.Equal(t, DecisionBlock, entry.Decision)
	assert.Equal(t, "persisted", entry.Reasoning)
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFile), []byte("{not json"), 0o644))

	c := New(dir, time.Hour, nil)
	assert.Zero(t, c.Stats().Size)
}

func TestWriteErrorsAreSilent(t *testing.T) {
	// Point the cache at a path that cannot be a directory.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	c := New(filepath.Join(blocker, "sub"), time.Hour, nil)
	c.Put("prompt", nil, DecisionAllow, 0.7, "")

	// In-memory view continues despite the failed snapshot.
	entry, ok := c.Get("prompt", nil)
	require.True(t, ok)
	assert.Equal(t, DecisionAllow, entry.Decision)
}

func TestClear(t *testing.T) {
	c := New(t.TempDir(), time.Hour, nil)
	c.Put("a", nil, DecisionAllow, 0.5, "")
	c.Put("b", nil, DecisionAllow, 0.5, "")
	c.Clear()
	assert.Zero(t, c.Stats().Size)
}
