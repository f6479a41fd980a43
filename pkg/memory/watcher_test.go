package memory

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestFileWatcher_DebouncesChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "memory.json")

	var calls atomic.Int32
	fw, err := newFileWatcher(zerolog.Nop(), path, 50*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}

func TestFileWatcher_IgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "memory.json")

	var calls atomic.Int32
	fw, err := newFileWatcher(zerolog.Nop(), path, 20*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("x"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, fw.Stop())
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	_, err := NewFileWatcher(zerolog.Nop(), filepath.Join(t.TempDir(), "gone", "memory.json"), func() {})
	assert.Error(t, err)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchStore_WarnsOnExternalEdit(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "memory.json")
	store := NewJSONFileStore(path)
	mgr := NewManager(Config{Store: store, Logger: zerolog.Nop()})

	var logs lockedBuffer
	fw, err := watchStore(zerolog.New(&logs), store, 30*time.Millisecond)
	require.NoError(t, err)
	defer fw.Stop()

	mgr.AddLongTerm("written by this session")
	time.Sleep(200 * time.Millisecond)
	assert.NotContains(t, logs.String(), "changed outside this session")

	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0644))
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "changed outside this session")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestWatchStore_CreatesMissingDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := filepath.Join(t.TempDir(), "first-run")
	fw, err := WatchStore(zerolog.Nop(), NewJSONFileStore(filepath.Join(dir, "memory.json")))
	require.NoError(t, err)
	require.NoError(t, fw.Stop())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
