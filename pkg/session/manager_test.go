package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontroller/padbridge/pkg/types"
)

func newTestManager(t *testing.T, cfg *types.SessionConfig) (*Manager, *Store, *Live) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	live := NewLive(cfg)
	mgr := NewManager(store, live)
	mgr.Start()
	t.Cleanup(mgr.Stop)
	return mgr, store, live
}

func TestManagerSavePersistsLiveSnapshot(t *testing.T) {
	cfg := types.NewSessionConfig("bench")
	mgr, store, live := newTestManager(t, cfg)

	live.Update(func(c *types.SessionConfig) {
		c.Radio.Port = "/dev/ttyACM0"
	})

	require.NoError(t, mgr.Save(context.Background()))

	loaded, err := store.LoadSession("bench")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", loaded.Radio.Port)
	assert.False(t, loaded.SavedAt.IsZero(), "saved timestamp stamped on write")

	last, err := store.LastSession()
	require.NoError(t, err)
	assert.Equal(t, "bench", last)
}

func TestManagerSaveAsRenamesLiveSession(t *testing.T) {
	mgr, store, live := newTestManager(t, types.NewSessionConfig("draft"))

	require.NoError(t, mgr.SaveAs(context.Background(), "final"))

	assert.Equal(t, "final", live.Name())
	_, err := store.LoadSession("final")
	assert.NoError(t, err)
}

func TestManagerLoadReplacesLiveSession(t *testing.T) {
	mgr, store, live := newTestManager(t, types.NewSessionConfig("current"))

	other := types.NewSessionConfig("other")
	other.Radio.Baud = 921600
	require.NoError(t, store.SaveSession(other))

	loaded, err := mgr.Load(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, 921600, loaded.Radio.Baud)
	assert.Equal(t, "other", live.Name())

	_, err = mgr.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
	assert.Equal(t, "other", live.Name(), "failed load leaves live session untouched")
}

func TestManagerListAndDelete(t *testing.T) {
	mgr, store, _ := newTestManager(t, types.NewSessionConfig("a"))

	require.NoError(t, store.SaveSession(types.NewSessionConfig("b")))
	require.NoError(t, mgr.Save(context.Background()))

	names, err := mgr.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	require.NoError(t, mgr.Delete(context.Background(), "b"))
	names, err = mgr.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}

func TestManagerDropsAutosaveWhileOneIsQueued(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// Worker not started, so the first tick stays queued.
	mgr := NewManager(store, NewLive(types.NewSessionConfig("a")))

	assert.True(t, mgr.TryAutosave())
	assert.False(t, mgr.TryAutosave(), "second tick dropped while first is queued")

	mgr.Start()
	assert.Eventually(t, func() bool {
		return mgr.TryAutosave()
	}, 2*time.Second, 10*time.Millisecond, "ticks accepted again once the queued save ran")
	mgr.Stop()
}

func TestManagerAutosaveWritesThrough(t *testing.T) {
	mgr, store, _ := newTestManager(t, types.NewSessionConfig("auto"))

	require.True(t, mgr.TryAutosave())
	assert.Eventually(t, func() bool {
		_, err := store.LoadSession("auto")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveMessageHistoryIsBounded(t *testing.T) {
	live := NewLive(types.NewSessionConfig("hist"))

	for i := 0; i < messageHistoryCap+10; i++ {
		live.AppendMessage(types.BrokerMessage{Topic: "t", Payload: "p", At: time.Now()})
	}

	snap := live.Snapshot()
	assert.Len(t, snap.Messages, messageHistoryCap)
}
