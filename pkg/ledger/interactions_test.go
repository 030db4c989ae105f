package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestInteractionStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 0, store.Len())
	assert.False(t, store.Has("1860000000000000001"))
}

func TestInteractionStoreAddHas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add("1860000000000000001"))
	assert.True(t, store.Has("1860000000000000001"))
	assert.False(t, store.Has("1860000000000000002"))
	assert.Equal(t, 1, store.Len())
}

func TestInteractionStoreAddIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add("1860000000000000001"))
	require.NoError(t, store.Add("1860000000000000001"))

	assert.Equal(t, 1, store.Len())
}

func TestInteractionStoreSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add("1860000000000000001"))
	require.NoError(t, store.Add("1860000000000000002"))

	reloaded, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	assert.True(t, reloaded.Has("1860000000000000001"))
	assert.True(t, reloaded.Has("1860000000000000002"))
	assert.Equal(t, 2, reloaded.Len())
}

func TestInteractionStoreRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add("1860000000000000001"))
	require.NoError(t, store.Remove("1860000000000000001"))

	assert.False(t, store.Has("1860000000000000001"))

	// Removal persists too
	reloaded, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)
	assert.False(t, reloaded.Has("1860000000000000001"))
}

func TestInteractionStoreRemoveAbsentIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	assert.NoError(t, store.Remove("never-seen"))
}

func TestInteractionStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")

	store, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add("1860000000000000001"))
	require.NoError(t, store.Add("1860000000000000002"))
	require.NoError(t, store.Clear())

	assert.Equal(t, 0, store.Len())

	reloaded, err := NewInteractionStore(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
}

func TestInteractionStorePersistFailureIsFatalToCall(t *testing.T) {
	// Pointing the ledger at a directory makes the rename fail, and the
	// failed mutation must roll back.
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger")
	require.NoError(t, os.MkdirAll(path, 0755))

	store := &InteractionStore{
		path:   path,
		logger: testLogger(),
		seen:   make(map[string]struct{}),
	}

	err := store.Add("1860000000000000001")
	require.Error(t, err)
	assert.False(t, store.Has("1860000000000000001"))
}

func TestInteractionStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := NewInteractionStore(path, testLogger())
	assert.Error(t, err)
}
