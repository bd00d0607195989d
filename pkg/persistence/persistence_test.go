package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONFileStoreSaveLoad(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("state", "bot1", "risk")

	require.NoError(t, store.Save(fixture{Name: "a", Count: 3}))

	var got fixture
	require.NoError(t, store.Load(&got))
	assert.Equal(t, fixture{Name: "a", Count: 3}, got)
}

func TestJSONFileStoreLoadMissing(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("state", "bot1", "nothing")

	var got fixture
	assert.ErrorIs(t, store.Load(&got), ErrNotExists)
}

func TestJSONFileStoreOverwrite(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	store := svc.NewStore("state", "bot1", "risk")

	require.NoError(t, store.Save(fixture{Count: 1}))
	require.NoError(t, store.Save(fixture{Count: 2}))

	var got fixture
	require.NoError(t, store.Load(&got))
	assert.Equal(t, 2, got.Count)
}

func TestBadgerStoreSaveLoad(t *testing.T) {
	svc, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer svc.Close()

	store := svc.NewStore("state", "bot1", "risk")
	require.NoError(t, store.Save(fixture{Name: "b", Count: 7}))

	var got fixture
	require.NoError(t, store.Load(&got))
	assert.Equal(t, fixture{Name: "b", Count: 7}, got)

	var missing fixture
	assert.ErrorIs(t, svc.NewStore("state", "bot1", "x").Load(&missing), ErrNotExists)
}
