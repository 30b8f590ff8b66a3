package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListChildren(t *testing.T) {
	store := NewMemoryStore(map[string]ObjectContent{
		"/a":         {Data: []byte("x")},
		"dir/b":      {Data: []byte("y")},
		"/dir/sub/c": {Data: []byte("z")},
	})

	rootEntries, err := store.List(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []ObjectHandle{
		{Path: "/a", Kind: Leaf},
		{Path: "/dir", Kind: Container},
	}, rootEntries)

	dirEntries, err := store.List(context.Background(), "/dir/")
	require.NoError(t, err)
	assert.Equal(t, []ObjectHandle{
		{Path: "/dir/b", Kind: Leaf},
		{Path: "/dir/sub", Kind: Container},
	}, dirEntries)
}

func TestMemoryStoreListLeafAndMissing(t *testing.T) {
	store := NewMemoryStore(map[string]ObjectContent{"/dir/b": {Data: []byte("y")}})

	leaf, err := store.List(context.Background(), "/dir/b")
	require.NoError(t, err)
	assert.Equal(t, []ObjectHandle{{Path: "/dir/b", Kind: Leaf}}, leaf)

	_, err = store.List(context.Background(), "/nope")
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := NewMemoryStore(nil).List(context.Background(), "/")
	require.NoError(t, err)
	assert.Len(t, empty, 0)
}

func TestMemoryStoreReadWriteCopies(t *testing.T) {
	store := NewMemoryStore(nil)
	data := []byte("print(1)")

	require.NoError(t, store.Write(context.Background(), "/nb", ObjectContent{Data: data, Language: "PYTHON"}))
	data[0] = 'X'

	content, err := store.Read(context.Background(), "/nb")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(content.Data))
	assert.Equal(t, "PYTHON", content.Language)

	_, err = store.Read(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotSourceReplaysFailures(t *testing.T) {
	source := NewMockObjectClient(map[string]string{
		"/repo/a":        "x",
		"/repo/bad":      "y",
		"/repo/hidden/c": "z",
	}).
		FailRead("/repo/bad", errors.New("rate limited")).
		FailList("/repo/hidden", errors.New("forbidden"))

	snapshot, err := snapshotSource(context.Background(), source, "/repo")
	require.NoError(t, err)

	content, err := snapshot.Read(context.Background(), "/repo/a")
	require.NoError(t, err)
	assert.Equal(t, "x", string(content.Data))

	_, err = snapshot.Read(context.Background(), "/repo/bad")
	assert.ErrorContains(t, err, "rate limited")

	_, err = snapshot.List(context.Background(), "/repo/hidden")
	assert.ErrorContains(t, err, "forbidden")

	entries, err := snapshot.List(context.Background(), "/repo")
	require.NoError(t, err)
	assert.Contains(t, entries, ObjectHandle{Path: "/repo/hidden", Kind: Container})
	assert.Equal(t, 1, source.Reads("/repo/a"))
}

func TestSnapshotSourceRootFailure(t *testing.T) {
	source := NewMockObjectClient(nil).FailList("/repo", errors.New("404"))

	_, err := snapshotSource(context.Background(), source, "/repo")

	assert.ErrorIs(t, err, ErrEnumeration)
}
