package treemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
)

const testEmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// fakeStore is an in-memory ObjectStore double: WriteTree assigns
// deterministic fake hashes from a running counter so tests don't
// need a real git binary.
type fakeStore struct {
	trees map[string][]gateway.RawTreeEntry
	next  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{trees: make(map[string][]gateway.RawTreeEntry)}
}

func (s *fakeStore) ParseTree(hash string) ([]gateway.RawTreeEntry, error) {
	if hash == testEmptyTreeHash {
		return nil, nil
	}
	entries, ok := s.trees[hash]
	if !ok {
		return nil, &gateway.MissingObject{Hash: hash}
	}
	return entries, nil
}

func (s *fakeStore) WriteTree(entries []gateway.RawTreeEntry) (string, error) {
	if len(entries) == 0 {
		return testEmptyTreeHash, nil
	}
	s.next++
	hash := "tree-hash-" + string(rune('a'+s.next))
	s.trees[hash] = entries
	return hash, nil
}

func (s *fakeStore) EmptyTreeHash() string { return testEmptyTreeHash }

func (s *fakeStore) Info(hash string) (gateway.ObjectKind, int64, error) {
	if _, ok := s.trees[hash]; ok || hash == testEmptyTreeHash {
		return gateway.KindTree, 0, nil
	}
	return gateway.KindUnknown, 0, &gateway.MissingObject{Hash: hash}
}

func TestEntryEqual(t *testing.T) {
	a := Clean("deadbeef", gateway.ModeFile)
	b := Clean("deadbeef", gateway.ModeFile)
	c := Clean("cafebabe", gateway.ModeFile)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	dirty := NewDirtyDir()
	assert.False(t, dirty.Equal(dirty))
}

func TestGetSubentriesMaterializesCleanDirectory(t *testing.T) {
	store := newFakeStore()
	store.trees["root-hash"] = []gateway.RawTreeEntry{
		{Name: "a.txt", Mode: gateway.ModeFile, Hash: "hash-a"},
		{Name: "sub", Mode: gateway.ModeDir, Hash: "hash-sub"},
	}
	root := Clean("root-hash", gateway.ModeDir)

	children, err := root.GetSubentries(store)
	require.NoError(t, err)
	assert.Equal(t, 2, children.Size())

	v, found := children.Get("a.txt")
	require.True(t, found)
	hash, ok := v.(*Entry).Hash()
	require.True(t, ok)
	assert.Equal(t, "hash-a", hash)
}

func TestGetSubentriesFailsOnNonDirectory(t *testing.T) {
	store := newFakeStore()
	leaf := Clean("hash-a", gateway.ModeFile)
	_, err := leaf.GetSubentries(store)
	require.Error(t, err)
	assert.True(t, gateway.IsInvalidName(err))
}

func TestAddEntryOnCleanDirectoryProducesDirty(t *testing.T) {
	store := newFakeStore()
	store.trees["root-hash"] = []gateway.RawTreeEntry{
		{Name: "a.txt", Mode: gateway.ModeFile, Hash: "hash-a"},
	}
	root := Clean("root-hash", gateway.ModeDir)

	updated, err := root.AddEntry(store, "b.txt", Clean("hash-b", gateway.ModeFile))
	require.NoError(t, err)
	assert.True(t, updated.IsDirty())

	// The original Clean entry is untouched: re-reading it still shows
	// only the original child.
	origChildren, err := root.GetSubentries(store)
	require.NoError(t, err)
	assert.Equal(t, 1, origChildren.Size())

	newChildren, err := updated.GetSubentries(store)
	require.NoError(t, err)
	assert.Equal(t, 2, newChildren.Size())
}

func TestAddEntryRejectsSlashInName(t *testing.T) {
	store := newFakeStore()
	root := NewDirtyDir()
	_, err := root.AddEntry(store, "a/b", Clean("hash-a", gateway.ModeFile))
	require.Error(t, err)
	assert.True(t, gateway.IsInvalidName(err))
}

func TestRemoveEntryAbsentNameReturnsReceiverUnchanged(t *testing.T) {
	store := newFakeStore()
	root := NewDirtyDir()
	updated, err := root.RemoveEntry(store, "does-not-exist")
	require.NoError(t, err)
	assert.Same(t, root, updated)
}

func TestAddPathCreatesIntermediateDirectories(t *testing.T) {
	store := newFakeStore()
	root := NewDirtyDir()

	updated, err := root.AddPath(store, []string{"a", "b", "c.bin"}, Clean("hash-c", gateway.ModeFile))
	require.NoError(t, err)

	found, ok, err := updated.GetPath(store, []string{"a", "b", "c.bin"})
	require.NoError(t, err)
	require.True(t, ok)
	hash, ok := found.Hash()
	require.True(t, ok)
	assert.Equal(t, "hash-c", hash)
}

func TestRemovePathOnMissingPathReturnsReceiverUnchanged(t *testing.T) {
	store := newFakeStore()
	root := NewDirtyDir()
	root, err := root.AddPath(store, []string{"a", "b.bin"}, Clean("hash-b", gateway.ModeFile))
	require.NoError(t, err)

	updated, err := root.RemovePath(store, []string{"x", "y.bin"})
	require.NoError(t, err)
	assert.Same(t, root, updated)
}

// TestWriteSubentriesCollapsesEmptyDirectories checks that removing
// the only file under a/b/ leaves no a/ entry at all once written.
func TestWriteSubentriesCollapsesEmptyDirectories(t *testing.T) {
	store := newFakeStore()
	root := NewDirtyDir()
	root, err := root.AddPath(store, []string{"a", "b", "c.bin"}, Clean("hash-c", gateway.ModeFile))
	require.NoError(t, err)
	root, err = root.AddPath(store, []string{"other.txt"}, Clean("hash-other", gateway.ModeFile))
	require.NoError(t, err)

	root, err = root.RemovePath(store, []string{"a", "b", "c.bin"})
	require.NoError(t, err)

	canon, err := root.WriteSubentries(store)
	require.NoError(t, err)
	hash, ok := canon.Hash()
	require.True(t, ok)

	entries, err := store.ParseTree(hash)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other.txt", entries[0].Name)
}

func TestWriteSubentriesIdempotentOnClean(t *testing.T) {
	store := newFakeStore()
	clean := Clean("already-written", gateway.ModeDir)
	out, err := clean.WriteSubentries(store)
	require.NoError(t, err)
	assert.Same(t, clean, out)
}
