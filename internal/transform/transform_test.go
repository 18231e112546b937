package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
)

const testEmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

type fakeStore struct {
	trees map[string][]gateway.RawTreeEntry
	seq   int
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
	s.seq++
	hash := "tree-" + string(rune('a'+s.seq))
	s.trees[hash] = entries
	return hash, nil
}

func (s *fakeStore) EmptyTreeHash() string { return testEmptyTreeHash }

func (s *fakeStore) Info(hash string) (gateway.ObjectKind, int64, error) {
	if _, ok := s.trees[hash]; ok || hash == testEmptyTreeHash {
		return gateway.KindTree, 0, nil
	}
	if strings.HasPrefix(hash, "hash-") {
		return gateway.KindBlob, 0, nil
	}
	return gateway.KindUnknown, 0, &gateway.MissingObject{Hash: hash}
}

func deleteAction(_ ObjectStore, _ string, _ gateway.RawTreeEntry) (gateway.RawTreeEntry, bool, error) {
	return gateway.RawTreeEntry{}, true, nil
}

// TestDeletePathCollapsesEmptyDirectories checks that removing the
// only file under a/b/c.bin leaves no a/ directory at all.
func TestDeletePathCollapsesEmptyDirectories(t *testing.T) {
	store := newFakeStore()
	store.trees["tree-b"] = []gateway.RawTreeEntry{
		{Name: "c.bin", Mode: gateway.ModeFile, Hash: "hash-c"},
	}
	store.trees["tree-a"] = []gateway.RawTreeEntry{
		{Name: "b", Mode: gateway.ModeDir, Hash: "tree-b"},
	}
	store.trees["tree-root"] = []gateway.RawTreeEntry{
		{Name: "a", Mode: gateway.ModeDir, Hash: "tree-a"},
		{Name: "other.txt", Mode: gateway.ModeFile, Hash: "hash-other"},
	}

	rule, err := NewRule(`.*/c\.bin`, deleteAction)
	require.NoError(t, err)
	tr := New(store, []Rule{rule}, true, false)

	outHash, err := tr.Transform("tree-root")
	require.NoError(t, err)

	entries, err := store.ParseTree(outHash)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other.txt", entries[0].Name)
}

// TestCachedTransformAcrossSiblingCommits checks that two sibling
// commits sharing an identical subtree only transform it once: a
// shared subtree's deletion happens exactly once, and the second
// occurrence is a cache hit producing zero further tree writes.
func TestCachedTransformAcrossSiblingCommits(t *testing.T) {
	store := newFakeStore()
	store.trees["shared-sub"] = []gateway.RawTreeEntry{
		{Name: "pkg.zip", Mode: gateway.ModeFile, Hash: "hash-zip"},
		{Name: "keep.txt", Mode: gateway.ModeFile, Hash: "hash-keep"},
	}
	store.trees["root-1"] = []gateway.RawTreeEntry{
		{Name: "shared", Mode: gateway.ModeDir, Hash: "shared-sub"},
	}
	store.trees["root-2"] = []gateway.RawTreeEntry{
		{Name: "shared", Mode: gateway.ModeDir, Hash: "shared-sub"},
		{Name: "extra.txt", Mode: gateway.ModeFile, Hash: "hash-extra"},
	}

	rule, err := NewRule(`.*\.zip`, deleteAction)
	require.NoError(t, err)
	tr := New(store, []Rule{rule}, false, false)

	out1, err := tr.Transform("root-1")
	require.NoError(t, err)
	writesAfterFirst := tr.Stats.TreesWritten

	out2, err := tr.Transform("root-2")
	require.NoError(t, err)

	assert.NotEqual(t, out1, out2)
	assert.Equal(t, writesAfterFirst, tr.Stats.TreesWritten-1, "second root differs only by its own entry, so only one new tree write happens beyond the cached shared subtree")
	assert.Greater(t, tr.Stats.CacheHits, int64(0))
}

func TestIdentityPolicyLeavesTreeUnchanged(t *testing.T) {
	store := newFakeStore()
	store.trees["root"] = []gateway.RawTreeEntry{
		{Name: "a.txt", Mode: gateway.ModeFile, Hash: "hash-a"},
	}
	tr := New(store, nil, false, false)
	out, err := tr.Transform("root")
	require.NoError(t, err)
	assert.Equal(t, "root", out)
	assert.Equal(t, int64(0), tr.Stats.TreesWritten)
}
