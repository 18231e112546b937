// Package treemodel implements the immutable, structurally-shared tree
// entry used throughout a rewrite: a value that is either Clean (a
// known content hash) or Dirty (an in-memory child mapping awaiting a
// write).
package treemodel

import (
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
)

// ObjectStore is the subset of Gateway operations the tree model
// needs to materialize and canonicalize entries. Gateway satisfies
// this interface; tests may substitute a fake.
type ObjectStore interface {
	ParseTree(hash string) ([]gateway.RawTreeEntry, error)
	WriteTree(entries []gateway.RawTreeEntry) (string, error)
	EmptyTreeHash() string
	Info(hash string) (gateway.ObjectKind, int64, error)
}

// Entry is a tree entry in either of two states: Clean, carrying a
// known content hash, or Dirty, carrying an in-memory name→Entry
// mapping awaiting canonicalization. A non-directory entry is always
// Clean: only directories can hold pending, unwritten children.
type Entry struct {
	mode     gateway.FileMode
	hash     string
	children *linkedhashmap.Map
}

// Clean constructs an entry with a known content hash.
func Clean(hash string, mode gateway.FileMode) *Entry {
	return &Entry{mode: mode, hash: hash}
}

// NewDirtyDir constructs an empty dirty directory entry, the starting
// point for AddPath's intermediate-directory creation.
func NewDirtyDir() *Entry {
	return &Entry{mode: gateway.ModeDir, children: linkedhashmap.New()}
}

func newDirty(mode gateway.FileMode, children *linkedhashmap.Map) *Entry {
	return &Entry{mode: mode, children: children}
}

// IsDirty reports whether the entry carries an in-memory child mapping
// rather than a known hash.
func (e *Entry) IsDirty() bool { return e.children != nil }

// Mode returns the entry's file mode.
func (e *Entry) Mode() gateway.FileMode { return e.mode }

// Hash returns the entry's known content hash and true, or ("", false)
// if the entry is dirty.
func (e *Entry) Hash() (string, bool) {
	if e.IsDirty() {
		return "", false
	}
	return e.hash, true
}

// Equal reports Tree Entry equality: two entries are equal iff both
// are clean and their hashes and modes match. Two dirty entries are
// never equal, even to themselves — a caller comparing dirty entries
// must materialize them first.
func (e *Entry) Equal(o *Entry) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.IsDirty() || o.IsDirty() {
		return false
	}
	return e.mode == o.mode && e.hash == o.hash
}

// GetSubentries materializes the child name→Entry mapping of a
// directory entry: for a dirty directory this is the live in-memory
// map; for a clean directory it is read through the object store and
// returned as a fresh map each call (the Clean entry itself is never
// mutated). Fails with *gateway.InvalidName on a non-directory entry.
func (e *Entry) GetSubentries(store ObjectStore) (*linkedhashmap.Map, error) {
	if !e.mode.IsDir() {
		return nil, &gateway.InvalidName{Reason: "get_subentries called on a non-directory entry"}
	}
	if e.children != nil {
		return e.children, nil
	}
	raw, err := store.ParseTree(e.hash)
	if err != nil {
		return nil, err
	}
	m := linkedhashmap.New()
	for _, re := range raw {
		m.Put(re.Name, Clean(re.Hash, re.Mode))
	}
	return m, nil
}

// GetPath walks pathsegs segment by segment, returning the entry at
// that path and true, or (nil, false) if any segment is absent or a
// non-directory entry is encountered mid-walk.
func (e *Entry) GetPath(store ObjectStore, pathsegs []string) (*Entry, bool, error) {
	cur := e
	for _, seg := range pathsegs {
		if !cur.mode.IsDir() {
			return nil, false, nil
		}
		children, err := cur.GetSubentries(store)
		if err != nil {
			return nil, false, err
		}
		v, found := children.Get(seg)
		if !found {
			return nil, false, nil
		}
		cur = v.(*Entry)
	}
	return cur, true, nil
}

// AddEntry returns a directory entry with name bound to entry. If the
// receiver is already dirty it is mutated in place and returned
// (dirty trees are single-owner by construction); otherwise the child
// map is copied and a new dirty entry is returned, preserving the
// receiver's sharing with any other reference to it.
func (e *Entry) AddEntry(store ObjectStore, name string, entry *Entry) (*Entry, error) {
	if strings.ContainsRune(name, '/') {
		return nil, &gateway.InvalidName{Name: name, Reason: "tree entry name may not contain '/'"}
	}
	if e.IsDirty() {
		e.children.Put(name, entry)
		return e, nil
	}
	children, err := e.GetSubentries(store)
	if err != nil {
		return nil, err
	}
	children.Put(name, entry)
	return newDirty(e.mode, children), nil
}

// RemoveEntry returns a directory entry with name absent. An absent
// name returns the receiver unchanged (same pointer), preserving
// sharing when nothing actually changed.
func (e *Entry) RemoveEntry(store ObjectStore, name string) (*Entry, error) {
	if e.IsDirty() {
		if _, found := e.children.Get(name); !found {
			return e, nil
		}
		e.children.Remove(name)
		return e, nil
	}
	children, err := e.GetSubentries(store)
	if err != nil {
		return nil, err
	}
	if _, found := children.Get(name); !found {
		return e, nil
	}
	children.Remove(name)
	return newDirty(e.mode, children), nil
}

// AddPath recurses down pathsegs, creating empty intermediate
// directories as needed, and binds the final segment to entry. A
// length-1 path degenerates to AddEntry.
func (e *Entry) AddPath(store ObjectStore, pathsegs []string, entry *Entry) (*Entry, error) {
	if len(pathsegs) == 1 {
		return e.AddEntry(store, pathsegs[0], entry)
	}
	name, rest := pathsegs[0], pathsegs[1:]
	if strings.ContainsRune(name, '/') {
		return nil, &gateway.InvalidName{Name: name, Reason: "tree entry name may not contain '/'"}
	}
	children, err := e.GetSubentries(store)
	if err != nil {
		return nil, err
	}
	dirty := e.IsDirty()
	var child *Entry
	if v, found := children.Get(name); found {
		child = v.(*Entry)
	} else {
		child = NewDirtyDir()
	}
	newChild, err := child.AddPath(store, rest, entry)
	if err != nil {
		return nil, err
	}
	children.Put(name, newChild)
	if dirty {
		return e, nil
	}
	return newDirty(e.mode, children), nil
}

// RemovePath recurses down pathsegs; a path that does not exist
// returns the receiver unchanged. Intermediate subtrees left empty by
// the removal are pruned later by WriteSubentries, not here.
func (e *Entry) RemovePath(store ObjectStore, pathsegs []string) (*Entry, error) {
	if len(pathsegs) == 1 {
		return e.RemoveEntry(store, pathsegs[0])
	}
	name, rest := pathsegs[0], pathsegs[1:]
	children, err := e.GetSubentries(store)
	if err != nil {
		return nil, err
	}
	v, found := children.Get(name)
	if !found {
		return e, nil
	}
	child := v.(*Entry)
	newChild, err := child.RemovePath(store, rest)
	if err != nil {
		return nil, err
	}
	if newChild == child {
		return e, nil
	}
	dirty := e.IsDirty()
	children.Put(name, newChild)
	if dirty {
		return e, nil
	}
	return newDirty(e.mode, children), nil
}

// WriteSubentries canonicalizes a dirty directory: it recursively
// canonicalizes every dirty child depth-first, prunes children whose
// canonical hash is the empty-tree sentinel, and writes the surviving
// entries through the tree-writer channel, returning a Clean entry
// stamped with the resulting hash. Idempotent (a no-op) for entries
// that are already clean.
func (e *Entry) WriteSubentries(store ObjectStore) (*Entry, error) {
	if !e.IsDirty() {
		return e, nil
	}
	emptyHash := store.EmptyTreeHash()
	var rawEntries []gateway.RawTreeEntry
	for _, k := range e.children.Keys() {
		name := k.(string)
		v, _ := e.children.Get(name)
		child := v.(*Entry)
		canon, err := child.WriteSubentries(store)
		if err != nil {
			return nil, err
		}
		if canon.mode.IsDir() && canon.hash == emptyHash {
			continue
		}
		rawEntries = append(rawEntries, gateway.RawTreeEntry{Name: name, Mode: canon.mode, Hash: canon.hash})
	}
	hash, err := store.WriteTree(rawEntries)
	if err != nil {
		return nil, err
	}
	return Clean(hash, e.mode), nil
}
