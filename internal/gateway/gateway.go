package gateway

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/errgroup"

	"github.com/antgroup/hugescm-rewrite/internal/trace"
)

// Gateway is the single point of contact between a rewrite and the
// repository's object store. It owns three persistent child channels
// (a `cat-file --batch-command` reader, a `mktree --batch` writer, a
// `fast-import` importer) plus write-through caches over all three, so
// that repeated lookups of the same tree or commit usually skip a
// protocol round trip. The caches are bounded and may evict entries;
// a lookup that misses goes to the cat-file channel.
type Gateway struct {
	ctx      context.Context
	repoPath string
	algo     HashAlgo

	mu       sync.Mutex
	reader   *reader
	writer   *treeWriter
	importer *importer

	commits *ristretto.Cache[string, *Commit]
	tags    *ristretto.Cache[string, *Tag]
	trees   *ristretto.Cache[string, []RawTreeEntry]
	marks   *ristretto.Cache[Mark, *Commit]
}

// Options configures a new Gateway.
type Options struct {
	RepoPath string
	Algo     HashAlgo
}

// New opens the three child channels against repoPath and sizes the
// object caches. Cache capacities follow ristretto's usual 10x-items
// counter-to-cost ratio recommendation.
func New(ctx context.Context, opt Options) (*Gateway, error) {
	r, err := newReader(ctx, opt.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("opening cat-file channel: %w", err)
	}
	w, err := newTreeWriter(ctx, opt.RepoPath, opt.Algo)
	if err != nil {
		_ = r.close()
		return nil, fmt.Errorf("opening mktree channel: %w", err)
	}
	im, err := newImporter(ctx, opt.RepoPath, opt.Algo)
	if err != nil {
		_ = r.close()
		_ = w.close()
		return nil, fmt.Errorf("opening fast-import channel: %w", err)
	}

	commits, err := ristretto.NewCache(&ristretto.Config[string, *Commit]{NumCounters: 1e6, MaxCost: 1 << 26, BufferItems: 64})
	if err != nil {
		return nil, fmt.Errorf("allocating commit cache: %w", err)
	}
	tags, err := ristretto.NewCache(&ristretto.Config[string, *Tag]{NumCounters: 1e5, MaxCost: 1 << 22, BufferItems: 64})
	if err != nil {
		return nil, fmt.Errorf("allocating tag cache: %w", err)
	}
	trees, err := ristretto.NewCache(&ristretto.Config[string, []RawTreeEntry]{NumCounters: 1e6, MaxCost: 1 << 27, BufferItems: 64})
	if err != nil {
		return nil, fmt.Errorf("allocating tree cache: %w", err)
	}
	marks, err := ristretto.NewCache(&ristretto.Config[Mark, *Commit]{NumCounters: 1e5, MaxCost: 1 << 24, BufferItems: 64})
	if err != nil {
		return nil, fmt.Errorf("allocating mark cache: %w", err)
	}

	return &Gateway{
		ctx:      ctx,
		repoPath: opt.RepoPath,
		algo:     opt.Algo,
		reader:   r,
		writer:   w,
		importer: im,
		commits:  commits,
		tags:     tags,
		trees:    trees,
		marks:    marks,
	}, nil
}

// ParseCommit returns the parsed commit named by hash, consulting the
// cache before falling back to the cat-file channel.
func (g *Gateway) ParseCommit(hash string) (*Commit, error) {
	if c, ok := g.commits.Get(hash); ok {
		return c.Copy(), nil
	}
	g.mu.Lock()
	kind, body, err := g.reader.Contents(hash)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if kind != KindCommit {
		return nil, &ObjectKindMismatch{Hash: hash, Wanted: KindCommit, Actual: kind}
	}
	c, err := decodeCommit(hash, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	g.commits.Set(hash, c, int64(len(body)))
	return c.Copy(), nil
}

// ParseTag returns the parsed annotated tag named by hash.
func (g *Gateway) ParseTag(hash string) (*Tag, error) {
	if t, ok := g.tags.Get(hash); ok {
		return t.Copy(), nil
	}
	g.mu.Lock()
	kind, body, err := g.reader.Contents(hash)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if kind != KindTag {
		return nil, &ObjectKindMismatch{Hash: hash, Wanted: KindTag, Actual: kind}
	}
	t, err := decodeTag(hash, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	g.tags.Set(hash, t, int64(len(body)))
	return t.Copy(), nil
}

// ParseTree returns the flat entry list of the tree named by hash.
func (g *Gateway) ParseTree(hash string) ([]RawTreeEntry, error) {
	if hash == EmptyTreeHash(g.algo) {
		return nil, nil
	}
	if entries, ok := g.trees.Get(hash); ok {
		return entries, nil
	}
	g.mu.Lock()
	kind, body, err := g.reader.Contents(hash)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if kind != KindTree {
		return nil, &ObjectKindMismatch{Hash: hash, Wanted: KindTree, Actual: kind}
	}
	entries, err := decodeTree(hash, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	g.trees.Set(hash, entries, int64(len(body)))
	return entries, nil
}

// GetBlob returns a blob's raw content, uncached: blob bodies are
// typically large relative to commits/trees, and most rewrites never
// inspect blob content at all.
func (g *Gateway) GetBlob(hash string) ([]byte, error) {
	g.mu.Lock()
	kind, body, err := g.reader.Contents(hash)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if kind != KindBlob {
		return nil, &ObjectKindMismatch{Hash: hash, Wanted: KindBlob, Actual: kind}
	}
	return body, nil
}

// Info returns an object's kind and size without reading its content.
func (g *Gateway) Info(hash string) (ObjectKind, int64, error) {
	g.mu.Lock()
	hdr, err := g.reader.Info(hash)
	g.mu.Unlock()
	if err != nil {
		return KindUnknown, 0, err
	}
	return hdr.Kind, hdr.Size, nil
}

// WriteTree builds a new tree object from entries via the mktree
// channel and seeds the tree cache with the result, so a transformer
// that immediately re-reads the tree it just wrote avoids a round
// trip.
func (g *Gateway) WriteTree(entries []RawTreeEntry) (string, error) {
	g.mu.Lock()
	hash, err := g.writer.WriteTree(entries)
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	g.trees.Set(hash, entries, int64(len(entries)*64))
	return hash, nil
}

// WriteCommit queues a commit for creation and returns its mark. The
// mark is cached against a copy of the commit so that, once
// ResolveMark has turned the mark into a hash, ParseCommit of that
// hash can be served from the commit cache.
func (g *Gateway) WriteCommit(c *Commit) (Mark, error) {
	g.mu.Lock()
	mark, err := g.importer.WriteCommit(c)
	g.mu.Unlock()
	if err != nil {
		return 0, err
	}
	g.marks.Set(mark, c.Copy(), 1)
	return mark, nil
}

// WriteTag queues an annotated tag for creation.
func (g *Gateway) WriteTag(t *Tag) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.importer.WriteTag(t)
}

// ResetRef repoints ref at target, which may be a concrete hash or a
// mark produced by WriteCommit.
func (g *Gateway) ResetRef(ref, target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.importer.ResetRef(ref, target)
}

// ResolveMark blocks until the import channel has processed every
// command issued so far and returns the concrete hash a mark resolved
// to.
func (g *Gateway) ResolveMark(mark Mark) (string, error) {
	g.mu.Lock()
	hash, err := g.importer.ResolveMark(mark)
	g.mu.Unlock()
	if err != nil {
		return "", err
	}
	if c, ok := g.marks.Get(mark); ok {
		g.commits.Set(hash, c, 1)
	}
	return hash, nil
}

// EmptyTreeHash returns the empty-tree sentinel for this gateway's
// hash algorithm.
func (g *Gateway) EmptyTreeHash() string { return EmptyTreeHash(g.algo) }

// ZeroHash returns the all-zero ref-deletion sentinel for this
// gateway's hash algorithm.
func (g *Gateway) ZeroHash() string { return ZeroHash(g.algo) }

// Algo reports the hash algorithm this gateway was opened with.
func (g *Gateway) Algo() HashAlgo { return g.algo }

// Close shuts every child channel down concurrently: fast-import's
// drain on `done` and the cat-file/mktree stdin-EOF shutdowns are
// independent and do not need to be serialized. Every channel's close
// error is logged even though only the first is returned, so a
// failure on one channel never masks a diagnostic from another.
func (g *Gateway) Close() error {
	closers := []struct {
		name string
		fn   func() error
	}{
		{"cat-file", g.reader.close},
		{"mktree", g.writer.close},
		{"fast-import", g.importer.close},
	}
	var eg errgroup.Group
	errs := make([]error, len(closers))
	for i, c := range closers {
		i, c := i, c
		eg.Go(func() error {
			errs[i] = c.fn()
			if errs[i] != nil {
				trace.Warn("gateway: %s channel close error: %v", c.name, errs[i])
			}
			return errs[i]
		})
	}
	return eg.Wait()
}
