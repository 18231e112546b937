package rewrite

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/trace"
)

// RevMap is the old-hash→new-hash-or-mark mapping built during a
// rewrite. It grows monotonically; entries are never removed. A mark
// is stored as its String() form (":<n>") until Resolve replaces it
// with a concrete hash.
type RevMap struct {
	m map[string]string
}

// NewRevMap returns an empty revision map.
func NewRevMap() *RevMap {
	return &RevMap{m: make(map[string]string)}
}

// Get returns the mapped value for old and whether it was present.
func (r *RevMap) Get(old string) (string, bool) {
	v, ok := r.m[old]
	return v, ok
}

// Has reports whether old already has an entry, used to skip commits
// a prior, interrupted run already processed.
func (r *RevMap) Has(old string) bool {
	_, ok := r.m[old]
	return ok
}

// SetHash installs old→newHash.
func (r *RevMap) SetHash(old, newHash string) {
	r.m[old] = newHash
}

// SetMark installs old→mark, to be resolved to a concrete hash later
// via Resolve.
func (r *RevMap) SetMark(old string, mark gateway.Mark) {
	r.m[old] = mark.String()
}

// Len reports the number of entries.
func (r *RevMap) Len() int { return len(r.m) }

// Resolve replaces every mark-valued entry with its concrete hash by
// asking gw to resolve it, as required before persisting to disk. Safe
// to call repeatedly; already-concrete entries are untouched.
func (r *RevMap) Resolve(gw *gateway.Gateway) error {
	for old, v := range r.m {
		if !strings.HasPrefix(v, ":") {
			continue
		}
		n, err := parseMark(v)
		if err != nil {
			return fmt.Errorf("revmap: resolving mark for %s: %w", old, err)
		}
		hash, err := gw.ResolveMark(n)
		if err != nil {
			return fmt.Errorf("revmap: resolving mark %s for %s: %w", v, old, err)
		}
		r.m[old] = hash
	}
	return nil
}

func parseMark(s string) (gateway.Mark, error) {
	var n int64
	if _, err := fmt.Sscanf(s, ":%d", &n); err != nil {
		return 0, err
	}
	return gateway.Mark(n), nil
}

// LoadRevMap parses a whitespace-delimited two-column revmap file
// ("<old-hex> <new-hex>\n" per line). A missing file is not an error:
// it simply yields an empty map, matching a first run.
func LoadRevMap(path string) (*RevMap, error) {
	r := NewRevMap()
	if path == "" {
		return r, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("revmap: reading %s: %w", path, err)
	}
	trace.Infof("revmap: loaded %s (fingerprint %s)", path, fingerprint(path, raw))

	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		r.m[fields[0]] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("revmap: scanning %s: %w", path, err)
	}
	return r, nil
}

// Save persists r to path via temp+rename, sufficient for
// single-writer crash safety. Every entry must already be a concrete
// hash; call Resolve first.
func (r *RevMap) Save(path string) error {
	if path == "" {
		return nil
	}
	var b strings.Builder
	for old, newHash := range r.m {
		fmt.Fprintf(&b, "%s %s\n", old, newHash)
	}
	raw := []byte(b.String())

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("revmap: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("revmap: renaming %s to %s: %w", tmp, path, err)
	}
	trace.Infof("revmap: wrote %s (%d entries, fingerprint %s)", path, len(r.m), fingerprint(path, raw))
	return nil
}

// fingerprint returns a short blake3 digest of a revmap file's
// content, logged on load/save as a cheap way to notice a revmap that
// changed underneath a long-running rewrite.
func fingerprint(path string, content []byte) string {
	h := blake3.New()
	fmt.Fprintf(h, "path: %s\n", filepath.Clean(path))
	h.Write(content)
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
