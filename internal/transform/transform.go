// Package transform implements the cached path-regex tree transformer:
// a set of (path-pattern, action) rules applied to every reachable
// tree, memoized by (prefix-when-sensitive, input-tree-hash) so an
// identical subtree shared by many commits is rewritten once.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/trace"
	"github.com/antgroup/hugescm-rewrite/internal/treemodel"
)

// ObjectStore is the subset of Gateway operations the transformer
// needs to retrieve and write trees.
type ObjectStore = treemodel.ObjectStore

// Action rewrites a single tree entry at fullPath. Returning
// deleted=true drops the entry entirely.
type Action func(store ObjectStore, fullPath string, entry gateway.RawTreeEntry) (result gateway.RawTreeEntry, deleted bool, err error)

// Rule pairs a compiled path pattern with the action to run wherever
// it fully matches. A pattern ending in "/" only ever matches
// directory prefixes (leaf paths never carry a trailing slash);
// anything else is tried against both directory prefixes and leaf
// paths, exactly as the underlying regex does or doesn't match.
type Rule struct {
	Source  string
	Pattern *regexp.Regexp
	Action  Action
}

// NewRule compiles pattern, anchored at both ends so a full path must
// match rather than merely contain pattern as a substring, paired
// with action.
func NewRule(pattern string, action Action) (Rule, error) {
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return Rule{}, fmt.Errorf("compiling rule pattern %q: %w", pattern, err)
	}
	return Rule{Source: pattern, Pattern: re, Action: action}, nil
}

// Stats reports four running counters: cache hits, trees retrieved,
// trees written, and actions invoked. The driver is responsible for
// display; this package only accumulates them.
type Stats struct {
	CacheHits      int64
	TreesRetrieved int64
	TreesWritten   int64
	ActionsInvoked int64
}

type memoKey struct {
	hasPrefix bool
	prefix    string
	oldHash   string
}

type memoResult struct {
	hash    string
	deleted bool
}

// Transformer walks trees guided by an ordered rule list.
//
// The underlying regexp package (RE2-based) has no partial-match API:
// given a pattern and a path prefix, it cannot tell whether the
// pattern might still match something further down that prefix,
// only whether the prefix itself matches. Without that, there is no
// sound way to drop a rule while descending into a subtree — doing so
// could silently skip a match further down. Transformer therefore
// always retains the full rule set at every depth; this is correct but
// forgoes the pruning a partial-match-capable matcher would allow.
type Transformer struct {
	store                   ObjectStore
	rules                   []Rule
	prefixSensitive         bool
	matchersPrefixSensitive bool
	failOnMissingObject     bool
	memo                    map[memoKey]memoResult
	Stats                   Stats
}

// New builds a Transformer over rules. prefixSensitive forces every
// memoization key to include the current path prefix; it is also
// forced on automatically if any rule's source pattern does not begin
// with the unconditional wildcard ".*" (such a rule's match result can
// depend on position, not just content). failOnMissingObject escalates
// a gitlink whose target is absent from the store from a warning
// (the default: the entry is left unchanged) to a fatal error.
func New(store ObjectStore, rules []Rule, prefixSensitive, failOnMissingObject bool) *Transformer {
	matchersPrefixSensitive := false
	for _, r := range rules {
		if !strings.HasPrefix(r.Source, ".*") {
			matchersPrefixSensitive = true
		}
	}
	return &Transformer{
		store:                   store,
		rules:                   rules,
		prefixSensitive:         prefixSensitive,
		matchersPrefixSensitive: matchersPrefixSensitive,
		failOnMissingObject:     failOnMissingObject,
		memo:                    make(map[memoKey]memoResult),
	}
}

// checkGitlink verifies a gitlink entry's target is present in the
// store. A missing target is logged as a warning and treated as
// unchanged, unless failOnMissingObject is set, in which case the
// error propagates.
func (tr *Transformer) checkGitlink(fullPath string, entry gateway.RawTreeEntry) error {
	if entry.Mode != gateway.ModeGitlink {
		return nil
	}
	if _, _, err := tr.store.Info(entry.Hash); err != nil {
		if !gateway.IsMissingObject(err) {
			return err
		}
		if tr.failOnMissingObject {
			return &gateway.MissingObject{Hash: entry.Hash, Path: fullPath}
		}
		trace.Warn("transform: gitlink %s at %q missing from store, leaving unchanged", entry.Hash, fullPath)
	}
	return nil
}

// Transform applies every rule to the tree named by rootHash and
// returns the rewritten tree's hash, or the empty-tree sentinel if
// every entry was deleted.
func (tr *Transformer) Transform(rootHash string) (string, error) {
	cur := tr.prefixSensitive || tr.matchersPrefixSensitive
	result, err := tr.transformInternal("/", rootHash, tr.rules, cur)
	if err != nil {
		return "", err
	}
	if result.deleted {
		return tr.store.EmptyTreeHash(), nil
	}
	return result.hash, nil
}

func (tr *Transformer) transformInternal(prefix, oldHash string, curRules []Rule, curPrefixSensitive bool) (memoResult, error) {
	key := memoKey{oldHash: oldHash}
	if curPrefixSensitive {
		key.hasPrefix = true
		key.prefix = prefix
	}
	if cached, ok := tr.memo[key]; ok {
		tr.Stats.CacheHits++
		return cached, nil
	}

	hash := oldHash
	deleted := false
	subPrefixSensitive := tr.prefixSensitive || tr.matchersPrefixSensitive

	dirName := strings.TrimSuffix(prefix, "/")
	if i := strings.LastIndexByte(dirName, '/'); i >= 0 {
		dirName = dirName[i+1:]
	}

	for _, r := range curRules {
		if deleted {
			break
		}
		if !r.Pattern.MatchString(prefix) {
			continue
		}
		if !strings.HasPrefix(r.Source, ".*") {
			subPrefixSensitive = true
		}
		tr.Stats.ActionsInvoked++
		out, del, err := r.Action(tr.store, prefix, gateway.RawTreeEntry{Name: dirName, Mode: gateway.ModeDir, Hash: hash})
		if err != nil {
			return memoResult{}, err
		}
		if del {
			deleted = true
			continue
		}
		hash = out.Hash
	}

	// No partial-match support: every rule is retained for the
	// children, regardless of whether it could possibly match below
	// this prefix.
	subRules := curRules

	if !deleted && len(subRules) > 0 {
		tr.Stats.TreesRetrieved++
		oldEntries, err := tr.store.ParseTree(hash)
		if err != nil {
			return memoResult{}, err
		}
		newEntries, err := tr.entriesTransform(prefix, oldEntries, subRules, subPrefixSensitive)
		if err != nil {
			return memoResult{}, err
		}
		if len(newEntries) == 0 {
			deleted = true
		} else if !sameEntries(oldEntries, newEntries) {
			tr.Stats.TreesWritten++
			hash, err = tr.store.WriteTree(newEntries)
			if err != nil {
				return memoResult{}, err
			}
		}
	}

	result := memoResult{hash: hash, deleted: deleted}
	tr.memo[key] = result
	return result, nil
}

func (tr *Transformer) entriesTransform(prefix string, entries []gateway.RawTreeEntry, rules []Rule, prefixSensitive bool) ([]gateway.RawTreeEntry, error) {
	var result []gateway.RawTreeEntry
	for _, entry := range entries {
		if entry.Mode.IsDir() {
			sub, err := tr.transformInternal(prefix+entry.Name+"/", entry.Hash, rules, prefixSensitive)
			if err != nil {
				return nil, err
			}
			if sub.deleted {
				continue
			}
			if sub.hash == entry.Hash {
				result = append(result, entry)
			} else {
				result = append(result, gateway.RawTreeEntry{Name: entry.Name, Mode: entry.Mode, Hash: sub.hash})
			}
			continue
		}

		fullName := prefix + entry.Name
		if err := tr.checkGitlink(fullName, entry); err != nil {
			return nil, err
		}
		cur := entry
		deleted := false
		for _, r := range rules {
			if !r.Pattern.MatchString(fullName) {
				continue
			}
			tr.Stats.ActionsInvoked++
			out, del, err := r.Action(tr.store, fullName, cur)
			if err != nil {
				return nil, err
			}
			if del {
				deleted = true
				break
			}
			cur = out
		}
		if deleted {
			continue
		}
		result = append(result, cur)
	}
	return result, nil
}

func sameEntries(a, b []gateway.RawTreeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
