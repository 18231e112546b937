// Package rewriteopts holds the caller-supplied configuration surface
// for a rewrite: the starting ref list, the optional message/commit/tag
// filters, tree-transform rules, backup-ref prefix, and persistent
// revmap path. It is deliberately free of rewrite logic so
// internal/rewrite can depend on it without a cycle.
package rewriteopts

import (
	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/transform"
)

// PostWrite is invoked after a ReplaceAndNotify commit has been
// written, with the mark fast-import assigned it, so a caller can
// update its own auxiliary bookkeeping.
type PostWrite func(mark gateway.Mark) error

// FilterResultKind distinguishes the three shapes a CommitFilter may
// return.
type FilterResultKind int

const (
	KindReplace FilterResultKind = iota
	KindAlias
	KindReplaceAndNotify
)

// FilterResult is the tagged variant Replace(Commit) | Alias(hash) |
// ReplaceAndNotify(Commit, PostWrite). Build one with Replace,
// AliasTo, or ReplaceAndNotifyWith; do not construct the struct
// directly.
type FilterResult struct {
	Kind      FilterResultKind
	Commit    *gateway.Commit
	Alias     string
	PostWrite PostWrite
}

// Replace continues the rewrite with a (possibly edited) commit.
func Replace(c *gateway.Commit) FilterResult {
	return FilterResult{Kind: KindReplace, Commit: c}
}

// AliasTo treats the current commit as equivalent to an existing hash:
// install hash in the revmap without writing a new commit object.
func AliasTo(hash string) FilterResult {
	return FilterResult{Kind: KindAlias, Alias: hash}
}

// ReplaceAndNotifyWith writes c and then invokes postWrite with the
// mark it was assigned.
func ReplaceAndNotifyWith(c *gateway.Commit, postWrite PostWrite) FilterResult {
	return FilterResult{Kind: KindReplaceAndNotify, Commit: c, PostWrite: postWrite}
}

// MessageFilter replaces a commit or tag message wholesale.
type MessageFilter func(old []byte) []byte

// CommitFilter is invoked once per commit with the gateway, the
// commit's original hash, a mutable copy already carrying remapped
// parents/tree/message, and its pre-remap original parent list.
type CommitFilter func(gw *gateway.Gateway, oldHash string, commit *gateway.Commit, originalParents []string) (FilterResult, error)

// TagFilter customizes an annotated tag after its target has been
// remapped and any signature stripped.
type TagFilter func(gw *gateway.Gateway, oldHash string, tag *gateway.Tag) (*gateway.Tag, error)

// Options configures one end-to-end rewrite run.
type Options struct {
	// Refs lists the starting refs to enumerate commits from and,
	// later, to repoint.
	Refs []string

	// MessageFilter, if set, replaces every rewritten commit's
	// message.
	MessageFilter MessageFilter

	// TreeRules and PrefixSensitive configure the Tree Transformer
	// applied to every commit's tree, if TreeRules is non-empty.
	TreeRules       []transform.Rule
	PrefixSensitive bool

	// CommitFilter, if set, is the final per-commit customization
	// hook.
	CommitFilter CommitFilter

	// TagFilter, if set, customizes annotated tags during reference
	// update.
	TagFilter TagFilter

	// BackupRefPrefix, if non-empty, must start with "refs/"; backups
	// of every repointed ref are created under
	// <BackupRefPrefix>/<original-refname> before the original is
	// moved.
	BackupRefPrefix string

	// RevmapPath, if non-empty, persists the old→new commit hash
	// mapping across runs.
	RevmapPath string

	// FailOnMissingObject escalates a MissingObject (absent gitlink
	// target) from a warning to a fatal error.
	FailOnMissingObject bool

	// ProgressEvery, if positive, reports progress after every N
	// commits processed.
	ProgressEvery int
}
