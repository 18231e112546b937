// Package rewrite drives an end-to-end history rewrite: it enumerates
// the reachable commit DAG in dependency order, applies the configured
// filters to each commit, and repoints the starting refs at the
// results.
package rewrite

import (
	"context"
	"fmt"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/progress"
	"github.com/antgroup/hugescm-rewrite/internal/rewriteopts"
	"github.com/antgroup/hugescm-rewrite/internal/trace"
	"github.com/antgroup/hugescm-rewrite/internal/transform"
)

// Result summarizes one completed rewrite.
type Result struct {
	RevMap           *RevMap
	CommitsVisited   int
	CommitsRewritten int
	RefsUpdated      int
}

// Run enumerates every commit reachable from opt.Refs, applies the
// configured filters to each in turn, then repoints opt.Refs at the
// rewritten results.
func Run(ctx context.Context, gw *gateway.Gateway, repoPath string, opt rewriteopts.Options) (*Result, error) {
	revmap, err := LoadRevMap(opt.RevmapPath)
	if err != nil {
		return nil, err
	}

	commits, err := listCommits(ctx, repoPath, opt.Refs)
	if err != nil {
		return nil, fmt.Errorf("rewrite: listing commits: %w", err)
	}

	var treeTr *transform.Transformer
	if len(opt.TreeRules) > 0 {
		treeTr = transform.New(gw, opt.TreeRules, opt.PrefixSensitive, opt.FailOnMissingObject)
	}

	rep := progress.New("rewriting commits", len(commits), opt.ProgressEvery <= 0)
	rewritten := 0
	for i, oldHash := range commits {
		if revmap.Has(oldHash) {
			continue
		}
		if err := rewriteOne(gw, revmap, treeTr, opt, oldHash); err != nil {
			return nil, fmt.Errorf("rewrite: commit %s: %w", oldHash, err)
		}
		rewritten++
		rep.Add(1)
		if opt.ProgressEvery > 0 && (i+1)%opt.ProgressEvery == 0 {
			trace.Infof("rewrite: processed %d/%d commits", i+1, len(commits))
		}
	}
	rep.Done()

	refsUpdated, err := updateRefs(ctx, gw, repoPath, revmap, opt)
	if err != nil {
		return nil, fmt.Errorf("rewrite: updating refs: %w", err)
	}

	if opt.RevmapPath != "" {
		if err := revmap.Resolve(gw); err != nil {
			return nil, err
		}
		if err := revmap.Save(opt.RevmapPath); err != nil {
			return nil, err
		}
	}

	return &Result{
		RevMap:           revmap,
		CommitsVisited:   len(commits),
		CommitsRewritten: rewritten,
		RefsUpdated:      refsUpdated,
	}, nil
}

// rewriteOne applies the configured filters to a single commit and, if
// anything changed, writes the result and installs its revmap entry.
func rewriteOne(gw *gateway.Gateway, revmap *RevMap, treeTr *transform.Transformer, opt rewriteopts.Options, oldHash string) error {
	oldCommit, err := gw.ParseCommit(oldHash)
	if err != nil {
		return err
	}
	commit := oldCommit.Copy()
	originalParents := append([]string(nil), oldCommit.Parents...)

	for i, p := range commit.Parents {
		if newHash, ok := revmap.Get(p); ok {
			commit.Parents[i] = newHash
		}
	}

	if opt.MessageFilter != nil {
		commit.Message = opt.MessageFilter(commit.Message)
	}

	if treeTr != nil {
		newTree, err := treeTr.Transform(commit.Tree)
		if err != nil {
			return err
		}
		commit.Tree = newTree
	}

	if opt.CommitFilter != nil {
		result, err := opt.CommitFilter(gw, oldHash, commit, originalParents)
		if err != nil {
			return err
		}
		switch result.Kind {
		case rewriteopts.KindAlias:
			revmap.SetHash(oldHash, result.Alias)
			return nil
		case rewriteopts.KindReplaceAndNotify:
			commit = result.Commit
			mark, err := gw.WriteCommit(commit)
			if err != nil {
				return err
			}
			revmap.SetMark(oldHash, mark)
			if result.PostWrite != nil {
				return result.PostWrite(mark)
			}
			return nil
		default:
			commit = result.Commit
		}
	}

	if commit.Equal(oldCommit) {
		return nil
	}
	mark, err := gw.WriteCommit(commit)
	if err != nil {
		return err
	}
	revmap.SetMark(oldHash, mark)
	return nil
}
