package rewrite

import (
	"context"
	"strings"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/rewriteopts"
	"github.com/antgroup/hugescm-rewrite/internal/trace"
)

// updateRefs repoints every ref in opt.Refs at its rewritten target:
// branches move straight to their revmap entry; annotated tags are
// re-created with a remapped target and any PGP signature stripped.
// It returns the number of refs actually moved.
func updateRefs(ctx context.Context, gw *gateway.Gateway, repoPath string, revmap *RevMap, opt rewriteopts.Options) (int, error) {
	entries, err := listRefEntries(ctx, repoPath, opt.Refs)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, e := range entries {
		switch e.Kind {
		case "commit":
			newHash, ok := revmap.Get(e.Hash)
			if !ok {
				continue
			}
			if err := backupAndReset(gw, opt, e.Name, e.Hash, newHash); err != nil {
				return moved, err
			}
			moved++
		case "tag":
			changed, err := updateAnnotatedTag(gw, revmap, opt, e)
			if err != nil {
				return moved, err
			}
			if changed {
				moved++
			}
		}
	}
	return moved, nil
}

func updateAnnotatedTag(gw *gateway.Gateway, revmap *RevMap, opt rewriteopts.Options, e refEntry) (bool, error) {
	oldTag, err := gw.ParseTag(e.Hash)
	if err != nil {
		return false, err
	}

	wantName := strings.TrimPrefix(e.Name, "refs/tags/")
	if oldTag.Name != wantName {
		trace.Warn("ref-update: tag %s has embedded name %q, skipping", e.Name, oldTag.Name)
		return false, nil
	}
	if oldTag.TargetKind != gateway.KindCommit {
		trace.Warn("ref-update: tag %s targets a %s, not a commit, skipping", e.Name, oldTag.TargetKind)
		return false, nil
	}

	body, signed := gateway.SplitSignature(oldTag.Message)
	oldTag.Message = body
	newTag := oldTag.Copy()

	if newHash, ok := revmap.Get(newTag.TargetHash); ok {
		newTag.TargetHash = newHash
	}
	if opt.MessageFilter != nil {
		newTag.Message = opt.MessageFilter(newTag.Message)
	}
	if opt.TagFilter != nil {
		newTag, err = opt.TagFilter(gw, e.Hash, newTag)
		if err != nil {
			return false, err
		}
	}

	if newTag.Equal(oldTag) {
		return false, nil
	}

	if err := backupAndReset(gw, opt, e.Name, e.Hash, ""); err != nil {
		return false, err
	}
	if err := gw.WriteTag(newTag); err != nil {
		return false, err
	}
	if signed {
		trace.Warn("ref-update: dropped signature on tag %s", e.Name)
	}
	return true, nil
}

// backupAndReset creates a backup ref for oldHash (if a prefix is
// configured) and, when newTarget is non-empty, resets ref to it.
// newTarget is left empty for annotated tags: fast-import's `tag`
// command names the ref itself, so no separate reset is issued.
func backupAndReset(gw *gateway.Gateway, opt rewriteopts.Options, ref, oldHash, newTarget string) error {
	if opt.BackupRefPrefix != "" {
		backupRef := opt.BackupRefPrefix + "/" + ref
		if err := gw.ResetRef(backupRef, oldHash); err != nil {
			return err
		}
	}
	if newTarget != "" {
		if err := gw.ResetRef(ref, newTarget); err != nil {
			return err
		}
	}
	return nil
}
