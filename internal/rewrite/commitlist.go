package rewrite

import (
	"bufio"
	"context"
	"strings"

	"github.com/antgroup/hugescm-rewrite/internal/command"
)

// listCommits enumerates every commit reachable from refs in reverse
// topological order (every commit after all of its ancestors),
// delegating the graph walk to git itself via `git rev-list --reverse
// --topo-order` rather than re-implementing it in-process.
func listCommits(ctx context.Context, repoPath string, refs []string) ([]string, error) {
	args := append([]string{"--git-dir", repoPath, "rev-list", "--reverse", "--topo-order"}, refs...)
	var out strings.Builder
	cmd := command.New(ctx, &command.RunOpts{RepoPath: repoPath, Stdout: &out}, "git", args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	var hashes []string
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			hashes = append(hashes, line)
		}
	}
	return hashes, nil
}

// refEntry is one line of `git for-each-ref` output: the ref's current
// target, its object kind, and its own name.
type refEntry struct {
	Hash string
	Kind string
	Name string
}

// listRefEntries resolves every ref in refs to its current target hash
// and object kind, the input to reference repointing.
func listRefEntries(ctx context.Context, repoPath string, refs []string) ([]refEntry, error) {
	args := append([]string{"--git-dir", repoPath, "for-each-ref", "--format=%(objectname) %(objecttype)%09%(refname)"}, refs...)
	var out strings.Builder
	cmd := command.New(ctx, &command.RunOpts{RepoPath: repoPath, Stdout: &out}, "git", args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	var entries []refEntry
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		hashAndKind, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		hash, kind, ok := strings.Cut(hashAndKind, " ")
		if !ok {
			continue
		}
		entries = append(entries, refEntry{Hash: hash, Kind: kind, Name: name})
	}
	return entries, nil
}
