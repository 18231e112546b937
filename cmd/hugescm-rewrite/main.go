// Command hugescm-rewrite drives one end-to-end history rewrite
// against a local repository: it deletes matching paths, optionally
// prefixes every commit message, and repoints the named refs at the
// results.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/antgroup/hugescm-rewrite/internal/command"
	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/rewrite"
	"github.com/antgroup/hugescm-rewrite/internal/rewriteopts"
	"github.com/antgroup/hugescm-rewrite/internal/transform"
)

var (
	repoPath        string
	refs            []string
	deletePaths     []string
	messagePrefix   string
	backupRefPrefix string
	revmapPath      string
	progressEvery   int
	failOnMissing   bool
	verbose         bool
)

func main() {
	root := &cobra.Command{
		Use:   "hugescm-rewrite",
		Short: "Rewrite repository history and repoint refs at the result",
		RunE:  run,
	}
	flags := root.Flags()
	flags.StringVarP(&repoPath, "repo", "C", ".", "path to the repository's git directory")
	flags.StringArrayVar(&refs, "ref", nil, "ref to rewrite and repoint (repeatable); defaults to every branch and tag")
	flags.StringArrayVar(&deletePaths, "delete", nil, "path-anchored regex of entries to delete from every tree (repeatable)")
	flags.StringVar(&messagePrefix, "message-prefix", "", "text prepended to every rewritten commit message")
	flags.StringVar(&backupRefPrefix, "backup-ref-prefix", "refs/hugescm-rewrite-backup", "namespace under which original refs are preserved")
	flags.StringVar(&revmapPath, "revmap", "", "path to a persistent old-to-new commit hash map")
	flags.IntVar(&progressEvery, "progress-every", 100, "report progress every N commits (0 disables progress output)")
	flags.BoolVar(&failOnMissing, "fail-on-missing-object", false, "abort instead of warning when a gitlink target is absent from the object store")
	flags.BoolVarP(&verbose, "verbose", "V", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	gitDir, err := resolveGitDir(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("resolving git directory: %w", err)
	}

	refList := refs
	if len(refList) == 0 {
		refList, err = defaultRefs(ctx, gitDir)
		if err != nil {
			return fmt.Errorf("listing refs: %w", err)
		}
	}

	opt := rewriteopts.Options{
		Refs:                refList,
		BackupRefPrefix:     backupRefPrefix,
		RevmapPath:          revmapPath,
		FailOnMissingObject: failOnMissing,
		ProgressEvery:       progressEvery,
	}
	if messagePrefix != "" {
		opt.MessageFilter = func(old []byte) []byte {
			return append([]byte(messagePrefix), old...)
		}
	}
	if len(deletePaths) > 0 {
		rules, err := deleteRules(deletePaths)
		if err != nil {
			return err
		}
		opt.TreeRules = rules
	}

	gw, err := gateway.New(ctx, gateway.Options{RepoPath: gitDir, Algo: gateway.HashSHA1})
	if err != nil {
		return fmt.Errorf("opening object gateway: %w", err)
	}
	defer func() {
		if err := gw.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing gateway: %v\n", err)
		}
	}()

	result, err := rewrite.Run(ctx, gw, gitDir, opt)
	if err != nil {
		return err
	}
	fmt.Printf("visited %d commits, rewrote %d, repointed %d refs\n",
		result.CommitsVisited, result.CommitsRewritten, result.RefsUpdated)
	return nil
}

func deleteRules(patterns []string) ([]transform.Rule, error) {
	rules := make([]transform.Rule, 0, len(patterns))
	for _, p := range patterns {
		rule, err := transform.NewRule(p, deleteAction)
		if err != nil {
			return nil, fmt.Errorf("compiling --delete pattern %q: %w", p, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func deleteAction(_ transform.ObjectStore, _ string, _ gateway.RawTreeEntry) (gateway.RawTreeEntry, bool, error) {
	return gateway.RawTreeEntry{}, true, nil
}

func resolveGitDir(ctx context.Context, path string) (string, error) {
	var out strings.Builder
	cmd := command.New(ctx, &command.RunOpts{RepoPath: path, Stdout: &out}, "git", "-C", path, "rev-parse", "--git-dir")
	if err := cmd.Start(); err != nil {
		return "", err
	}
	if err := cmd.Wait(); err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out.String())
	if dir == "." || dir == "" {
		return path, nil
	}
	if strings.HasPrefix(dir, "/") {
		return dir, nil
	}
	return path + "/" + dir, nil
}

func defaultRefs(ctx context.Context, gitDir string) ([]string, error) {
	var out strings.Builder
	cmd := command.New(ctx, &command.RunOpts{RepoPath: gitDir, Stdout: &out},
		"git", "--git-dir", gitDir, "for-each-ref", "--format=%(refname)", "refs/heads", "refs/tags")
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}
