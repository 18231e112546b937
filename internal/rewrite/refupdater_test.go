//go:build integration

package rewrite

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antgroup/hugescm-rewrite/internal/gateway"
	"github.com/antgroup/hugescm-rewrite/internal/rewriteopts"
)

// runGit runs git against a bare repository at gitDir and returns its
// trimmed stdout.
func runGit(t *testing.T, gitDir string, stdin string, args ...string) string {
	t.Helper()
	full := append([]string{"--git-dir", gitDir}, args...)
	cmd := exec.Command("git", full...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Tester", "GIT_AUTHOR_EMAIL=tester@example.com", "GIT_AUTHOR_DATE=1700000000 +0000",
		"GIT_COMMITTER_NAME=Tester", "GIT_COMMITTER_EMAIL=tester@example.com", "GIT_COMMITTER_DATE=1700000000 +0000",
	)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	require.NoError(t, cmd.Run(), "git %v: %s", args, errOut.String())
	return strings.TrimSpace(out.String())
}

// TestUpdateAnnotatedTagLeavesUnchangedSignedTagAlone exercises the
// bug where comparing a signature-stripped newTag against an
// unstripped oldTag made every signed tag look changed even when
// nothing but its signature needed dropping conceptually; the
// comparison baseline must itself be pre-stripped so an otherwise
// identical, unretargeted tag is left alone.
func TestUpdateAnnotatedTagLeavesUnchangedSignedTagAlone(t *testing.T) {
	gitDir := filepath.Join(t.TempDir(), "repo.git")
	runGit(t, gitDir, "", "init", "--bare", "--quiet")

	blobHash := runGit(t, gitDir, "hello\n", "hash-object", "-w", "--stdin", "-t", "blob")
	treeHash := runGit(t, gitDir, "100644 blob "+blobHash+"\tfile.txt\n", "mktree")
	commitHash := runGit(t, gitDir, "", "commit-tree", treeHash, "-m", "initial commit")

	tagContent := "object " + commitHash + "\n" +
		"type commit\n" +
		"tag v1.0.0\n" +
		"tagger Tester <tester@example.com> 1700000000 +0000\n" +
		"\n" +
		"release notes\n" +
		"-----BEGIN PGP SIGNATURE-----\n" +
		"\n" +
		"not-a-real-signature\n" +
		"-----END PGP SIGNATURE-----\n"
	tagHash := runGit(t, gitDir, tagContent, "hash-object", "-w", "--stdin", "-t", "tag")
	runGit(t, gitDir, "", "update-ref", "refs/tags/v1.0.0", tagHash)

	ctx := context.Background()
	gw, err := gateway.New(ctx, gateway.Options{RepoPath: gitDir, Algo: gateway.HashSHA1})
	require.NoError(t, err)
	defer func() { _ = gw.Close() }()

	revmap := NewRevMap()
	opt := rewriteopts.Options{Refs: []string{"refs/tags/v1.0.0"}}
	entry := refEntry{Hash: tagHash, Kind: "tag", Name: "refs/tags/v1.0.0"}

	changed, err := updateAnnotatedTag(gw, revmap, opt, entry)
	require.NoError(t, err)
	require.False(t, changed, "an unretargeted signed tag must not be reported as changed")
}
