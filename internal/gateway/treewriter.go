package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/antgroup/hugescm-rewrite/internal/command"
)

// treeWriter drives a persistent `git mktree -z --batch` child:
// callers write a NUL-delimited list of "<mode> <type> <hash>\t<name>"
// records terminated by a double NUL, and read back one hash per
// batch.
type treeWriter struct {
	cmd       *command.Command
	stdinPipe io.WriteCloser
	stdin     *bufio.Writer
	stdout    *bufio.Reader
	algo      HashAlgo
}

func newTreeWriter(ctx context.Context, repoPath string, algo HashAlgo) (*treeWriter, error) {
	cmd := command.New(ctx, &command.RunOpts{RepoPath: repoPath},
		"git", "--git-dir", repoPath, "mktree", "-z", "--batch")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, err
	}
	return &treeWriter{cmd: cmd, stdinPipe: stdin, stdin: bufio.NewWriter(stdin), stdout: bufio.NewReader(stdout), algo: algo}, nil
}

// close signals end-of-batch by closing stdin: `mktree -z --batch`
// exits on stdin EOF rather than a terminating command, so Wait must
// not be called first.
func (w *treeWriter) close() error {
	_ = w.stdinPipe.Close()
	if err := w.cmd.Wait(); err != nil {
		return &ChildFailure{Channel: "mktree", Err: err}
	}
	return nil
}

// WriteTree builds a new tree object from entries and returns its
// hash. An empty entry list produces the well-known empty-tree
// sentinel without round-tripping through the child at all.
func (w *treeWriter) WriteTree(entries []RawTreeEntry) (string, error) {
	if len(entries) == 0 {
		return EmptyTreeHash(w.algo), nil
	}
	for i, e := range entries {
		if strings.ContainsRune(e.Name, '/') {
			return "", &InvalidName{Name: e.Name, Reason: "tree entry name may not contain '/'"}
		}
		if i > 0 {
			w.stdin.WriteByte(0)
		}
		fmt.Fprintf(w.stdin, "%s %s %s\t%s", e.Mode, e.Mode.ObjectKind(), e.Hash, e.Name)
	}
	w.stdin.WriteByte(0)
	w.stdin.WriteByte(0)
	if err := w.stdin.Flush(); err != nil {
		return "", newProtocolError("mktree", "writing batch: %v", err)
	}
	line, err := w.stdout.ReadString('\n')
	if err != nil {
		return "", newProtocolError("mktree", "reading result: %v", err)
	}
	return strings.TrimSpace(line), nil
}
