package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antgroup/hugescm-rewrite/internal/command"
)

// tmpRefName is the throwaway ref every rewritten commit is landed on
// inside fast-import. Real branches are never touched here: this lets
// commit writes stay agnostic of which branch a commit belongs to
// (parents are always passed via `merge`, never `from`), deferring all
// real ref placement to a later phase.
const tmpRefName = "refs/hugescm-rewrite-tmp"

// importer drives a persistent `git fast-import --force
// --date-format=raw --done` child: it creates commit and tag objects
// and repoints refs.
type importer struct {
	cmd       *command.Command
	stdinPipe io.WriteCloser
	stdin     *bufio.Writer
	stdout    *bufio.Reader
	algo      HashAlgo
	nextMark  int64
}

func newImporter(ctx context.Context, repoPath string, algo HashAlgo) (*importer, error) {
	cmd := command.New(ctx, &command.RunOpts{RepoPath: repoPath},
		"git", "--git-dir", repoPath, "fast-import", "--force", "--date-format=raw", "--done")
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
	return &importer{
		cmd:       cmd,
		stdinPipe: stdin,
		stdin:     bufio.NewWriter(stdin),
		stdout:    bufio.NewReader(stdout),
		algo:      algo,
		nextMark:  1,
	}, nil
}

// Mark is a transient handle for an object fast-import has queued but
// not yet hashed.
type Mark int64

func (m Mark) String() string { return ":" + strconv.FormatInt(int64(m), 10) }

// WriteCommit queues a commit object for creation and returns its
// mark. Parents may be concrete hashes or marks; both are forwarded
// verbatim, since fast-import resolves either form.
func (im *importer) WriteCommit(c *Commit) (Mark, error) {
	mark := Mark(im.nextMark)
	im.nextMark++

	fmt.Fprintf(im.stdin, "commit %s\n", tmpRefName)
	fmt.Fprintf(im.stdin, "mark %s\n", mark)
	fmt.Fprintf(im.stdin, "author %s\n", c.Author.Encode())
	fmt.Fprintf(im.stdin, "committer %s\n", c.Committer.Encode())
	fmt.Fprintf(im.stdin, "data %d\n%s\n", len(c.Message), c.Message)
	fmt.Fprintf(im.stdin, "from %s\n", ZeroHash(im.algo))
	for _, p := range c.Parents {
		fmt.Fprintf(im.stdin, "merge %s\n", p)
	}
	fmt.Fprintf(im.stdin, "M 040000 %s \n\n", c.Tree)
	if err := im.stdin.Flush(); err != nil {
		return 0, newProtocolError("fast-import", "writing commit: %v", err)
	}
	return mark, nil
}

// WriteTag queues an annotated tag object. fast-import's `tag` command
// both creates the object and names the refs/tags/<name> ref pointing
// at it (an implicit ref update).
func (im *importer) WriteTag(t *Tag) error {
	fmt.Fprintf(im.stdin, "tag %s\n", t.Name)
	fmt.Fprintf(im.stdin, "from %s\n", t.TargetHash)
	fmt.Fprintf(im.stdin, "tagger %s\n", t.Tagger.Encode())
	fmt.Fprintf(im.stdin, "data %d\n%s\n", len(t.Message), t.Message)
	if err := im.stdin.Flush(); err != nil {
		return newProtocolError("fast-import", "writing tag: %v", err)
	}
	return nil
}

// ResetRef repoints ref to target (a hash or a mark). The all-zero
// hash deletes the ref.
func (im *importer) ResetRef(ref, target string) error {
	fmt.Fprintf(im.stdin, "reset %s\nfrom %s\n\n", ref, target)
	if err := im.stdin.Flush(); err != nil {
		return newProtocolError("fast-import", "writing reset: %v", err)
	}
	return nil
}

// ResolveMark blocks until the child has processed every command
// issued so far and returns the concrete hash for mark.
func (im *importer) ResolveMark(mark Mark) (string, error) {
	fmt.Fprintf(im.stdin, "get-mark %s\n", mark)
	if err := im.stdin.Flush(); err != nil {
		return "", newProtocolError("fast-import", "writing get-mark: %v", err)
	}
	line, err := im.stdout.ReadString('\n')
	if err != nil {
		return "", newProtocolError("fast-import", "reading get-mark response: %v", err)
	}
	hash := strings.TrimSpace(line)
	if hash == "" {
		return "", newProtocolError("fast-import", "empty get-mark response for %s", mark)
	}
	return hash, nil
}

func (im *importer) close() error {
	// Drop the temporary landing ref before shutting the child down;
	// real branches were only ever repointed explicitly via ResetRef.
	if err := im.ResetRef(tmpRefName, ZeroHash(im.algo)); err != nil {
		return err
	}
	if _, err := im.stdin.WriteString("done\n"); err != nil {
		return newProtocolError("fast-import", "writing done: %v", err)
	}
	if err := im.stdin.Flush(); err != nil {
		return newProtocolError("fast-import", "flushing done: %v", err)
	}
	_ = im.stdinPipe.Close()
	if err := im.cmd.Wait(); err != nil {
		return &ChildFailure{Channel: "fast-import", Err: err}
	}
	return nil
}
