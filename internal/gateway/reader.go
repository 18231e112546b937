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

// reader drives a persistent `git cat-file --batch-command --buffer`
// child, giving random-access reads of any object by hash without a
// process spawn per lookup.
type reader struct {
	cmd       *command.Command
	stdinPipe io.WriteCloser
	stdin     *bufio.Writer
	stdout    *bufio.Reader
}

func newReader(ctx context.Context, repoPath string) (*reader, error) {
	cmd := command.New(ctx, &command.RunOpts{RepoPath: repoPath},
		"git", "--git-dir", repoPath, "cat-file", "--batch-command", "--buffer")
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
	return &reader{cmd: cmd, stdinPipe: stdin, stdin: bufio.NewWriter(stdin), stdout: bufio.NewReader(stdout)}, nil
}

func (d *reader) close() error {
	_ = d.stdinPipe.Close()
	if err := d.cmd.Wait(); err != nil {
		return &ChildFailure{Channel: "cat-file", Err: err}
	}
	return nil
}

// objectHeader is the parsed "<hash> <kind> <size>" line that precedes
// an object's content in batch mode.
type objectHeader struct {
	Hash string
	Kind ObjectKind
	Size int64
}

const (
	missingSuffix = " missing"

	cmdContents = "contents"
	cmdInfo     = "info"
	cmdFlush    = "flush"
)

// request issues one batch-command line ("contents <rev>" or "info
// <rev>") followed by a flush, matching the `--buffer` protocol: no
// output arrives until flush is sent.
func (d *reader) request(kind, revision string) error {
	if strings.ContainsRune(revision, '\n') {
		return &MissingObject{Hash: revision}
	}
	if _, err := fmt.Fprintf(d.stdin, "%s %s\n", kind, revision); err != nil {
		return newProtocolError("cat-file", "writing request: %v", err)
	}
	if _, err := d.stdin.WriteString(cmdFlush + "\n"); err != nil {
		return newProtocolError("cat-file", "writing flush: %v", err)
	}
	return d.stdin.Flush()
}

func (d *reader) readHeader() (objectHeader, error) {
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return objectHeader{}, newProtocolError("cat-file", "reading header: %v", err)
	}
	line = strings.TrimSuffix(line, "\n")
	if strings.HasSuffix(line, missingSuffix) {
		return objectHeader{}, &MissingObject{Hash: strings.TrimSuffix(line, missingSuffix)}
	}
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return objectHeader{}, newProtocolError("cat-file", "malformed header %q", line)
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return objectHeader{}, newProtocolError("cat-file", "malformed size in header %q", line)
	}
	return objectHeader{Hash: fields[0], Kind: ParseObjectKind(fields[1]), Size: size}, nil
}

// Info returns an object's kind and size without reading its content.
func (d *reader) Info(revision string) (objectHeader, error) {
	if err := d.request(cmdInfo, revision); err != nil {
		return objectHeader{}, err
	}
	return d.readHeader()
}

// readBody reads exactly `size` bytes of object content followed by
// its terminating newline, failing with ProtocolError on a short read
// or a missing terminator.
func (d *reader) readBody(size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(d.stdout, buf); err != nil {
		return nil, newProtocolError("cat-file", "short read: wanted %d bytes: %v", size, err)
	}
	nl, err := d.stdout.ReadByte()
	if err != nil || nl != '\n' {
		return nil, newProtocolError("cat-file", "missing terminating newline")
	}
	return buf, nil
}

// Contents returns an object's kind and raw content bytes.
func (d *reader) Contents(revision string) (ObjectKind, []byte, error) {
	if err := d.request(cmdContents, revision); err != nil {
		return KindUnknown, nil, err
	}
	hdr, err := d.readHeader()
	if err != nil {
		return KindUnknown, nil, err
	}
	body, err := d.readBody(hdr.Size)
	if err != nil {
		return KindUnknown, nil, err
	}
	return hdr.Kind, body, nil
}
