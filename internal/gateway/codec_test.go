package gateway

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommitRoundTrip(t *testing.T) {
	raw := []byte("tree " + fakeHash('t') + "\n" +
		"parent " + fakeHash('p') + "\n" +
		"author A U Thor <a@example.com> 1700000000 +0000\n" +
		"committer A U Thor <a@example.com> 1700000000 +0000\n" +
		"\n" +
		"subject line\n\nbody\n")

	c, err := decodeCommit(fakeHash('c'), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, fakeHash('t'), c.Tree)
	require.Equal(t, []string{fakeHash('p')}, c.Parents)
	require.Equal(t, "A U Thor", c.Author.Name)
	require.Equal(t, "a@example.com", c.Author.Email)
	require.Equal(t, time.Unix(1700000000, 0).In(time.FixedZone("", 0)), c.Author.When)
	require.Equal(t, []byte("subject line\n\nbody\n"), c.Message)

	out := encodeCommit(c)
	c2, err := decodeCommit(fakeHash('c'), bytes.NewReader(out))
	require.NoError(t, err)
	require.True(t, c.Equal(c2))
}

func TestCommitRoundTripDropsGPGSignature(t *testing.T) {
	raw := []byte("tree " + fakeHash('t') + "\n" +
		"author A U Thor <a@example.com> 1700000000 +0000\n" +
		"committer A U Thor <a@example.com> 1700000000 +0000\n" +
		"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
		" aGVsbG8=\n" +
		" -----END PGP SIGNATURE-----\n" +
		"\n" +
		"signed commit\n")

	c, err := decodeCommit(fakeHash('c'), bytes.NewReader(raw))
	require.NoError(t, err)
	require.NotEmpty(t, c.GPGSignature())

	out := encodeCommit(c)
	require.NotContains(t, string(out), "gpgsig")
}

func TestTagRoundTrip(t *testing.T) {
	raw := []byte("object " + fakeHash('c') + "\n" +
		"type commit\n" +
		"tag v1.0.0\n" +
		"tagger A U Thor <a@example.com> 1700000000 +0000\n" +
		"\n" +
		"release notes\n")

	tag, err := decodeTag(fakeHash('g'), bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, fakeHash('c'), tag.TargetHash)
	require.Equal(t, KindCommit, tag.TargetKind)
	require.Equal(t, "v1.0.0", tag.Name)
	require.Equal(t, []byte("release notes\n"), tag.Message)

	out := encodeTag(tag)
	tag2, err := decodeTag(fakeHash('g'), bytes.NewReader(out))
	require.NoError(t, err)
	require.True(t, tag.Equal(tag2))
}

func TestDecodeTreeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("100644 file.txt\x00")
	hashBytes := make([]byte, 20)
	for i := range hashBytes {
		hashBytes[i] = byte(i)
	}
	buf.Write(hashBytes)
	buf.WriteString("40000 dir\x00")
	hashBytes2 := make([]byte, 20)
	for i := range hashBytes2 {
		hashBytes2[i] = byte(0xff - i)
	}
	buf.Write(hashBytes2)

	entries, err := decodeTree(fakeHash('t'), &buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "file.txt", entries[0].Name)
	require.Equal(t, "dir", entries[1].Name)
	require.Equal(t, hexEncode(hashBytes), entries[0].Hash)
}

func fakeHash(fill byte) string {
	b := bytes.Repeat([]byte{fill}, 40)
	return string(b)
}
