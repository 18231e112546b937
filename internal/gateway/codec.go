package gateway

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// decodeCommit parses a raw commit object body: newline-separated
// header lines, an optional multi-line gpgsig block with
// space-prefixed continuation lines, a blank line, then the message.
func decodeCommit(hash string, r io.Reader) (*Commit, error) {
	br := bufio.NewReader(r)
	c := &Commit{Hash: hash}
	var msg bytes.Buffer
	finishedHeaders := false
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, newProtocolError("read", "reading commit %s: %v", hash, readErr)
		}
		text := strings.TrimSuffix(line, "\n")
		if !finishedHeaders {
			if text == "" {
				finishedHeaders = true
				if readErr == io.EOF {
					break
				}
				continue
			}
			if strings.HasPrefix(text, " ") && len(c.ExtraHeaders) > 0 {
				idx := len(c.ExtraHeaders) - 1
				c.ExtraHeaders[idx].Value += "\n" + text[1:]
				if readErr == io.EOF {
					break
				}
				continue
			}
			key, value, ok := strings.Cut(text, " ")
			if !ok {
				if readErr == io.EOF {
					break
				}
				continue
			}
			switch key {
			case "tree":
				c.Tree = value
			case "parent":
				c.Parents = append(c.Parents, value)
			case "author":
				c.Author.Decode(value)
			case "committer":
				c.Committer.Decode(value)
			default:
				c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: key, Value: value})
			}
		} else {
			msg.WriteString(line)
		}
		if readErr == io.EOF {
			break
		}
	}
	raw := msg.Bytes()
	if enc := c.Encoding(); enc != "" && !strings.EqualFold(enc, "utf-8") && !strings.EqualFold(enc, "utf8") {
		decoded, err := reencodeToUTF8(raw, enc)
		if err == nil {
			raw = decoded
			c.dropEncodingHeader()
		}
		// Undecodable or unknown encodings fall back to the raw bytes
		// under their declared encoding header; this is a lossy
		// best-effort, not a fatal condition.
	}
	c.Message = raw
	return c, nil
}

// dropEncodingHeader removes the "encoding" ExtraHeader entry, used
// once a message has actually been re-encoded to UTF-8 so the commit
// object re-emitted by encodeCommit does not keep claiming a
// non-UTF-8 encoding it no longer has.
func (c *Commit) dropEncodingHeader() {
	out := c.ExtraHeaders[:0]
	for _, h := range c.ExtraHeaders {
		if h.Key != "encoding" {
			out = append(out, h)
		}
	}
	c.ExtraHeaders = out
}

// encodeCommit serializes a Commit back to raw object bytes. gpgsig
// headers are never re-emitted: signatures are unverifiable once the
// content they cover has changed.
func encodeCommit(c *Commit) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&b, "parent %s\n", p)
	}
	fmt.Fprintf(&b, "author %s\n", c.Author.Encode())
	fmt.Fprintf(&b, "committer %s\n", c.Committer.Encode())
	for _, h := range c.ExtraHeaders {
		if h.Key == "gpgsig" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", h.Key, strings.ReplaceAll(h.Value, "\n", "\n "))
	}
	b.WriteByte('\n')
	b.Write(c.Message)
	return b.Bytes()
}

// decodeTag parses a raw annotated tag object: object, type, tag,
// tagger headers, a blank line, then the message — which may itself
// embed a trailing PGP signature block, left untouched here; stripping
// it is a ref-update concern, not the codec's.
func decodeTag(hash string, r io.Reader) (*Tag, error) {
	br := bufio.NewReader(r)
	t := &Tag{Hash: hash}
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, newProtocolError("read", "reading tag %s: %v", hash, readErr)
		}
		text := strings.TrimSuffix(line, "\n")
		if text == "" {
			break
		}
		key, value, ok := strings.Cut(text, " ")
		if !ok {
			break
		}
		switch key {
		case "object":
			t.TargetHash = value
		case "type":
			t.TargetKind = ParseObjectKind(value)
		case "tag":
			t.Name = value
		case "tagger":
			t.Tagger.Decode(value)
		}
		if readErr == io.EOF {
			return t, nil
		}
	}
	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, newProtocolError("read", "reading tag %s message: %v", hash, err)
	}
	t.Message = rest
	return t, nil
}

// encodeTag serializes a Tag back to raw object bytes.
func encodeTag(t *Tag) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "object %s\n", t.TargetHash)
	fmt.Fprintf(&b, "type %s\n", t.TargetKind)
	fmt.Fprintf(&b, "tag %s\n", t.Name)
	fmt.Fprintf(&b, "tagger %s\n", t.Tagger.Encode())
	b.WriteByte('\n')
	b.Write(t.Message)
	return b.Bytes()
}

// decodeTree parses a raw tree object body: a concatenation of
// "<mode> <name>\0<binary-hash>" entries. The hash width is derived
// from len(hash)/2 so both SHA-1 (20 bytes) and SHA-256 (32 bytes)
// object formats are supported.
func decodeTree(hash string, r io.Reader) ([]RawTreeEntry, error) {
	hashSize := len(hash) / 2
	if hashSize == 0 {
		hashSize = 20
	}
	br := bufio.NewReader(r)
	var entries []RawTreeEntry
	for {
		modeStr, err := br.ReadString(' ')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, newProtocolError("read", "reading tree %s: %v", hash, err)
		}
		modeStr = strings.TrimSuffix(modeStr, " ")
		mode, err := ParseFileMode(modeStr)
		if err != nil {
			return nil, newProtocolError("read", "tree %s: bad mode %q", hash, modeStr)
		}
		name, err := br.ReadString('\x00')
		if err != nil {
			return nil, newProtocolError("read", "reading tree %s entry name: %v", hash, err)
		}
		name = strings.TrimSuffix(name, "\x00")
		raw := make([]byte, hashSize)
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, newProtocolError("read", "reading tree %s entry hash: %v", hash, err)
		}
		entries = append(entries, RawTreeEntry{
			Name: name,
			Mode: mode,
			Hash: hexEncode(raw),
		})
	}
	return entries, nil
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
