package gateway

import (
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// legacyEncodings maps a commit's "encoding" header value to a
// decoder that produces UTF-8. Only encodings git commits plausibly
// declare are listed; anything else is left as-is.
var legacyEncodings = map[string]encoding.Encoding{
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-2":   charmap.ISO8859_2,
	"iso-8859-3":   charmap.ISO8859_3,
	"iso-8859-4":   charmap.ISO8859_4,
	"iso-8859-5":   charmap.ISO8859_5,
	"iso-8859-6":   charmap.ISO8859_6,
	"iso-8859-7":   charmap.ISO8859_7,
	"iso-8859-8":   charmap.ISO8859_8,
	"iso-8859-9":   charmap.ISO8859_9,
	"iso-8859-10":  charmap.ISO8859_10,
	"iso-8859-13":  charmap.ISO8859_13,
	"iso-8859-14":  charmap.ISO8859_14,
	"iso-8859-15":  charmap.ISO8859_15,
	"iso-8859-16":  charmap.ISO8859_16,
	"koi8-r":       charmap.KOI8R,
	"koi8-u":       charmap.KOI8U,
	"windows-1250": charmap.Windows1250,
	"windows-1251": charmap.Windows1251,
	"windows-1252": charmap.Windows1252,
	"windows-1253": charmap.Windows1253,
	"windows-1254": charmap.Windows1254,
	"gbk":          simplifiedchinese.GBK,
	"gb18030":      simplifiedchinese.GB18030,
	"big5":         traditionalchinese.Big5,
	"euc-jp":       japanese.EUCJP,
	"shift_jis":    japanese.ShiftJIS,
	"euc-kr":       korean.EUCKR,
	"utf-16":       unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
}

// reencodeToUTF8 re-encodes message bytes declared under the named
// legacy encoding into canonical UTF-8, substituting the Unicode
// replacement character for bytes that don't decode cleanly
// (golang.org/x/text decoders do this by default).
func reencodeToUTF8(raw []byte, encodingName string) ([]byte, error) {
	enc, ok := legacyEncodings[strings.ToLower(encodingName)]
	if !ok {
		return raw, errUnknownEncoding
	}
	dec := enc.NewDecoder()
	out, err := io.ReadAll(dec.Reader(strings.NewReader(string(raw))))
	if err != nil {
		return raw, err
	}
	return out, nil
}

var errUnknownEncoding = &unknownEncodingError{}

type unknownEncodingError struct{}

func (*unknownEncodingError) Error() string { return "gateway: unknown commit encoding" }
