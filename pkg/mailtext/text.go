// Package mailtext turns raw notification mail into plain text the parser can match:
// MIME decoding, legacy Japanese charsets, HTML flattening and width folding.
package mailtext

import (
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Fold maps fullwidth ASCII variants (digits, colons, commas, yen sign) to
// their narrow forms and halfwidth katakana to fullwidth, so that
// "利用金額：１，２３４円" reads as "利用金額:1,234円". Ideographic spaces
// become ASCII spaces. Halfwidth voiced marks are composed with the preceding
// kana, so "ｾﾌﾞﾝ" reads as "セブン".
func Fold(s string) string {
	return strings.ReplaceAll(norm.NFC.String(width.Fold.String(s)), "\u3000", " ")
}

// DecodeCharset converts b from the named charset to UTF-8. Unknown charsets
// and undecodable input are returned unchanged; callers treat garbled text
// as an ordinary extraction failure.
func DecodeCharset(charset string, b []byte) string {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
		return string(b)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// CharsetReader is a mime.WordDecoder charset hook covering the WHATWG
// encodings, including ISO-2022-JP and Shift_JIS.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: CharsetReader}

// DecodeHeader decodes RFC 2047 encoded-words in a header value. Values that
// fail to decode are returned as-is.
func DecodeHeader(s string) string {
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}
