package mailtext

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// maxPartBytes bounds how much of a single MIME part is read.
const maxPartBytes = 1 << 20

// Parsed is an RFC 5322 message reduced to the fields cardtracker uses.
type Parsed struct {
	MessageID string
	Subject   string
	// From is the bare sender address, or the raw header when it does not parse.
	From string
	Date time.Time
	// Body is the text/plain part when present, otherwise the flattened text/html part.
	Body string
}

// ReadMessage parses a raw message, decoding encoded-word headers, transfer
// encodings and charsets.
func ReadMessage(r io.Reader) (Parsed, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return Parsed{}, fmt.Errorf("reading message: %w", err)
	}

	p := Parsed{
		MessageID: strings.Trim(strings.TrimSpace(m.Header.Get("Message-Id")), "<>"),
		Subject:   DecodeHeader(m.Header.Get("Subject")),
		From:      SenderAddress(m.Header.Get("From")),
	}
	if d, err := m.Header.Date(); err == nil {
		p.Date = d
	}

	plain, htmlText, err := partText(textproto.MIMEHeader(m.Header), m.Body)
	if err != nil {
		return p, fmt.Errorf("reading body: %w", err)
	}
	p.Body = plain
	if p.Body == "" {
		p.Body = htmlText
	}
	return p, nil
}

var addressParser = &mail.AddressParser{WordDecoder: wordDecoder}

// SenderAddress extracts the bare address from a From header value such as
// "三井住友カード <statement@contact.vpass.ne.jp>".
func SenderAddress(from string) string {
	addr, err := addressParser.Parse(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// partText returns the decoded text/plain and text/html content found in a
// part, descending into nested multiparts. The first part of each type wins.
func partText(h textproto.MIMEHeader, body io.Reader) (plain, htmlText string, err error) {
	mediaType, params, perr := mime.ParseMediaType(h.Get("Content-Type"))
	if perr != nil {
		mediaType, params = "text/plain", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return plain, htmlText, nil
			}
			if err != nil {
				// A truncated multipart still yields the parts read so far.
				if plain != "" || htmlText != "" {
					return plain, htmlText, nil
				}
				return "", "", err
			}
			p, h, err := partText(part.Header, part)
			if err != nil {
				continue
			}
			if plain == "" {
				plain = p
			}
			if htmlText == "" {
				htmlText = h
			}
		}
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return "", "", nil
	}

	raw, err := io.ReadAll(io.LimitReader(transferDecoder(h, body), maxPartBytes))
	if err != nil && len(raw) == 0 {
		return "", "", err
	}
	text := DecodeCharset(params["charset"], raw)
	if mediaType == "text/html" {
		return "", HTMLToText(text), nil
	}
	return text, "", nil
}

func transferDecoder(h textproto.MIMEHeader, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding"))) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	}
	return body
}
