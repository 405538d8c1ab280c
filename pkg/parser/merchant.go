package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/mailtext"
)

// labelLine matches a line that starts a new "label: value" field.
var labelLine = regexp.MustCompile(`^[^\s:]{1,20}:`)

// ExtractMerchant returns the merchant name following a merchant label: the
// rest of the label line, or the next non-empty line when the label stands
// alone. Control characters are removed, and names longer than
// MaxMerchantRunes are truncated and reported.
func (p *Parser) ExtractMerchant(body, name string) (string, bool) {
	return p.merchant(mailtext.Fold(body), name)
}

func (p *Parser) merchant(text, name string) (string, bool) {
	var own []*regexp.Regexp
	if prof := p.profile(name); prof != nil {
		own = prof.Merchant
	}
	for _, re := range own {
		if s, ok := p.matchMerchant(re, text, name); ok {
			return s, true
		}
	}
	for _, re := range p.table.Fallback().Merchant {
		if s, ok := p.matchMerchant(re, text, name); ok {
			// Only notable when the issuer has merchant rules of its own.
			if len(own) > 0 {
				p.observe(diag.FallbackPattern, name, "merchant", re.String())
			}
			return s, true
		}
	}
	return "", false
}

// matchMerchant takes the value from the pattern's first group when it has
// one, otherwise from the text following the label.
func (p *Parser) matchMerchant(re *regexp.Regexp, text, name string) (string, bool) {
	var raw string
	if re.NumSubexp() > 0 {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		raw = m[1]
	} else {
		loc := re.FindStringIndex(text)
		if loc == nil {
			return "", false
		}
		raw = labelValue(text[loc[1]:])
	}
	return p.cleanMerchant(raw, name)
}

func labelValue(rest string) string {
	first, rest, _ := strings.Cut(rest, "\n")
	if v := strings.TrimSpace(first); v != "" {
		return v
	}
	for rest != "" {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if labelLine.MatchString(line) {
			return ""
		}
		return line
	}
	return ""
}

func (p *Parser) cleanMerchant(raw, name string) (string, bool) {
	s := strings.ToValidUTF8(raw, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if n := utf8.RuneCountInString(s); n > MaxMerchantRunes {
		s = string([]rune(s)[:MaxMerchantRunes])
		p.observe(diag.MerchantTruncated, name, "merchant", strconv.Itoa(n)+" runes")
	}
	return s, true
}
