package parser

import (
	"strconv"
	"strings"

	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/mailtext"
)

// ExtractAmount returns the transaction amount in whole yen. The issuer's own
// patterns are tried first; when none matches, or the issuer is unknown, the
// generic patterns are tried. A matched value that is not a plain
// non-negative number within MaxAmount yields no amount.
func (p *Parser) ExtractAmount(body, name string) (int64, bool) {
	return p.amount(mailtext.Fold(body), name)
}

func (p *Parser) amount(text, name string) (int64, bool) {
	if prof := p.profile(name); prof != nil {
		for _, re := range prof.Amount {
			if m := re.FindStringSubmatch(text); m != nil {
				return p.validateAmount(m[1], name)
			}
		}
	}
	for _, re := range p.table.Fallback().Amount {
		if m := re.FindStringSubmatch(text); m != nil {
			p.observe(diag.FallbackPattern, name, "amount", m[0])
			return p.validateAmount(m[1], name)
		}
	}
	return 0, false
}

func (p *Parser) validateAmount(raw, name string) (int64, bool) {
	digits := strings.ReplaceAll(raw, ",", "")
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		p.observe(diag.AmountInvalid, name, "amount", raw)
		return 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v > MaxAmount {
		p.observe(diag.AmountOverflow, name, "amount", raw)
		return 0, false
	}
	return v, true
}
