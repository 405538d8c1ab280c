package parser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/mailtext"
)

// ExtractDateTime returns the transaction time, at minute precision, in the
// parser's location. A calendar-invalid match from an issuer pattern fails
// immediately; the generic patterns move on to the next pattern instead.
// Times later than the processing time are returned and reported.
func (p *Parser) ExtractDateTime(body, name string) (time.Time, bool) {
	return p.dateTime(mailtext.Fold(body), name)
}

func (p *Parser) dateTime(text, name string) (time.Time, bool) {
	if prof := p.profile(name); prof != nil {
		for _, re := range prof.DateTime {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			t, ok := p.calendarTime(m[1:], name)
			if !ok {
				return time.Time{}, false
			}
			p.checkFuture(t, name)
			return t, true
		}
	}

	for _, re := range p.table.Fallback().DateTime {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		t, ok := p.calendarTime(m[1:], name)
		if !ok {
			continue
		}
		p.observe(diag.FallbackPattern, name, "datetime", m[0])
		p.checkFuture(t, name)
		return t, true
	}
	return time.Time{}, false
}

// calendarTime builds a time from year, month, day and optional hour and
// minute groups, rejecting combinations that time.Date would normalize.
func (p *Parser) calendarTime(groups []string, name string) (time.Time, bool) {
	n := make([]int, 5)
	for i, g := range groups {
		v, err := strconv.Atoi(g)
		if err != nil {
			p.observe(diag.InvalidDate, name, "datetime", fmt.Sprint(groups))
			return time.Time{}, false
		}
		n[i] = v
	}
	year, month, day, hour, minute := n[0], n[1], n[2], n[3], n[4]

	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		p.observe(diag.InvalidDate, name, "datetime", fmt.Sprint(groups))
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, p.loc)
	if t.Day() != day || t.Month() != time.Month(month) {
		p.observe(diag.InvalidDate, name, "datetime", fmt.Sprint(groups))
		return time.Time{}, false
	}
	return t, true
}

func (p *Parser) checkFuture(t time.Time, name string) {
	if now := p.now(); t.After(now) {
		p.observe(diag.FutureTimestamp, name, "datetime",
			fmt.Sprintf("%s is after %s", t.Format(time.RFC3339), now.Format(time.RFC3339)))
	}
}
