// Package issuer holds the card issuer rule table: trusted sender domains,
// subject keywords and the extraction patterns used by the parser.
package issuer

import (
	"regexp"
	"slices"
	"strings"
)

// Name identifies a card issuer.
type Name string

// Known issuers, in default detection priority order.
const (
	SMBC    Name = "SMBC"
	JCB     Name = "JCB"
	Rakuten Name = "Rakuten"
	AMEX    Name = "AMEX"
	DCard   Name = "DCard"
	// Saison has no genuine email channel; mail claiming to be from it is never trusted.
	Saison Name = "Saison"
)

// Profile is the rule descriptor for a single issuer. Profiles are shared by
// every caller of a Table and must be treated as read-only.
type Profile struct {
	Name        Name
	DisplayName string
	Domains     []string
	Keywords    []string
	// Untrusted marks a pseudo-issuer that always fails trust verification.
	Untrusted bool

	Amount   []*regexp.Regexp
	DateTime []*regexp.Regexp
	Merchant []*regexp.Regexp
	Refund   []*regexp.Regexp
}

// Rules is the generic, issuer-agnostic rule set tried when an issuer's own
// patterns are absent or did not match.
type Rules struct {
	Amount   []*regexp.Regexp
	DateTime []*regexp.Regexp
	Merchant []*regexp.Regexp
}

// Table is an immutable issuer rule table. It is safe for concurrent use.
type Table struct {
	profiles map[Name]*Profile
	priority []Name
	fallback Rules
}

// Profile returns a copy of the profile registered under name. Changing the
// copy does not affect the table.
func (t *Table) Profile(name Name) (*Profile, bool) {
	p, ok := t.profiles[name]
	if !ok {
		return nil, false
	}
	c := *p
	c.Domains = slices.Clone(p.Domains)
	c.Keywords = slices.Clone(p.Keywords)
	c.Amount = slices.Clone(p.Amount)
	c.DateTime = slices.Clone(p.DateTime)
	c.Merchant = slices.Clone(p.Merchant)
	c.Refund = slices.Clone(p.Refund)
	return &c, true
}

// Priority returns the detection order.
func (t *Table) Priority() []Name {
	return slices.Clone(t.priority)
}

// Fallback returns a copy of the generic rule set.
func (t *Table) Fallback() Rules {
	return Rules{
		Amount:   slices.Clone(t.fallback.Amount),
		DateTime: slices.Clone(t.fallback.DateTime),
		Merchant: slices.Clone(t.fallback.Merchant),
	}
}

// Domains returns every trusted sender domain across all issuers, in priority order.
func (t *Table) Domains() []string {
	var out []string
	for _, name := range t.priority {
		for _, d := range t.profiles[name].Domains {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

// IsTrusted reports whether sender is a genuine address of the named issuer.
// The part after the first "@" must equal one of the issuer's domains exactly;
// subdomains and superstrings such as "vpass.ne.jp.attacker.com" do not match.
func (t *Table) IsTrusted(sender string, name string) bool {
	p, ok := t.profiles[Name(name)]
	if !ok || p.Untrusted || len(p.Domains) == 0 {
		return false
	}
	_, domain, found := strings.Cut(sender, "@")
	if !found {
		return false
	}
	return slices.Contains(p.Domains, domain)
}

// Detect returns the first issuer, in priority order, with a keyword
// contained in subject.
func (t *Table) Detect(subject string) (Name, bool) {
	for _, name := range t.priority {
		if t.profiles[name].matches(subject) {
			return name, true
		}
	}
	return "", false
}

// Matches returns every issuer with a keyword contained in subject, in
// priority order. More than one result means the subject is ambiguous and
// Detect resolved it by priority.
func (t *Table) Matches(subject string) []Name {
	var out []Name
	for _, name := range t.priority {
		if t.profiles[name].matches(subject) {
			out = append(out, name)
		}
	}
	return out
}

func (p *Profile) matches(subject string) bool {
	for _, kw := range p.Keywords {
		if strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}
