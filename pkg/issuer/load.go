package issuer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sync"
)

//go:embed issuers.json
var defaultRulesJSON []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the built-in rule table. It panics if the embedded rules are invalid.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultRulesJSON)
		if err != nil {
			panic(fmt.Sprintf("loading embedded issuer rules: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Load reads a rule table from a JSON file. An empty path returns Default().
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading issuer rules: %w", err)
	}
	return Parse(data)
}

type rulesFile struct {
	// Priority optionally overrides the order of the issuers list.
	Priority []Name       `json:"priority"`
	Issuers  []profileDef `json:"issuers"`
	Fallback struct {
		Amount   []string `json:"amount"`
		DateTime []string `json:"datetime"`
		Merchant []string `json:"merchant"`
	} `json:"fallback"`
}

type profileDef struct {
	Name        Name     `json:"name"`
	DisplayName string   `json:"displayName"`
	Untrusted   bool     `json:"untrusted"`
	Domains     []string `json:"domains"`
	Keywords    []string `json:"keywords"`
	Amount      []string `json:"amount"`
	DateTime    []string `json:"datetime"`
	Merchant    []string `json:"merchant"`
	Refund      []string `json:"refund"`
}

// Parse builds a Table from its JSON definition, compiling every pattern.
func Parse(data []byte) (*Table, error) {
	var f rulesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing issuer rules: %w", err)
	}

	t := &Table{profiles: make(map[Name]*Profile, len(f.Issuers))}
	for _, def := range f.Issuers {
		p, err := def.compile()
		if err != nil {
			return nil, err
		}
		if _, dup := t.profiles[p.Name]; dup {
			return nil, fmt.Errorf("issuer %q defined twice", p.Name)
		}
		t.profiles[p.Name] = p
		t.priority = append(t.priority, p.Name)
	}

	if len(f.Priority) > 0 {
		if len(f.Priority) != len(t.priority) {
			return nil, fmt.Errorf("priority lists %d issuers, want %d", len(f.Priority), len(t.priority))
		}
		seen := make(map[Name]bool, len(f.Priority))
		for _, name := range f.Priority {
			if _, ok := t.profiles[name]; !ok || seen[name] {
				return nil, fmt.Errorf("priority: unknown or repeated issuer %q", name)
			}
			seen[name] = true
		}
		t.priority = f.Priority
	}

	var err error
	if t.fallback.Amount, err = compileAll("fallback", "amount", f.Fallback.Amount, 1); err != nil {
		return nil, err
	}
	if t.fallback.DateTime, err = compileAll("fallback", "datetime", f.Fallback.DateTime, 3, 5); err != nil {
		return nil, err
	}
	if t.fallback.Merchant, err = compileAll("fallback", "merchant", f.Fallback.Merchant); err != nil {
		return nil, err
	}
	return t, nil
}

func (d profileDef) compile() (*Profile, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("issuer without a name")
	}
	if len(d.Keywords) == 0 {
		return nil, fmt.Errorf("issuer %q: no subject keywords", d.Name)
	}
	if !d.Untrusted && len(d.Domains) == 0 {
		return nil, fmt.Errorf("issuer %q: no trusted domains", d.Name)
	}

	p := &Profile{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Domains:     d.Domains,
		Keywords:    d.Keywords,
		Untrusted:   d.Untrusted,
	}
	if p.DisplayName == "" {
		p.DisplayName = string(d.Name)
	}

	var err error
	owner := string(d.Name)
	if p.Amount, err = compileAll(owner, "amount", d.Amount, 1); err != nil {
		return nil, err
	}
	if p.DateTime, err = compileAll(owner, "datetime", d.DateTime, 3, 5); err != nil {
		return nil, err
	}
	if p.Merchant, err = compileAll(owner, "merchant", d.Merchant); err != nil {
		return nil, err
	}
	if p.Refund, err = compileAll(owner, "refund", d.Refund); err != nil {
		return nil, err
	}
	return p, nil
}

// compileAll compiles patterns and, when groups is non-empty, checks that each
// pattern has one of the allowed numbers of capture groups.
func compileAll(owner, field string, patterns []string, groups ...int) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, src := range patterns {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("issuer %q: compiling %s pattern: %w", owner, field, err)
		}
		if len(groups) > 0 && !slices.Contains(groups, re.NumSubexp()) {
			return nil, fmt.Errorf("issuer %q: %s pattern %q has %d capture groups, want one of %v",
				owner, field, src, re.NumSubexp(), groups)
		}
		out = append(out, re)
	}
	return out, nil
}
