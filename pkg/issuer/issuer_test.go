package issuer

import (
	"slices"
	"strings"
	"testing"
)

func TestIsTrusted(t *testing.T) {
	table := Default()

	tests := []struct {
		name   string
		sender string
		issuer string
		want   bool
	}{
		{"smbc exact domain", "statement@contact.vpass.ne.jp", "SMBC", true},
		{"smbc parent domain", "info@vpass.ne.jp", "SMBC", true},
		{"jcb", "mail@qa.jcb.co.jp", "JCB", true},
		{"rakuten", "info@mail.rakuten-card.co.jp", "Rakuten", true},
		{"amex", "noreply@email.americanexpress.com", "AMEX", true},
		{"dcard", "info@dcard.docomo.ne.jp", "DCard", true},
		{"superstring attack", "x@vpass.ne.jp.attacker.com", "SMBC", false},
		{"subdomain not whitelisted", "x@evil.qa.jcb.co.jp", "JCB", false},
		{"prefix attack", "x@fakevpass.ne.jp", "SMBC", false},
		{"wrong issuer", "statement@contact.vpass.ne.jp", "JCB", false},
		{"no at sign", "contact.vpass.ne.jp", "SMBC", false},
		{"empty sender", "", "SMBC", false},
		{"unknown issuer", "a@vpass.ne.jp", "Orico", false},
		{"saison always untrusted", "info@saison-card.co.jp", "Saison", false},
		{"saison with another issuer domain", "a@contact.vpass.ne.jp", "Saison", false},
		{"second at sign", "a@b@vpass.ne.jp", "SMBC", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := table.IsTrusted(tc.sender, tc.issuer); got != tc.want {
				t.Errorf("IsTrusted(%q, %q): got %v, want %v", tc.sender, tc.issuer, got, tc.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	table := Default()

	tests := []struct {
		subject string
		want    Name
		ok      bool
	}{
		{"【三井住友カード】ご利用のお知らせ", SMBC, true},
		{"JCBカード ご利用のお知らせ", JCB, true},
		{"楽天カードご利用のお知らせ", Rakuten, true},
		{"American Express ご利用通知", AMEX, true},
		{"アメックス カードご利用", AMEX, true},
		{"dカード ご利用のお知らせ", DCard, true},
		{"セゾンカード 重要なお知らせ", Saison, true},
		{"楽天カードとJCBの提携のお知らせ", JCB, true},
		{"三井住友カードとAMEX", SMBC, true},
		{"週末セールのお知らせ", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.subject, func(t *testing.T) {
			got, ok := table.Detect(tc.subject)
			if ok != tc.ok || got != tc.want {
				t.Errorf("Detect(%q): got (%q, %v), want (%q, %v)", tc.subject, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	table := Default()
	subject := "楽天カード JCB ブランドのご利用"
	first, _ := table.Detect(subject)
	for range 100 {
		if got, _ := table.Detect(subject); got != first {
			t.Fatalf("Detect changed result: got %q, want %q", got, first)
		}
	}
	if got := table.Matches(subject); !slices.Equal(got, []Name{JCB, Rakuten}) {
		t.Errorf("Matches: got %v, want [JCB Rakuten]", got)
	}
}

func TestDefaultTable(t *testing.T) {
	table := Default()

	want := []Name{SMBC, JCB, Rakuten, AMEX, DCard, Saison}
	if got := table.Priority(); !slices.Equal(got, want) {
		t.Errorf("priority: got %v, want %v", got, want)
	}

	for _, name := range want {
		p, ok := table.Profile(name)
		if !ok {
			t.Fatalf("profile %q missing", name)
		}
		if len(p.Keywords) == 0 {
			t.Errorf("%s: no keywords", name)
		}
		if !p.Untrusted && len(p.Domains) == 0 {
			t.Errorf("%s: no domains", name)
		}
	}

	if fb := table.Fallback(); len(fb.Amount) == 0 || len(fb.DateTime) == 0 || len(fb.Merchant) == 0 {
		t.Errorf("fallback rules incomplete: %+v", fb)
	}

	// Priority returns a copy.
	p := table.Priority()
	p[0] = "Mutated"
	if table.Priority()[0] != SMBC {
		t.Error("Priority exposed internal slice")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{
			name: "valid with priority override",
			json: `{"priority":["B","A"],"issuers":[
				{"name":"A","domains":["a.example"],"keywords":["A"]},
				{"name":"B","domains":["b.example"],"keywords":["B"]}]}`,
		},
		{
			name:    "missing domains",
			json:    `{"issuers":[{"name":"A","keywords":["A"]}]}`,
			wantErr: "no trusted domains",
		},
		{
			name:    "missing keywords",
			json:    `{"issuers":[{"name":"A","domains":["a.example"]}]}`,
			wantErr: "no subject keywords",
		},
		{
			name:    "duplicate issuer",
			json:    `{"issuers":[{"name":"A","domains":["a"],"keywords":["A"]},{"name":"A","domains":["a"],"keywords":["A"]}]}`,
			wantErr: "defined twice",
		},
		{
			name:    "bad regexp",
			json:    `{"issuers":[{"name":"A","domains":["a"],"keywords":["A"],"amount":["("]}]}`,
			wantErr: "compiling amount pattern",
		},
		{
			name:    "amount pattern without group",
			json:    `{"issuers":[{"name":"A","domains":["a"],"keywords":["A"],"amount":["金額"]}]}`,
			wantErr: "capture groups",
		},
		{
			name:    "datetime pattern with wrong group count",
			json:    `{"issuers":[{"name":"A","domains":["a"],"keywords":["A"],"datetime":["(\\d{4})/(\\d{2})"]}]}`,
			wantErr: "capture groups",
		},
		{
			name:    "unknown issuer in priority",
			json:    `{"priority":["Z"],"issuers":[{"name":"A","domains":["a"],"keywords":["A"]}]}`,
			wantErr: "unknown or repeated",
		},
		{
			name:    "untrusted without domains is fine",
			json:    `{"issuers":[{"name":"A","untrusted":true,"keywords":["A"]}]}`,
			wantErr: "",
		},
		{
			name:    "malformed json",
			json:    `{`,
			wantErr: "parsing issuer rules",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			table, err := Parse([]byte(tc.json))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if table == nil {
					t.Fatal("nil table")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error: got %v, want containing %q", err, tc.wantErr)
			}
		})
	}

	table, err := Parse([]byte(`{"priority":["B","A"],"issuers":[
		{"name":"A","domains":["a.example"],"keywords":["X"]},
		{"name":"B","domains":["b.example"],"keywords":["X"]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := table.Detect("X"); got != "B" {
		t.Errorf("priority override: got %q, want B", got)
	}
}

func TestDomains(t *testing.T) {
	domains := Default().Domains()
	for _, d := range []string{"contact.vpass.ne.jp", "qa.jcb.co.jp", "dcard.docomo.ne.jp"} {
		if !slices.Contains(domains, d) {
			t.Errorf("Domains() missing %q", d)
		}
	}
}

func TestProfileIsACopy(t *testing.T) {
	table := Default()

	p, ok := table.Profile(SMBC)
	if !ok {
		t.Fatal("SMBC profile missing")
	}
	p.Domains[0] = "attacker.example"
	p.Keywords = append(p.Keywords[:0], "偽")
	p.Amount[0] = nil
	p.Untrusted = true

	if !table.IsTrusted("info@contact.vpass.ne.jp", string(SMBC)) {
		t.Error("changing a returned profile altered trust verification")
	}
	if table.IsTrusted("info@attacker.example", string(SMBC)) {
		t.Error("changing a returned domain made it trusted")
	}
	if name, ok := table.Detect("三井住友カード ご利用のお知らせ"); !ok || name != SMBC {
		t.Errorf("detect: got (%q, %v), want (%q, true)", name, ok, SMBC)
	}
	if again, _ := table.Profile(SMBC); again.Amount[0] == nil {
		t.Error("changing a returned pattern slice altered the table")
	}

	fb := table.Fallback()
	fb.Merchant[0] = nil
	if table.Fallback().Merchant[0] == nil {
		t.Error("changing the returned fallback rules altered the table")
	}
}
