package mailtext

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/japanese"
)

func TestFold(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"利用金額：１，２３４円", "利用金額:1,234円"},
		{"利用日：２０２６／０２／２５　１０：３０", "利用日:2026/02/25 10:30"},
		{"ｲｵﾝ", "イオン"},
		{"ｾﾌﾞﾝ-ｲﾚﾌﾞﾝ", "セブン-イレブン"},
		{"ﾊﾟﾙｺ", "パルコ"},
		{"plain ascii 123", "plain ascii 123"},
	}
	for _, tc := range tests {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeCharset(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().String("ご利用金額：3,500円")
	if err != nil {
		t.Fatal(err)
	}
	jis, err := japanese.ISO2022JP.NewEncoder().String("ご利用先：イオン")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		charset string
		in      []byte
		want    string
	}{
		{"utf-8", "UTF-8", []byte("利用金額"), "利用金額"},
		{"empty charset", "", []byte("abc"), "abc"},
		{"shift_jis", "Shift_JIS", []byte(sjis), "ご利用金額：3,500円"},
		{"iso-2022-jp", "ISO-2022-JP", []byte(jis), "ご利用先：イオン"},
		{"unknown charset passes through", "x-unknown", []byte("abc"), "abc"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecodeCharset(tc.charset, tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeHeader(t *testing.T) {
	jis, _ := japanese.ISO2022JP.NewEncoder().String("【JCB】カードご利用のお知らせ")
	encoded := "=?ISO-2022-JP?B?" + base64.StdEncoding.EncodeToString([]byte(jis)) + "?="

	tests := []struct {
		in, want string
	}{
		{encoded, "【JCB】カードご利用のお知らせ"},
		{"=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte("楽天カード")) + "?=", "楽天カード"},
		{"plain subject", "plain subject"},
	}
	for _, tc := range tests {
		if got := DecodeHeader(tc.in); got != tc.want {
			t.Errorf("DecodeHeader(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "table layout",
			in:   "<table><tr><td>ご利用金額：</td><td>3,500円</td></tr><tr><td>ご利用先：</td><td>セブン</td></tr></table>",
			want: "ご利用金額： 3,500円\n\nご利用先： セブン",
		},
		{
			name: "entities and breaks",
			in:   "<p>利用日：2026/02/25&nbsp;10:30<br>金額&#65306;1,000円</p>",
			want: "利用日：2026/02/25 10:30\n金額：1,000円",
		},
		{
			name: "script dropped",
			in:   "<html><head><style>p{color:red}</style><script>var x=1;</script></head><body>本文</body></html>",
			want: "本文",
		},
		{
			name: "unclosed markup",
			in:   "<div><p>利用金額: 1,234円<span",
			want: "利用金額: 1,234円",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTMLToText(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"三井住友カード <statement@contact.vpass.ne.jp>", "statement@contact.vpass.ne.jp"},
		{"info@qa.jcb.co.jp", "info@qa.jcb.co.jp"},
		{"not an address", "not an address"},
	}
	for _, tc := range tests {
		if got := SenderAddress(tc.in); got != tc.want {
			t.Errorf("SenderAddress(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReadMessage(t *testing.T) {
	jisBody, _ := japanese.ISO2022JP.NewEncoder().String("ご利用金額：3,500円\r\n")
	raw := strings.Join([]string{
		"From: JCB <mail@qa.jcb.co.jp>",
		"Subject: =?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte("JCBカードご利用のお知らせ")) + "?=",
		"Message-Id: <abc123@qa.jcb.co.jp>",
		"Date: Wed, 25 Feb 2026 10:30:00 +0900",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=UTF-8",
		"",
		"<p>html version</p>",
		"--b1",
		"Content-Type: text/plain; charset=ISO-2022-JP",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte(jisBody)),
		"--b1--",
		"",
	}, "\r\n")

	p, err := ReadMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if p.MessageID != "abc123@qa.jcb.co.jp" {
		t.Errorf("message id: got %q", p.MessageID)
	}
	if p.Subject != "JCBカードご利用のお知らせ" {
		t.Errorf("subject: got %q", p.Subject)
	}
	if p.From != "mail@qa.jcb.co.jp" {
		t.Errorf("from: got %q", p.From)
	}
	if want := time.Date(2026, 2, 25, 1, 30, 0, 0, time.UTC); !p.Date.Equal(want) {
		t.Errorf("date: got %v, want %v", p.Date, want)
	}
	if !strings.Contains(p.Body, "ご利用金額：3,500円") {
		t.Errorf("body should prefer text/plain: got %q", p.Body)
	}
}

func TestReadMessageHTMLOnly(t *testing.T) {
	raw := "From: a@b.example\r\nSubject: s\r\nContent-Type: text/html; charset=UTF-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
		"<p>=E9=87=91=E9=A1=8D: 1,000=E5=86=86</p>\r\n"

	p, err := ReadMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if p.Body != "金額: 1,000円" {
		t.Errorf("body: got %q", p.Body)
	}
}
