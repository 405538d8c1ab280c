package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/encoding/japanese"
	"google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/cardtracker/pkg/api"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBody(t *testing.T) {
	jis, err := japanese.ISO2022JP.NewEncoder().String("ご利用金額：3,500円")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
	}{
		{
			name: "plain preferred over html",
			payload: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>html</p>")}},
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain body")}},
				},
			},
			want: "plain body",
		},
		{
			name: "html flattened when alone",
			payload: &gmail.MessagePart{
				MimeType: "text/html",
				Body:     &gmail.MessagePartBody{Data: encode("<div>利用金額: 1,234円</div>")},
			},
			want: "利用金額: 1,234円",
		},
		{
			name: "legacy charset",
			payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Headers:  []*gmail.MessagePartHeader{{Name: "Content-Type", Value: `text/plain; charset="ISO-2022-JP"`}},
				Body:     &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte(jis))},
			},
			want: "ご利用金額：3,500円",
		},
		{
			name: "nested multipart",
			payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("nested")}},
					}},
					{MimeType: "application/pdf", Body: &gmail.MessagePartBody{Data: encode("%PDF")}},
				},
			},
			want: "nested",
		},
		{
			name:    "invalid base64",
			payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "***"}},
			want:    "",
		},
		{
			name:    "nil payload",
			payload: nil,
			want:    "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := toMessage(&gmail.Message{Id: "x", Payload: tc.payload}).Body
			if got != tc.want {
				t.Errorf("body: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestToMessageHeaders(t *testing.T) {
	msg := toMessage(&gmail.Message{
		Id:           "abc",
		InternalDate: 1772000000000,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "subject", Value: "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte("楽天カード")) + "?="},
				{Name: "From", Value: "楽天カード <info@mail.rakuten-card.co.jp>"},
			},
			Body: &gmail.MessagePartBody{Data: encode("body")},
		},
	})

	if msg.ID != "abc" {
		t.Errorf("id: got %q", msg.ID)
	}
	if msg.Subject != "楽天カード" {
		t.Errorf("subject: got %q", msg.Subject)
	}
	if msg.From != "info@mail.rakuten-card.co.jp" {
		t.Errorf("from: got %q", msg.From)
	}
	if !msg.ReceivedAt.Equal(time.UnixMilli(1772000000000)) {
		t.Errorf("received at: got %v", msg.ReceivedAt)
	}
}

func TestBuildQuery(t *testing.T) {
	got := BuildQuery([]string{"qa.jcb.co.jp", "dcard.docomo.ne.jp"})
	want := "is:unread from:(@qa.jcb.co.jp OR @dcard.docomo.ne.jp)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// fakeGmail serves the subset of the Gmail API the reader uses.
type fakeGmail struct {
	mu       sync.Mutex
	failures map[string]int
	modified []string
	queries  []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/gmail/v1/users/me/messages"
	path := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case path == "" || path == "/":
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"messages":      []map[string]string{{"id": "m1"}, {"id": "m2"}},
				"nextPageToken": "page2",
			})
			return
		}
		writeJSON(w, map[string]any{"messages": []map[string]string{{"id": "m3"}}})

	case strings.HasSuffix(path, "/modify"):
		f.modified = append(f.modified, strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/modify"))
		writeJSON(w, map[string]any{"id": "ok"})

	default:
		id := strings.TrimPrefix(path, "/")
		if f.failures[id] > 0 {
			f.failures[id]--
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, map[string]any{"error": map[string]any{"code": 503, "message": "backend error"}})
			return
		}
		if id == "m3" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": map[string]any{"code": 404, "message": "not found"}})
			return
		}
		writeJSON(w, map[string]any{
			"id":           id,
			"internalDate": "1772000000000",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"headers": []map[string]string{
					{"name": "Subject", "value": "JCBカードご利用のお知らせ"},
					{"name": "From", "value": "JCB <mail@qa.jcb.co.jp>"},
				},
				"body": map[string]string{"data": encode("ご利用金額：3,500円 " + id)},
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestRead(t *testing.T) {
	fake := &fakeGmail{failures: map[string]int{"m2": 1}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	r, err := New(srv.Client(), Config{Query: "is:unread", MarkRead: true, Endpoint: srv.URL + "/"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.retryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := make(chan *api.Message, 10)
	acks := make(chan string, 10)
	done := make(chan error, 1)
	go func() { done <- r.Read(ctx, out, acks) }()

	var got []string
	for msg := range out {
		got = append(got, msg.ID)
		if msg.From != "mail@qa.jcb.co.jp" || !strings.Contains(msg.Body, "3,500円") {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.ID == "m1" {
			acks <- msg.ID
		}
	}
	close(acks)

	if err := <-done; err != nil {
		t.Fatalf("Read: %v", err)
	}

	// m2 succeeds after one retry; m3 is not found and skipped.
	if !slices.Equal(got, []string{"m1", "m2"}) {
		t.Errorf("messages: got %v, want [m1 m2]", got)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !slices.Equal(fake.modified, []string{"m1"}) {
		t.Errorf("marked read: got %v, want [m1]", fake.modified)
	}
	if len(fake.queries) != 2 || fake.queries[0] != "is:unread" {
		t.Errorf("list calls: got %v, want two pages of is:unread", fake.queries)
	}
}

func TestNewRequiresQuery(t *testing.T) {
	if _, err := New(http.DefaultClient, Config{}, nil); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestRetryable(t *testing.T) {
	if retryable(context.Canceled) {
		t.Error("context errors must not be retried")
	}
}
