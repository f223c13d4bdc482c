package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEscapeMarkdownV2(t *testing.T) {
	in := "Bolt (161) [Alpha] - R$ 4.50!"
	want := `Bolt \(161\) \[Alpha\] \- R$ 4\.50\!`
	if got := EscapeMarkdownV2(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := EscapeMarkdownV2(`a_b*c\d`); got != `a\_b\*c\\d` {
		t.Fatalf("got %q", got)
	}
}

func TestTelegramSend(t *testing.T) {
	var got sendMessageRequest
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer ts.Close()

	tg := NewTelegramAt(ts.URL, "123:abc", -1001)
	if err := tg.Send(context.Background(), "Bolt dropped to 4.50"); err != nil {
		t.Fatal(err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if got.ChatID != -1001 || got.ParseMode != "MarkdownV2" {
		t.Fatalf("request: %+v", got)
	}
	if !strings.HasPrefix(got.Text, `Price drop alert\!`) || !strings.Contains(got.Text, `4\.50`) {
		t.Fatalf("text: %q", got.Text)
	}
	if tg.PayloadSize("Bolt dropped to 4.50") != len(got.Text) {
		t.Fatalf("payload size %d != sent %d", tg.PayloadSize("Bolt dropped to 4.50"), len(got.Text))
	}
}

func TestTelegramSendFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: can't parse entities"}`))
	}))
	defer ts.Close()

	err := NewTelegramAt(ts.URL, "t", 1).Send(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "can't parse entities") {
		t.Fatalf("err = %v", err)
	}
}
