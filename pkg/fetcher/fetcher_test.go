package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetHtmlBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("User-Agent"); got != UserAgent {
			t.Errorf("User-Agent = %q, want %q", got, UserAgent)
		}
		_, _ = w.Write([]byte("<p>hello</p>"))
	}))
	defer srv.Close()

	f := NewFetcher()
	body, err := f.GetHtmlBytes(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("GetHtmlBytes() error = %v", err)
	}
	if string(body) != "<p>hello</p>" {
		t.Errorf("GetHtmlBytes() = %q", body)
	}

	if _, err := f.GetHtmlBytes(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("GetHtmlBytes() expected error for 404")
	}
}
