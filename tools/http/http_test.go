package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetchBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>Hello from test server</p></body></html>"))
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, err := tool.Execute(context.Background(), "web_fetch", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text == "" {
		t.Error("expected content")
	}
}

func TestHTTPFetch404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, _ := tool.Execute(context.Background(), "web_fetch", args)
	if !result.IsError {
		t.Error("expected error for 404")
	}
}

func TestHTTPFetchTruncation(t *testing.T) {
	bigContent := make([]byte, maxResultChars+10_000)
	for i := range bigContent {
		bigContent[i] = 'A'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bigContent)
	}))
	defer srv.Close()

	tool := New()
	args, _ := json.Marshal(map[string]string{"url": srv.URL})
	result, _ := tool.Execute(context.Background(), "web_fetch", args)
	if len(result.Text) > maxResultChars+100 {
		t.Errorf("content not truncated: %d", len(result.Text))
	}
}

func TestHTTPFetchDefinitions(t *testing.T) {
	tool := New()
	defs := tool.Definitions()
	if len(defs) != 1 || defs[0].Name != "web_fetch" {
		t.Fatalf("expected single web_fetch definition, got %+v", defs)
	}
}
