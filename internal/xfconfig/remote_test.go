package xfconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchArchetypeRejectsNonHTTPSConfigServer(t *testing.T) {
	c := NewRemoteClient(nil)
	_, err := c.FetchArchetype(context.Background(), "http://insecure.example.com", "node-fullstack", "")
	if err == nil {
		t.Fatal("expected a non-HTTPS config server to be rejected before any request is made")
	}
}

func TestFetchOnceMergesConfigServerAndValidates(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": "node-fullstack",
			"rules": ["some-rule"],
			"config": {"blacklistPatterns": ["node_modules"]}
		}`))
	}))
	defer server.Close()

	c := NewRemoteClient(nil)
	c.HTTPClient = server.Client()

	url := server.URL + "/archetypes/node-fullstack"
	doc, err := c.fetchOnce(context.Background(), url, "xfidelity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Name != "node-fullstack" {
		t.Fatalf("expected name 'node-fullstack', got %q", doc.Name)
	}
	if doc.ConfigServer != server.URL {
		t.Fatalf("expected configServer to be merged in as %q, got %q", server.URL, doc.ConfigServer)
	}
	if doc.Description == "" {
		t.Fatal("expected a description to be merged in")
	}
}

func TestFetchOnceRejectsInvalidArchetypeWithoutRetryableError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "bad name!", "rules": []}`))
	}))
	defer server.Close()

	c := NewRemoteClient(nil)
	c.HTTPClient = server.Client()

	_, err := c.fetchOnce(context.Background(), server.URL+"/archetypes/bad", "")
	if err == nil {
		t.Fatal("expected an invalid archetype document to fail validation")
	}
}

func TestFetchOnceNon200StatusIsAnError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewRemoteClient(nil)
	c.HTTPClient = server.Client()

	if _, err := c.fetchOnce(context.Background(), server.URL+"/archetypes/x", ""); err == nil {
		t.Fatal("expected a non-200 response to be an error")
	}
}

func TestExtractConfigServer(t *testing.T) {
	got := extractConfigServer("https://config.example.com/archetypes/node-fullstack")
	if got != "https://config.example.com" {
		t.Fatalf("expected %q, got %q", "https://config.example.com", got)
	}
}
