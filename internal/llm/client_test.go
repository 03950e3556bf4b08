package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatSendsJSONModeWhenSupported(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	out, err := c.Chat(context.Background(), "gpt-4o", []Message{{Role: "user", Content: "hi"}}, ChatOptions{
		Temperature: 0.3,
		MaxTokens:   1000,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", out)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Fatalf("response_format not sent: %+v", captured.ResponseFormat)
	}
	if captured.Temperature != 0.3 || captured.MaxTokens != 1000 {
		t.Fatalf("options not forwarded: %+v", captured)
	}
}

func TestChatOmitsJSONModeForRouter(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithoutNativeJSONMode())
	if _, err := c.Chat(context.Background(), "m", nil, ChatOptions{JSONMode: true}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if captured.ResponseFormat != nil {
		t.Fatalf("router client must not send response_format")
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	if _, err := c.Chat(context.Background(), "m", nil, ChatOptions{}); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 3 {
			t.Errorf("dimensions = %d, want 3", req.Dimensions)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithEmbeddingModel("text-embedding-3-small", 3))
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithEmbeddingModel("m", 3))
	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"bare", `{"a":1}`, true},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```", true},
		{"plain fence", "```\n{\"a\": 1}\n```", true},
		{"embedded", `The answer is {"a":1} as requested.`, true},
		{"prose only", "no json here", false},
		{"empty", "", false},
		{"broken", "```json\n{\"a\": \n```", false},
	}
	for _, c := range cases {
		got, err := ExtractJSONObject(c.in)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
			continue
		}
		if !c.ok {
			if err == nil {
				t.Errorf("%s: expected error, got %s", c.name, got)
			}
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(got, &decoded); err != nil {
			t.Errorf("%s: extracted invalid JSON: %v", c.name, err)
		}
	}
}
