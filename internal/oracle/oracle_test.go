package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/collabgrid/collabgrid/internal/config"
)

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestChatBackendCall(t *testing.T) {
	srv := chatServer(t, "hello there", http.StatusOK)
	defer srv.Close()

	b := NewChatBackend(config.BackendConfig{Name: "test", APIBase: srv.URL + "/v1", Model: "test-model"})
	resp, err := b.Call(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if resp.Text != "hello there" {
		t.Errorf("text = %q", resp.Text)
	}
	if want := EstimateTokens("hi", "hello there"); resp.TokenEstimate != want {
		t.Errorf("token estimate = %d, want %d", resp.TokenEstimate, want)
	}
}

func TestChatBackendAPIError(t *testing.T) {
	srv := chatServer(t, "", http.StatusBadGateway)
	defer srv.Close()

	b := NewChatBackend(config.BackendConfig{Name: "test", APIBase: srv.URL + "/v1"})
	if _, err := b.Call(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestChatBackendEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	b := NewChatBackend(config.BackendConfig{Name: "test", APIBase: srv.URL})
	if _, err := b.Call(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		prompt, response string
		want             int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"abcd", "", 1},
		{"abcd", "e", 2},
		{"12345678", "12345678", 4},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.prompt, c.response); got != c.want {
			t.Errorf("EstimateTokens(%q, %q) = %d, want %d", c.prompt, c.response, got, c.want)
		}
	}
}

type staticOracle struct{ name string }

func (s staticOracle) Call(context.Context, string) (*Response, error) { return &Response{}, nil }
func (s staticOracle) Name() string                                    { return s.name }

func TestRouterIsDeterministic(t *testing.T) {
	pool := []Oracle{staticOracle{"b0"}, staticOracle{"b1"}, staticOracle{"b2"}}
	r := NewRouter(staticOracle{"coord"}, pool)

	agents := []string{"Agent[0.5, 0.5]", "Agent[0.5, 1.5]", "Agent[1.5, 0.5]", "Agent[1.5, 1.5]"}
	first := make(map[string]string)
	for _, a := range agents {
		first[a] = r.Route(a).Name()
	}
	for i := 0; i < 10; i++ {
		for _, a := range agents {
			if got := r.Route(a).Name(); got != first[a] {
				t.Fatalf("routing for %s changed: %s -> %s", a, first[a], got)
			}
		}
	}
	if r.Coordinator().Name() != "coord" {
		t.Errorf("coordinator = %s", r.Coordinator().Name())
	}
}

func TestProbeBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			w.Write([]byte(`{"data": []}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := ProbeBackend(context.Background(), config.BackendConfig{Name: "up", APIBase: srv.URL + "/v1"})
	if !res.Connected {
		t.Errorf("backend reported disconnected: %s", res.Error)
	}

	res = ProbeBackend(context.Background(), config.BackendConfig{Name: "down", APIBase: "http://127.0.0.1:1/v1"})
	if res.Connected {
		t.Error("unreachable backend reported connected")
	}
	if res.Error == "" {
		t.Error("unreachable backend carries no error message")
	}

	res = ProbeBackend(context.Background(), config.BackendConfig{Name: "unset"})
	if res.Connected || res.Error == "" {
		t.Errorf("unconfigured backend: %+v", res)
	}
}
