package askbot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCompletions struct {
	mu      sync.Mutex
	bodies  []string
	status  int
	content string
	empty   bool
}

func (f *fakeCompletions) lastBody() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return ""
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *fakeCompletions) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "boom", "type": "server_error"}})
		return
	}

	choices := []map[string]any{}
	if !f.empty {
		choices = append(choices, map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": f.content},
		})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "test-model",
		"choices": choices,
	})
}

func newTestChatModel(t *testing.T, f *fakeCompletions, cfg ChatModelConfig) *ChatModel {
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL+"/"),
		option.WithMaxRetries(0),
	)
	return NewChatModel(zap.NewNop(), &client, wordCounter{}, cfg)
}

func TestChatModel_Ask(t *testing.T) {
	f := &fakeCompletions{content: "Go is a language."}
	model := newTestChatModel(t, f, ChatModelConfig{Model: "test-model", MaxTokens: 100, ContextWindow: 1000})

	history := []Turn{{Question: "hi", Answer: "hello"}}
	answer, err := model.Ask(context.Background(), "what is Go?", history, "be brief", nil)
	if err != nil {
		t.Fatal(err)
	}
	if answer != "Go is a language." {
		t.Errorf("unexpected answer %q", answer)
	}

	body := f.lastBody()
	if got := gjson.Get(body, "model").String(); got != "test-model" {
		t.Errorf("expected model test-model, got %q", got)
	}
	if got := gjson.Get(body, "max_tokens").Int(); got != 100 {
		t.Errorf("expected max_tokens 100, got %d", got)
	}
	roles := gjson.Get(body, "messages.#.role").Array()
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(roles) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %s", len(wantRoles), body)
	}
	for i, r := range roles {
		if r.String() != wantRoles[i] {
			t.Errorf("message %d: expected role %q, got %q", i, wantRoles[i], r.String())
		}
	}
	if got := gjson.Get(body, "messages.0.content").String(); got != "be brief" {
		t.Errorf("expected system prompt first, got %q", got)
	}
	if got := gjson.Get(body, "messages.3.content").String(); got != "what is Go?" {
		t.Errorf("expected question last, got %q", got)
	}
}

func TestChatModel_AskTruncatesHistory(t *testing.T) {
	f := &fakeCompletions{content: "ok"}
	// 预算为 10 - 4 = 6 个单词
	model := newTestChatModel(t, f, ChatModelConfig{Model: "m", MaxTokens: 4, ContextWindow: 10})

	history := []Turn{
		{Question: "one two three", Answer: "four five six"},
		{Question: "seven", Answer: "eight"},
	}
	if _, err := model.Ask(context.Background(), "nine", history, "be brief", nil); err != nil {
		t.Fatal(err)
	}

	contents := gjson.Get(f.lastBody(), "messages.#.content").Array()
	want := []string{"be brief", "seven", "eight", "nine"}
	if len(contents) != len(want) {
		t.Fatalf("expected %v, got %v", want, contents)
	}
	for i := range want {
		if contents[i].String() != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], contents[i].String())
		}
	}
}

func TestChatModel_OverflowIsLoggedWithTotal(t *testing.T) {
	f := &fakeCompletions{content: "ok"}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	client := openai.NewClient(option.WithAPIKey("k"), option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))

	core, logs := observer.New(zap.WarnLevel)
	// 预算为 5 - 2 = 3 个单词
	model := NewChatModel(zap.New(core), &client, wordCounter{}, ChatModelConfig{Model: "m", MaxTokens: 2, ContextWindow: 5})

	if _, err := model.Ask(context.Background(), "a question far too long to fit", nil, "prompt", nil); err != nil {
		t.Fatal(err)
	}
	if f.calls() != 1 {
		t.Fatalf("expected the request to be sent anyway, got %d calls", f.calls())
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["Total"] != int64(8) || fields["Budget"] != int64(3) {
		t.Errorf("unexpected warning fields %v", fields)
	}
}

func TestChatModel_AskWithImage(t *testing.T) {
	f := &fakeCompletions{content: "a cat"}
	model := newTestChatModel(t, f, ChatModelConfig{Model: "m"})

	png := []byte("\x89PNG\r\n\x1a\n0000")
	if _, err := model.Ask(context.Background(), "what is this?", nil, "prompt", png); err != nil {
		t.Fatal(err)
	}

	last := gjson.Get(f.lastBody(), "messages.1.content")
	if !last.IsArray() {
		t.Fatalf("expected content parts, got %s", last.Raw)
	}
	if got := last.Get("0.text").String(); got != "what is this?" {
		t.Errorf("unexpected text part %q", got)
	}
	if got := last.Get("1.image_url.url").String(); !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("unexpected image url %q", got)
	}
}

func TestChatModel_ServiceErrorPropagates(t *testing.T) {
	f := &fakeCompletions{status: http.StatusInternalServerError}
	model := newTestChatModel(t, f, ChatModelConfig{Model: "m"})

	_, err := model.Ask(context.Background(), "hi", nil, "prompt", nil)
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected openai error, got %v", err)
	}
	if f.calls() != 1 {
		t.Errorf("expected no retries, got %d calls", f.calls())
	}
}

func TestChatModel_EmptyChoices(t *testing.T) {
	f := &fakeCompletions{empty: true}
	model := newTestChatModel(t, f, ChatModelConfig{Model: "m"})

	_, err := model.Ask(context.Background(), "hi", nil, "prompt", nil)
	if !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestChatModel_Budget(t *testing.T) {
	model := NewChatModel(zap.NewNop(), nil, nil, ChatModelConfig{})
	if got := model.Budget(); got != 4096-1000 {
		t.Errorf("expected default budget 3096, got %d", got)
	}
}
