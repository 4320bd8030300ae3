package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/llamago/internal/engine"
	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/pretrained"
)

var vocab = []string{"</s>", "ahoy", " matey", "!"}

type testVocab struct{}

func (testVocab) Encode(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	return []int{1}, nil
}

func (testVocab) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(vocab[id])
	}
	return b.String(), nil
}

func (testVocab) VocabSize() int            { return len(vocab) }
func (testVocab) TokenString(id int) string { return vocab[id] }
func (testVocab) StopTokens() []int         { return []int{0} }

// cycleModel always favours the token after the last one, wrapping to the
// stop token.
type cycleModel struct{}

func (cycleModel) NextTokenLogits(_ context.Context, tokens []int) ([]float32, error) {
	out := make([]float32, len(vocab))
	out[(tokens[len(tokens)-1]+1)%len(vocab)] = 10
	return out, nil
}

func testEngine() *engine.Engine {
	return &engine.Engine{
		Variant:    pretrained.TinyLlama,
		Model:      cycleModel{},
		Tokenizer:  testVocab{},
		StopTokens: []int{0},
	}
}

type testProvider struct {
	engine *engine.Engine
	err    error
}

func (p testProvider) WithEngine(_ context.Context, modelID string, fn func(*engine.Engine) error) error {
	if p.err != nil {
		return p.err
	}
	if modelID != "" && modelID != "tinyllama" {
		return newInvalidRequest("unknown model " + modelID)
	}
	return fn(p.engine)
}

func (p testProvider) ListModels() ([]ModelInfo, error) {
	return []ModelInfo{{ID: "tinyllama", Object: "model", Name: "TinyLlama-1.1B", Loaded: true}}, nil
}

func newTestEcho(p Provider) *echo.Echo {
	defaults := engine.DefaultRequest("")
	defaults.Temperature = 0
	e := echo.New()
	NewServer(p, defaults).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGenerateGreedy(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testProvider{engine: testEngine()})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"ahoy","max_tokens":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "gen-") {
		t.Fatalf("unexpected id %q", resp.ID)
	}
	if resp.Text != " matey!" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.StopReason != "stop_token" {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}
	if resp.Usage.PromptTokens != 1 || resp.Usage.CompletionTokens != 3 || resp.Usage.TotalTokens != 4 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	if resp.Model != "tinyllama" {
		t.Fatalf("unexpected model %q", resp.Model)
	}
}

func TestGenerateZeroBudget(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testProvider{engine: testEngine()})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"ahoy","max_tokens":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "" || resp.Usage.CompletionTokens != 0 {
		t.Fatalf("expected empty generation, got %+v", resp)
	}
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testProvider{engine: testEngine()})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing prompt", `{}`, "prompt is required"},
		{"bad json", `{"prompt":`, "invalid JSON body"},
		{"unknown field", `{"prompt":"x","top_k":4}`, "invalid JSON body"},
		{"negative max tokens", `{"prompt":"x","max_tokens":-1}`, "max_tokens"},
		{"huge max tokens", `{"prompt":"x","max_tokens":100000}`, "max_tokens"},
		{"negative temperature", `{"prompt":"x","temperature":-0.5}`, "temperature"},
		{"top_p zero", `{"prompt":"x","top_p":0}`, "top_p"},
		{"top_p above one", `{"prompt":"x","top_p":1.5}`, "top_p"},
		{"unknown model", `{"prompt":"x","model":"gpt"}`, "unknown model"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/generate", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("expected %q in %s", tc.want, rec.Body.String())
			}
		})
	}
}

func TestGenerateProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"network", pretrained.ErrNetwork, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
		{"inference wrapping invalid input", fmt.Errorf("%w: step 0: %w", inference.ErrInference,
			fmt.Errorf("%w: model returned empty logits", inference.ErrInvalidInput)), http.StatusInternalServerError},
		{"tokenize", fmt.Errorf("%w: %w", inference.ErrTokenize, inference.ErrInvalidInput), http.StatusInternalServerError},
		{"detokenize", fmt.Errorf("%w: unknown id", inference.ErrDetokenize), http.StatusInternalServerError},
		{"invalid input", fmt.Errorf("%w: top-p threshold 0 outside (0, 1]", inference.ErrInvalidInput), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEcho(testProvider{err: tc.err})
			rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"ahoy"}`)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, rec.Code, rec.Body.String())
			}
			wantType := "server_error"
			switch tc.want {
			case http.StatusBadRequest:
				wantType = "invalid_request_error"
			case http.StatusBadGateway:
				wantType = "upstream_error"
			case http.StatusGatewayTimeout:
				wantType = "timeout_error"
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Type != wantType {
				t.Fatalf("expected error type %q, got %q", wantType, body.Error.Type)
			}
		})
	}
}

func TestGenerateStream(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testProvider{engine: testEngine()})
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"ahoy","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var text strings.Builder
	var final *GenerateResponse
	done := false
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		if line == "[DONE]" {
			done = true
			continue
		}
		var chunk GenerateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", line, err)
		}
		text.WriteString(chunk.Text)
		if chunk.Response != nil {
			final = chunk.Response
		}
	}
	if !done {
		t.Fatalf("missing [DONE] marker: %s", rec.Body.String())
	}
	if final == nil || final.Text != text.String() {
		t.Fatalf("streamed %q, final %+v", text.String(), final)
	}
}

func TestListModelsAndHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testProvider{engine: testEngine()})
	rec := doJSON(t, e, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("models status %d", rec.Code)
	}
	var list ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != "tinyllama" {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}
}
