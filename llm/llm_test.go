package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newChatServer(t *testing.T, handler http.HandlerFunc) *openAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI(Config{Provider: "custom", Model: "test-model", BaseURL: srv.URL})
}

func TestCompleteSendsJSONMode(t *testing.T) {
	var got chatCompletionRequest
	p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model",
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"ok": true}`}},
			},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Prompt:   "return JSON",
		JSONMode: true,
	})
	require.NoError(t, err)
	require.Equal(t, `{"ok": true}`, resp.Text)
	require.Equal(t, 10, resp.Usage.TotalTokens)

	require.Equal(t, "test-model", got.Model, "falls back to configured model")
	require.NotNil(t, got.ResponseFormat)
	require.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
	})

	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRequestFailed)
	require.Equal(t, 1, calls)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("waits through a backoff delay")
	}
	var calls int
	p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "recovered"}},
			},
		})
	})

	resp, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "recovered", resp.Text)
	require.Equal(t, 2, calls)
}

func TestEmbedDocumentsRestoresInputOrder(t *testing.T) {
	p := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		// Out-of-order data entries must land at their declared index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	vectors, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0}, vectors[0])
	require.Equal(t, []float32{0, 1}, vectors[1])
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	p := NewOpenAI(Config{Model: "m"})
	vectors, err := p.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vectors)
}

func TestRetryableStatusCode(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		require.True(t, retryableStatusCode(code), "code %d", code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		require.False(t, retryableStatusCode(code), "code %d", code)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := retryDelay(attempt)
		require.GreaterOrEqual(t, d, baseRetryDelay)
		// Cap plus the 25% jitter ceiling.
		require.LessOrEqual(t, d, maxRetryDelay+maxRetryDelay/4)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "mystery"})
	require.Error(t, err)
	_, err = NewEmbedder(Config{})
	require.Error(t, err)
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	require.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, u)
}
