package usecase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/webex-ai-bot/config"
	"github.com/iamvkosarev/webex-ai-bot/internal/model"
)

func newTestAI(t *testing.T, handler http.Handler) *OpenAIUsecase {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAIUsecase(
		config.OpenWebUI{
			APIKey:         "test-key",
			BaseURL:        ts.URL,
			Model:          "haiku-4.5",
			MaxTokens:      256,
			RequestTimeout: 5 * time.Second,
			MaxRetries:     2,
		},
	)
}

func completionResponse(content string) string {
	return `{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":` +
		strconv.Quote(content) + `},"finish_reason":"stop"}]}`
}

func TestOpenAIChat(t *testing.T) {
	var gotRequest openai.ChatCompletionRequest
	handler := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/chat/completions", r.URL.Path)
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(completionResponse("Hello there")))
		},
	)
	ai := newTestAI(t, handler)

	history := []model.Turn{
		{Role: model.RoleUser, Text: "earlier question"},
		{Role: model.RoleAssistant, Text: "earlier answer"},
	}
	answer, err := ai.Chat(context.Background(), history, "new question")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", answer)

	assert.Equal(t, "haiku-4.5", gotRequest.Model)
	assert.Equal(t, 256, gotRequest.MaxTokens)
	require.Len(t, gotRequest.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, gotRequest.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, gotRequest.Messages[0].Content)
	assert.Equal(t, "earlier question", gotRequest.Messages[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, gotRequest.Messages[2].Role)
	assert.Equal(t, "new question", gotRequest.Messages[3].Content)
}

func TestOpenAIChatRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(completionResponse("recovered")))
		},
	)
	ai := newTestAI(t, handler)

	answer, err := ai.Chat(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIChatDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
		},
	)
	ai := newTestAI(t, handler)

	_, err := ai.Chat(context.Background(), nil, "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAISearch(t *testing.T) {
	var rawBody map[string]any
	handler := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/chat/completions", r.URL.Path)
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &rawBody))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(completionResponse("search results")))
		},
	)
	ai := newTestAI(t, handler)

	answer, err := ai.Search(context.Background(), nil, "latest Go release")
	require.NoError(t, err)
	assert.Equal(t, "search results", answer)

	features, ok := rawBody["features"].(map[string]any)
	require.True(t, ok, "request must carry the features object")
	assert.Equal(t, true, features["web_search"])
	assert.Equal(t, false, rawBody["stream"])

	messages, ok := rawBody["messages"].([]any)
	require.True(t, ok)
	last, ok := messages[len(messages)-1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "latest Go release", last["content"])
}

func TestOpenAIListModels(t *testing.T) {
	handler := http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/models", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"object":"list","data":[{"id":"haiku-4.5","object":"model"},{"id":"llama3","object":"model"}]}`))
		},
	)
	ai := newTestAI(t, handler)

	models, err := ai.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"haiku-4.5", "llama3"}, models)
}

func TestTrimToTokenBudget(t *testing.T) {
	history := []model.Turn{
		{Role: model.RoleUser, Text: "oldest"},
		{Role: model.RoleAssistant, Text: "old answer"},
		{Role: model.RoleUser, Text: "newer"},
	}
	newAI := func(budget int) *OpenAIUsecase {
		return NewOpenAIUsecase(
			config.OpenWebUI{
				APIKey:      "test-key",
				BaseURL:     "http://localhost:9",
				Model:       "haiku-4.5",
				TokenBudget: budget,
			},
		)
	}

	t.Run("drops oldest history first", func(t *testing.T) {
		u := newAI(100)
		u.countTokens = func(messages []openai.ChatCompletionMessage, _ string) (int, error) {
			return len(messages) * 60, nil
		}

		messages := u.buildMessages(history, "newest question")

		require.Len(t, messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
		assert.Equal(t, "newest question", messages[1].Content)
	})

	t.Run("keeps everything within budget", func(t *testing.T) {
		u := newAI(100)
		u.countTokens = func(messages []openai.ChatCompletionMessage, _ string) (int, error) {
			return 10, nil
		}

		messages := u.buildMessages(history, "newest question")

		assert.Len(t, messages, 5)
	})

	t.Run("keeps everything when counting fails", func(t *testing.T) {
		u := newAI(100)
		u.countTokens = func(messages []openai.ChatCompletionMessage, _ string) (int, error) {
			return 0, assert.AnError
		}

		messages := u.buildMessages(history, "newest question")

		assert.Len(t, messages, 5)
	})

	t.Run("zero budget disables counting", func(t *testing.T) {
		u := newAI(0)
		counted := false
		u.countTokens = func(messages []openai.ChatCompletionMessage, _ string) (int, error) {
			counted = true
			return 0, nil
		}

		messages := u.buildMessages(history, "newest question")

		assert.Len(t, messages, 5)
		assert.False(t, counted)
	})
}
