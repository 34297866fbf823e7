package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/iamvkosarev/webex-ai-bot/config"
	"github.com/iamvkosarev/webex-ai-bot/internal/model"
	openai_tools "github.com/iamvkosarev/webex-ai-bot/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

// DefaultSystemPrompt tells the model how to behave in a chat room and
// that web searches happen on its behalf.
const DefaultSystemPrompt = `You are a helpful AI assistant in a Webex chat with web search capabilities.
Be concise but friendly. Format responses nicely for chat - use short paragraphs.
If you don't know something or need current/real-time information, say so honestly.
When you need up-to-date info, the system will automatically search the web for you.`

const (
	aiRetryBaseDelay = 500 * time.Millisecond
	aiRetryMaxDelay  = 10 * time.Second
)

type OpenAIUsecase struct {
	cfg         config.OpenWebUI
	client      *openai.Client
	httpClient  *http.Client
	countTokens func(messages []openai.ChatCompletionMessage, modelName string) (int, error)
}

func NewOpenAIUsecase(cfg config.OpenWebUI) *OpenAIUsecase {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	clientConfig.HTTPClient = httpClient
	return &OpenAIUsecase{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientConfig),
		httpClient:  httpClient,
		countTokens: openai_tools.CountToken,
	}
}

// Chat sends the conversation so far plus the new user message and
// returns the assistant answer.
func (u *OpenAIUsecase) Chat(ctx context.Context, history []model.Turn, message string) (string, error) {
	messages := u.buildMessages(history, message)

	var answer string
	err := u.doWithRetry(ctx, func(ctx context.Context) error {
		response, err := u.client.CreateChatCompletion(
			ctx, openai.ChatCompletionRequest{
				Model:       u.cfg.Model,
				Messages:    messages,
				MaxTokens:   u.cfg.MaxTokens,
				Temperature: u.cfg.Temperature,
			},
		)
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			return errors.New("chat completion returned no choices")
		}
		answer = response.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get chat completion: %w", err)
	}
	return answer, nil
}

// Search is a chat completion with Open WebUI's web_search feature
// switched on. The feature flag is not part of the OpenAI API surface,
// so the request is posted directly.
func (u *OpenAIUsecase) Search(ctx context.Context, history []model.Turn, query string) (string, error) {
	request := searchRequest{
		Model:     u.cfg.Model,
		MaxTokens: u.cfg.MaxTokens,
		Features:  searchFeatures{WebSearch: true},
	}
	for _, message := range u.buildMessages(history, query) {
		request.Messages = append(
			request.Messages, searchMessage{
				Role:    message.Role,
				Content: message.Content,
			},
		)
	}

	var answer string
	err := u.doWithRetry(ctx, func(ctx context.Context) error {
		var err error
		answer, err = u.postSearch(ctx, request)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get search completion: %w", err)
	}
	return answer, nil
}

func (u *OpenAIUsecase) ListModels(ctx context.Context) ([]string, error) {
	var models []string
	err := u.doWithRetry(ctx, func(ctx context.Context) error {
		list, err := u.client.ListModels(ctx)
		if err != nil {
			return err
		}
		models = models[:0]
		for _, m := range list.Models {
			models = append(models, m.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

type searchMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type searchFeatures struct {
	WebSearch bool `json:"web_search"`
}

type searchRequest struct {
	Model     string          `json:"model"`
	Messages  []searchMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Stream    bool            `json:"stream"`
	Features  searchFeatures  `json:"features"`
}

type searchResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (u *OpenAIUsecase) postSearch(ctx context.Context, request searchRequest) (string, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	requestURL := strings.TrimSuffix(u.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &openai.RequestError{
			HTTPStatusCode: resp.StatusCode,
			Err:            errors.New(strings.TrimSpace(string(body))),
		}
	}
	var response searchResponse
	if err = json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("search completion returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}

func (u *OpenAIUsecase) buildMessages(history []model.Turn, message string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if u.cfg.SystemPrompt != "" {
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: u.cfg.SystemPrompt,
			},
		)
	}
	for _, turn := range history {
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    parseTurnRole(turn.Role),
				Content: turn.Text,
			},
		)
	}
	messages = append(
		messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: message,
		},
	)
	return u.trimToTokenBudget(messages)
}

// trimToTokenBudget drops the oldest history messages until the request
// fits the token budget. The system prompt and the new user message are
// never dropped.
func (u *OpenAIUsecase) trimToTokenBudget(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if u.cfg.TokenBudget <= 0 {
		return messages
	}
	oldest := 0
	if len(messages) > 0 && messages[0].Role == openai.ChatMessageRoleSystem {
		oldest = 1
	}
	for len(messages) > oldest+1 {
		tokenCount, err := u.countTokens(messages, u.cfg.Model)
		if err != nil {
			slog.Warn("failed to count tokens", "error", err)
			return messages
		}
		if tokenCount < u.cfg.TokenBudget {
			return messages
		}
		messages = append(messages[:oldest], messages[oldest+1:]...)
		slog.Debug("history trimmed due to token budget")
	}
	return messages
}

func (u *OpenAIUsecase) doWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= u.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := aiRetryBaseDelay * time.Duration(1<<uint(attempt-1))
			if delay > aiRetryMaxDelay {
				delay = aiRetryMaxDelay
			}
			slog.Warn("retrying ai request", "attempt", attempt, "delay", delay.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryableAIError(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRetryableAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return requestErr.HTTPStatusCode == http.StatusTooManyRequests || requestErr.HTTPStatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func parseTurnRole(role model.Role) string {
	switch role {
	case model.RoleUser:
		return openai.ChatMessageRoleUser
	case model.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case model.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return string(role)
	}
}
