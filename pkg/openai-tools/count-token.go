// Package openai_tools holds helpers for working with OpenAI-style chat
// completion requests.
package openai_tools

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const (
	fallbackEncoding = "cl100k_base"

	tokensPerMessage = 3
	tokensPerName    = 1
	tokensPerReply   = 3
)

// CountToken estimates how many prompt tokens a chat completion request
// will consume. Unknown model names fall back to the cl100k_base
// encoding, which is close enough for budget trimming.
func CountToken(messages []openai.ChatCompletionMessage, modelName string) (int, error) {
	encoding, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	numTokens := 0
	for _, message := range messages {
		numTokens += tokensPerMessage
		numTokens += len(encoding.Encode(message.Content, nil, nil))
		numTokens += len(encoding.Encode(message.Role, nil, nil))
		if message.Name != "" {
			numTokens += tokensPerName
			numTokens += len(encoding.Encode(message.Name, nil, nil))
		}
	}
	numTokens += tokensPerReply
	return numTokens, nil
}
