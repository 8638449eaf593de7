package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/kovalyov-valentin/style-feed/internal/logger"
)

const (
	defaultModel = openai.GPT3Dot5Turbo
	maxTokens    = 256
)

var ErrNoChoices = errors.New("openai returned no choices")

// OpenAISummarizer is disabled, returning an empty summary, when no api key is configured.
type OpenAISummarizer struct {
	client  *openai.Client
	prompt  string
	model   string
	enabled bool
	mu      sync.Mutex
}

func NewOpenAISummarizer(apiKey, prompt string, log logger.Logger) *OpenAISummarizer {
	log.Info("openai summarizer", logger.Bool("enabled", apiKey != ""))
	return newSummarizer(openai.DefaultConfig(apiKey), prompt, apiKey != "")
}

func newSummarizer(cfg openai.ClientConfig, prompt string, enabled bool) *OpenAISummarizer {
	return &OpenAISummarizer{
		client:  openai.NewClientWithConfig(cfg),
		prompt:  prompt,
		model:   defaultModel,
		enabled: enabled,
	}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	// one request at a time keeps us under the account rate limit
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || strings.TrimSpace(text) == "" {
		return "", nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.7,
		TopP:        1,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return completeSentences(resp.Choices[0].Message.Content), nil
}

// completeSentences drops a trailing sentence cut off by the token limit.
func completeSentences(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasSuffix(raw, ".") {
		return raw
	}

	last := strings.LastIndex(raw, ".")
	if last < 0 {
		return raw
	}
	return raw[:last+1]
}
