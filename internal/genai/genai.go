// Package genai phrases the unmatched-input apology with OpenAI when an
// API key is configured. It is strictly cosmetic: the miss counter and
// escalation policy never depend on it.
package genai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const fallbackSystemPrompt = "You are a friendly customer support assistant for a small business page. " +
	"The user sent a message you cannot act on. Reply in one or two short sentences: apologize, " +
	"say you didn't understand, and ask them to rephrase. Do not invent services or answers."

// Client wraps the OpenAI chat completion API for fallback phrasing.
type Client struct {
	chat openai.Client
}

// NewClient creates a GenAI client with the given API key.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key must be provided")
	}
	return &Client{chat: openai.NewClient(option.WithAPIKey(apiKey))}, nil
}

// FallbackReply phrases a polite could-not-understand reply for the input.
func (c *Client) FallbackReply(ctx context.Context, input string) (string, error) {
	resp, err := c.chat.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fallbackSystemPrompt),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
