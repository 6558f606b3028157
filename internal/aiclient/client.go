// Package aiclient wraps the Anthropic messages API as the optional EDI
// drafting collaborator. Callers must treat every error as a signal to
// fall back to basic generation; nothing here is load-bearing.
package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are an EDI (Electronic Data Interchange) expert specializing in ANSI X12 " +
	"standards. Generate complete, valid EDI transactions following X12 format requirements. " +
	"Always respond with a single JSON object that can be used to create an EDI transaction. " +
	"Do not include any text outside the JSON object."

type Client struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	enabled   bool
}

// NewClient creates a new AI client. An empty API key yields a disabled
// client whose calls fail immediately, which the EDI service treats as
// "use basic generation".
func NewClient(apiKey, model string, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
		timeout:   timeout,
		enabled:   apiKey != "",
	}
}

// Enabled reports whether an API key was configured
func (c *Client) Enabled() bool {
	return c.enabled
}

// GenerateEDIContent asks the model for a structured EDI draft. The call
// carries an explicit timeout; the upstream source had none and could hang
// a draft request indefinitely.
func (c *Client) GenerateEDIContent(ctx context.Context, prompt string) (map[string]interface{}, error) {
	if !c.enabled {
		return nil, fmt.Errorf("ai client not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: sdk.Float(0.2),
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic create message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	payload := extractJSON(text.String())
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var content map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &content); err != nil {
		return nil, fmt.Errorf("unparseable model response: %w", err)
	}

	return content, nil
}

// extractJSON pulls the outermost JSON object out of a response that may
// carry code fences or prose around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
