// Package llm はOpenAI互換のチャット補完APIクライアントを提供します。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config はLLM APIへの接続設定です。
type Config struct {
	APIKey      string
	BaseURL     string // 例: https://api.openai.com/v1
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("llm base URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	return nil
}

// Client はLLM APIのクライアントです。並行利用できます。
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient は Client を作成します。
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SimpleChat は単一のユーザープロンプトを送信し、応答テキストを返します。
func (c *Client) SimpleChat(ctx context.Context, prompt, systemPrompt string) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	response, err := c.chatCompletion(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in llm response")
	}
	return response.Choices[0].Message.Content, nil
}

func (c *Client) chatCompletion(ctx context.Context, messages []Message) (*ChatResponse, error) {
	request := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read llm response: %w", err)
	}

	var response ChatResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse llm response (status %d): %w", resp.StatusCode, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("llm api error: %s", response.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm api returned status %d", resp.StatusCode)
	}
	return &response, nil
}
