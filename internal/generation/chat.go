package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultKimiBaseURL       = "https://api.moonshot.cn/v1"
	defaultKimiModel         = "kimi-k2-0711"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "google/gemini-2.0-flash-001"
)

// ChatCompletions talks to any OpenAI-compatible chat endpoint. It is
// text-only: mailings reach it as extracted text inside the prompt.
type ChatCompletions struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	headers    map[string]string
	httpClient *http.Client
}

// NewChatCompletions creates a text-only provider named name.
func NewChatCompletions(name, apiKey, baseURL, model string, headers map[string]string, httpClient *http.Client) *ChatCompletions {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChatCompletions{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		headers:    headers,
		httpClient: httpClient,
	}
}

// NewKimi returns the Moonshot Kimi provider.
func NewKimi(apiKey, baseURL, model string, httpClient *http.Client) *ChatCompletions {
	if baseURL == "" {
		baseURL = defaultKimiBaseURL
	}
	if model == "" {
		model = defaultKimiModel
	}
	return NewChatCompletions("kimi", apiKey, baseURL, model, nil, httpClient)
}

// NewOpenRouter returns the OpenRouter provider.
func NewOpenRouter(apiKey, baseURL, model string, httpClient *http.Client) *ChatCompletions {
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	if model == "" {
		model = defaultOpenRouterModel
	}
	return NewChatCompletions("openrouter", apiKey, baseURL, model,
		map[string]string{"X-Title": "schoolpost"}, httpClient)
}

func (c *ChatCompletions) Name() string          { return c.name }
func (c *ChatCompletions) NativeDocuments() bool { return false }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends the prompt as a single user message. docs are ignored since
// their text is already in the prompt.
func (c *ChatCompletions) Generate(ctx context.Context, prompt string, _ []Document) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You respond with a single JSON object and nothing else."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s status %d: %s", c.name, resp.StatusCode, truncate(string(body), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse %s response: %w", c.name, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s error: %s", c.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errors.New(c.name + " returned no content")
	}
	return parsed.Choices[0].Message.Content, nil
}
