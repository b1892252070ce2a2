package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	// geminiPlaceholderKey ships in the sample env file and is treated as unset.
	geminiPlaceholderKey = "your-gemini-api-key-here"
)

// Gemini reads PDFs natively through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiConfigured reports whether apiKey is a real key.
func GeminiConfigured(apiKey string) bool {
	apiKey = strings.TrimSpace(apiKey)
	return apiKey != "" && apiKey != geminiPlaceholderKey
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if !GeminiConfigured(apiKey) {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string          { return "gemini" }
func (g *Gemini) NativeDocuments() bool { return true }

// Generate sends every document as inline PDF data followed by the prompt.
func (g *Gemini) Generate(ctx context.Context, prompt string, docs []Document) (string, error) {
	parts := make([]*genai.Part, 0, len(docs)+1)
	for _, d := range docs {
		if len(d.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(d.Data, mimeOrPDF(d.MimeType)))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func mimeOrPDF(m string) string {
	if m == "" {
		return "application/pdf"
	}
	return m
}
