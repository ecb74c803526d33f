// Package gemini wraps the Google GenAI SDK behind the two narrow calls the
// rest of the service needs: batch text embedding and single-shot generation.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Config selects the models and generation parameters.
type Config struct {
	// EmbedderModel is the embedding model name (e.g. gemini-embedding-001).
	EmbedderModel string
	// GenerateModel is the text generation model name.
	GenerateModel string
	// Dimension is the requested embedding dimensionality.
	Dimension int
	// Temperature for generation.
	Temperature float32
	// MaxTokens caps generated output length.
	MaxTokens int
}

// Client is a thin adapter over the GenAI SDK.
type Client struct {
	client *genai.Client
	cfg    Config
}

// NewClient creates a Client authenticated with apiKey against the Gemini API.
func NewClient(ctx context.Context, apiKey string, cfg Config) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{client: gc, cfg: cfg}, nil
}

// Embed returns one vector per input text, in input order. The SDK call is a
// single request; callers own batching and retry policy.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbedderModel, contents,
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(c.cfg.Dimension)),
		})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Generate runs a single-turn completion over prompt and returns the text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.GenerateModel,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(c.cfg.Temperature),
			MaxOutputTokens: int32(c.cfg.MaxTokens),
		})
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model returned no text")
	}
	return text, nil
}
