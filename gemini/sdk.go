package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/segfault-society/saathi/models"
)

// SDKClient implements the same generation surface as Client on top of the
// official google.golang.org/genai SDK. Deployments pick the transport via
// configuration; the two are interchangeable.
type SDKClient struct {
	Model        string
	SystemPrompt string
	client       *genai.Client
}

// NewSDKClient creates an SDK-backed client against the Gemini API backend.
func NewSDKClient(ctx context.Context, model, systemPrompt, apiKey string) (*SDKClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &SDKClient{
		Model:        model,
		SystemPrompt: systemPrompt,
		client:       client,
	}, nil
}

func (c *SDKClient) buildContents(history []models.HistoryEntry) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, entry := range history {
		contents = append(contents, &genai.Content{
			Role:  entry.Role,
			Parts: []*genai.Part{{Text: entry.Text}},
		})
	}
	return contents
}

func (c *SDKClient) buildConfig() *genai.GenerateContentConfig {
	if c.SystemPrompt == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: c.SystemPrompt}},
		},
	}
}

// Generate performs a blocking generation call and returns the full reply text.
func (c *SDKClient) Generate(ctx context.Context, history []models.HistoryEntry) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.Model, c.buildContents(history), c.buildConfig())
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned no usable text", c.Model)
	}
	return text, nil
}

// GenerateStream emits text fragments as the SDK yields them. Both channels
// are closed when the stream ends.
func (c *SDKClient) GenerateStream(ctx context.Context, history []models.HistoryEntry) (<-chan string, <-chan error) {
	fragChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(fragChan)
		defer close(errChan)

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.Model, c.buildContents(history), c.buildConfig()) {
			if err != nil {
				errChan <- fmt.Errorf("stream generate content failed: %w", err)
				return
			}

			if text := resp.Text(); text != "" {
				select {
				case fragChan <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return fragChan, errChan
}
