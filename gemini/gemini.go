package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/segfault-society/saathi/models"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client talks to the Gemini REST API directly. History entries are replayed
// as alternating user/model contents; the persona (system instruction) is
// fixed at construction time.
type Client struct {
	Model        string
	SystemPrompt string
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
}

// NewClient creates a REST client for the given model. The API key falls back
// to the GEMINI_API_KEY environment variable when empty.
func NewClient(model, systemPrompt, apiKey string) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return &Client{
		Model:        model,
		SystemPrompt: systemPrompt,
		APIKey:       apiKey,
		BaseURL:      defaultBaseURL,
		HTTPClient:   http.DefaultClient,
	}
}

func (c *Client) buildRequest(history []models.HistoryEntry) GenerateRequest {
	contents := make([]Content, 0, len(history))
	for _, entry := range history {
		contents = append(contents, Content{
			Role:  entry.Role,
			Parts: []Part{{Text: entry.Text}},
		})
	}

	req := GenerateRequest{Contents: contents}
	if c.SystemPrompt != "" {
		req.SystemInstruction = &SystemInstruction{Parts: []Part{{Text: c.SystemPrompt}}}
	}
	return req
}

func (c *Client) endpoint(verb string) string {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return fmt.Sprintf("%s/models/%s:%s?key=%s", base, c.Model, verb, c.APIKey)
}

// Generate performs a blocking generateContent call and returns the full
// reply text. A response without any text is reported as an error so the
// caller never persists an empty turn.
func (c *Client) Generate(ctx context.Context, history []models.HistoryEntry) (string, error) {
	body, err := json.Marshal(c.buildRequest(history))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("generateContent"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("error making POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var response GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("error unmarshalling response: %w", err)
	}

	text := response.text()
	if text == "" {
		return "", fmt.Errorf("model %s returned no usable text", c.Model)
	}
	return text, nil
}

// GenerateStream performs a streamGenerateContent call and emits text
// fragments as they arrive. The response body is a JSON array of response
// objects that is decoded incrementally, one element per fragment batch.
// Both channels are closed when the stream ends, whichever way it ends.
func (c *Client) GenerateStream(ctx context.Context, history []models.HistoryEntry) (<-chan string, <-chan error) {
	fragChan := make(chan string)
	errChan := make(chan error, 1)

	body, err := json.Marshal(c.buildRequest(history))
	if err != nil {
		errChan <- fmt.Errorf("failed to marshal stream request body: %w", err)
		close(errChan)
		close(fragChan)
		return fragChan, errChan
	}

	go func() {
		defer close(fragChan)
		defer close(errChan)

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("streamGenerateContent"), bytes.NewReader(body))
		if err != nil {
			errChan <- fmt.Errorf("failed to build stream request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			errChan <- fmt.Errorf("error making POST request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errChan <- fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
			return
		}

		decoder := json.NewDecoder(resp.Body)

		// Read the opening bracket `[`
		t, err := decoder.Token()
		if err != nil {
			errChan <- fmt.Errorf("error reading opening bracket: %w", err)
			return
		}
		if delim, ok := t.(json.Delim); !ok || delim != '[' {
			errChan <- fmt.Errorf("expected '[' at start of stream, got %T: %v", t, t)
			return
		}

		// Decode each object in the array
		for decoder.More() {
			var chunk GenerateResponse
			if err := decoder.Decode(&chunk); err != nil {
				errChan <- fmt.Errorf("error decoding JSON object in stream: %w", err)
				return
			}

			if text := chunk.text(); text != "" {
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
