package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgerlens/ledgerlens/internal/parse"
)

// Ollama implements Categorizer against a local Ollama instance.
type Ollama struct {
	baseURL    string
	model      string
	categories []Category
	client     *http.Client
}

// NewOllama creates an Ollama-backed categorizer. With nil categories the
// default taxonomy is used.
func NewOllama(baseURL, modelName string, categories []Category) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3"
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &Ollama{
		baseURL:    baseURL,
		model:      modelName,
		categories: categories,
		client:     &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Categorize implements Categorizer.
func (o *Ollama) Categorize(receipt parse.Receipt) (Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You classify purchase receipts into expense categories. Answer with a single category name from the allowed list.",
			},
			{
				Role:    "user",
				Content: categoryPrompt(receipt, o.categories),
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Other, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return Other, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Other, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Other, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Other, fmt.Errorf("decoding response: %w", err)
	}

	return matchCategory(chatResp.Message.Content, o.categories), nil
}

// Close implements Categorizer; the HTTP client needs no teardown.
func (o *Ollama) Close() error {
	return nil
}
