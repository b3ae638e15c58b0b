package categorize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ledgerlens/ledgerlens/internal/parse"
)

// Gemini implements Categorizer using Google Gemini.
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	categories []Category
}

// NewGemini creates a Gemini-backed categorizer. With nil categories the
// default taxonomy is used.
func NewGemini(apiKey, modelName string, categories []Category) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      client.GenerativeModel(modelName),
		categories: categories,
	}, nil
}

// Categorize implements Categorizer.
func (g *Gemini) Categorize(receipt parse.Receipt) (Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(categoryPrompt(receipt, g.categories)))
	if err != nil {
		return Other, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Other, fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return matchCategory(text.String(), g.categories), nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
