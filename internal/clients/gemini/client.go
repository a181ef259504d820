// Package gemini provides a client for the Google Gemini API used for
// AI-assisted transaction categorization.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

const (
	DefaultModel = "gemini-3-flash-preview"

	// DefaultRateLimit is requests per second against the Gemini API.
	DefaultRateLimit = 1
)

const systemPrompt = `You are a financial transaction categorizer. Your job is to analyze transaction descriptions and assign them to the most appropriate category.

Guidelines:
1. Base your categorization on the merchant name, transaction description, and amount
2. Consider common merchant patterns (e.g., "SQ *" = Square point-of-sale)
3. Be conservative - if uncertain, express lower confidence
4. Common patterns:
   - "SQ *", "SQUARE *", "TST*", "CLOVER*" = point-of-sale terminals, categorize by merchant name
   - "PAYPAL *" = online payment, categorize by the merchant after PAYPAL
   - "ZELLE", "VENMO" = peer-to-peer transfers
   - Numbers at the end often indicate store/location IDs

Response format: Raw JSON only - no markdown code blocks, no explanation outside the JSON.`

// Client wraps the Gemini API for transaction categorization. Calls are
// rate limited client-side.
type Client struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	logger  *common.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithModel sets the model to use.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client:  genaiClient,
		model:   DefaultModel,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// GenerateContent generates AI content from a prompt.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	c.logger.Debug().Str("model", c.model).Msg("Generating content")

	contents := genai.Text(prompt)
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(result)
}

// SuggestCategory asks the model to categorize one transaction against the
// configured category set.
func (c *Client) SuggestCategory(ctx context.Context, txn *models.Transaction, categories map[string]models.Category) (*models.CategorySuggestion, error) {
	prompt := buildCategorizationPrompt(txn, categories)

	response, err := c.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	suggestion, err := parseSuggestion(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse categorization response: %w", err)
	}

	c.logger.Debug().
		Str("description", txn.Description).
		Str("category", suggestion.CategoryID).
		Float64("confidence", suggestion.Confidence).
		Msg("AI category suggestion")

	return suggestion, nil
}

// buildCategorizationPrompt formats the single-transaction prompt.
// Categories are listed in sorted id order so prompts are stable across
// runs.
func buildCategorizationPrompt(txn *models.Transaction, categories map[string]models.Category) string {
	ids := make([]string, 0, len(categories))
	for id := range categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nCategorize this transaction into ONE of these categories:\n\n")
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", id, categories[id].Name))
	}

	kind := "income/credit"
	if txn.Amount.IsNegative() {
		kind = "expense"
	}

	sb.WriteString("\nTransaction:\n")
	sb.WriteString(fmt.Sprintf("- Description: %s\n", txn.Description))
	sb.WriteString(fmt.Sprintf("- Amount: $%s (%s)\n", txn.Amount.Abs().StringFixed(2), kind))
	sb.WriteString(fmt.Sprintf("- Account: %s\n", txn.AccountName))
	sb.WriteString("\nRespond with JSON only:\n")
	sb.WriteString(`{"category_id": "...", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`)

	return sb.String()
}

type suggestionResponse struct {
	CategoryID string  `json:"category_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseSuggestion parses the model's JSON reply, tolerating markdown code
// fences.
func parseSuggestion(response string) (*models.CategorySuggestion, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var data suggestionResponse
	if err := json.Unmarshal([]byte(response), &data); err != nil {
		return nil, err
	}
	if data.CategoryID == "" {
		return nil, fmt.Errorf("response missing category_id")
	}

	return &models.CategorySuggestion{
		CategoryID: data.CategoryID,
		Confidence: data.Confidence,
		Reasoning:  data.Reasoning,
	}, nil
}

// extractTextFromResponse extracts text from a generate content response.
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}

	return text, nil
}
