// Package gemini implements the classifier on top of the Gemini generative API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/jobscout-crawler/internal/classifier"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// generator produces a JSON answer for a system instruction and a user prompt.
type generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// Client classifies pages and link batches through Gemini.
type Client struct {
	gen    generator
	closer func() error
	logger *zap.Logger
}

var _ classifier.Classifier = (*Client)(nil)

// New dials Gemini with the API key.
func New(ctx context.Context, apiKey, model string, temperature float32, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c := newWithGenerator(&genaiGenerator{client: client, model: model, temperature: temperature}, logger)
	c.closer = client.Close
	return c, nil
}

func newWithGenerator(gen generator, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{gen: gen, logger: logger}
}

// ClassifyPage asks the model what to do with the page. Transport failures are
// transient; undecodable answers are returned wrapped in classifier.ErrMalformedResponse.
func (c *Client) ClassifyPage(ctx context.Context, req classifier.PageRequest) (classifier.Action, error) {
	raw, err := c.gen.GenerateJSON(ctx, classifier.SystemPrompt(req.Schema), classifier.PagePrompt(req))
	if err != nil {
		return classifier.Action{}, crawler.Transient("classify page", err)
	}
	action, err := classifier.DecodeAction([]byte(raw))
	if err != nil {
		c.logger.Warn("undecodable classifier answer",
			zap.String("url", req.URL),
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		return classifier.Action{}, err
	}
	return action, nil
}

// SelectLinks asks the model which urls are postings or posting lists.
func (c *Client) SelectLinks(ctx context.Context, sourceURL string, urls []string) ([]string, error) {
	system, prompt := classifier.LinkSelectionPrompt(sourceURL, urls)
	raw, err := c.gen.GenerateJSON(ctx, system, prompt)
	if err != nil {
		return nil, crawler.Transient("select links", err)
	}
	selected, err := classifier.DecodeSelection([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode link selection: %w", err)
	}
	return selected, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

type genaiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

func (g *genaiGenerator) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return cleanJSONBlock(text), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code fences around a JSON answer.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
