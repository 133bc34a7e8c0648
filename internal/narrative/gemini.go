package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var displayNames = map[string]string{
	"glioma":     "glioma",
	"meningioma": "meningioma",
	"notumor":    "no tumor",
	"pituitary":  "pituitary tumor",
}

// GeminiOption adjusts the client configuration.
type GeminiOption func(*genai.ClientConfig)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) GeminiOption {
	return func(cc *genai.ClientConfig) { cc.HTTPOptions.BaseURL = url }
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(cc *genai.ClientConfig) { cc.HTTPClient = c }
}

// Gemini summarizes through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a client for model (e.g. "gemini-1.5-flash").
func NewGemini(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	for _, opt := range opts {
		opt(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Summarize(ctx context.Context, label string, confidence float64) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: Prompt(label, confidence)}},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", err
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text, nil
		}
	}
	return "", errors.New("response contained no text")
}

const systemPrompt = "You assist clinicians reviewing automated brain MRI classifications. " +
	"Write two short paragraphs in plain language. Do not give a diagnosis or treatment plan."

// Prompt renders the user message for a classification.
func Prompt(label string, confidence float64) string {
	name, ok := displayNames[label]
	if !ok {
		name = label
	}
	return fmt.Sprintf(
		"An MRI classifier labelled a scan as %q with %.1f%% confidence. "+
			"Explain what %s generally means, typical next steps for confirming it, "+
			"and how much weight a confidence of this level deserves.",
		name, confidence*100, name)
}
