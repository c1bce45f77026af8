// Package embedding provides text embeddings and an in-memory vector index
// over canonical product names. The index backs the cascade's semantic tier.
package embedding

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

const (
	defaultModel   = "gemini-embedding-001"
	defaultTimeout = 10 * time.Second
	defaultRate    = 5 // requests per second
	defaultBurst   = 10
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gemini embeds text through the Gemini embedding API.
type Gemini struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
}

// GeminiOption configures a Gemini embedder.
type GeminiOption func(*Gemini)

// WithModel overrides the default embedding model.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(perSecond float64, burst int) GeminiOption {
	return func(g *Gemini) {
		if perSecond > 0 && burst > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithTimeout bounds each individual API call.
func WithTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGemini creates a Gemini embedder using the AI Studio backend.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.NewAuthenticationError("gemini", "api_key",
			"API key required for the embedding model", errors.ErrAPIKeyRequired)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errors.WrapAPI("gemini", 0, err)
	}

	g := &Gemini{
		client:  client,
		model:   defaultModel,
		limiter: rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Compile-time check
var _ Embedder = (*Gemini)(nil)

// Embed returns the vector for one text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.NewValidationError("text", text, "cannot be empty")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.EmbedContent(callCtx, g.model, genai.Text(text), nil)
	if err != nil {
		return nil, errors.WrapAPI("gemini", 0, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.NewAPIError("gemini", 0, "empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
