package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/logging"
)

const (
	defaultModel      = "gemini-2.0-flash"
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
	defaultRate       = 2 // requests per second
	defaultBurst      = 4
)

// Gemini arbitrates product pairs through the Gemini API in JSON mode.
// Calls are rate limited and retried with exponential backoff; a call that
// still fails after retries surfaces as an ArbitrationError.
type Gemini struct {
	client     *genai.Client
	model      string
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries uint64
}

// GeminiOption configures a Gemini arbiter.
type GeminiOption func(*Gemini)

// WithModel overrides the default model.
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

// WithMaxRetries sets how many times a failed call is retried.
func WithMaxRetries(n uint64) GeminiOption {
	return func(g *Gemini) {
		g.maxRetries = n
	}
}

// NewGemini creates a Gemini arbiter using the AI Studio backend.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.NewAuthenticationError("gemini", "api_key",
			"API key required for the arbitration model", errors.ErrAPIKeyRequired)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errors.WrapAPI("gemini", 0, err)
	}

	g := &Gemini{
		client:     client,
		model:      defaultModel,
		limiter:    rate.NewLimiter(rate.Limit(defaultRate), defaultBurst),
		timeout:    defaultTimeout,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Compile-time check
var _ Arbiter = (*Gemini)(nil)

// SameProduct asks the model for a strict yes/no verdict on a pair. An
// unparseable or missing answer is an error, never an implicit yes.
func (g *Gemini) SameProduct(ctx context.Context, a, b ProductInfo) (Verdict, error) {
	prompt := buildPrompt(a, b)

	var verdict Verdict
	op := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0),
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return errors.WrapAPI("gemini", 0, err)
		}

		v, err := parseVerdict(resp.Text())
		if err != nil {
			// A malformed answer is retried; the next attempt may comply.
			return err
		}
		verdict = v
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		logging.FromContext(ctx).Warn().
			Str("left", a.ID).
			Str("right", b.ID).
			Err(err).
			Msg("arbitration failed")
		return Verdict{}, errors.NewArbitrationError(a.ID, b.ID, err)
	}
	return verdict, nil
}

// buildPrompt renders the pair into the strict yes/no question the model
// must answer in JSON.
func buildPrompt(a, b ProductInfo) string {
	var sb strings.Builder
	sb.WriteString("You compare two retail product records and decide whether they describe ")
	sb.WriteString("the exact same purchasable product.\n\n")
	sb.WriteString("Different sizes, quantities, strengths, flavors, scents, or pack counts ")
	sb.WriteString("are DIFFERENT products. Answer only when certain.\n\n")

	writeProduct := func(label string, p ProductInfo) {
		fmt.Fprintf(&sb, "Product %s:\n", label)
		fmt.Fprintf(&sb, "  name: %s\n", p.Name)
		if p.Brand != "" {
			fmt.Fprintf(&sb, "  brand: %s\n", p.Brand)
		}
		if p.Category != "" {
			fmt.Fprintf(&sb, "  category: %s\n", p.Category)
		}
		if p.Barcode != "" {
			fmt.Fprintf(&sb, "  barcode: %s\n", p.Barcode)
		}
		sb.WriteString("\n")
	}
	writeProduct("A", a)
	writeProduct("B", b)

	sb.WriteString(`Respond with JSON only, exactly this shape: {"same_product": true|false, "reason": "<one short sentence>"}`)
	return sb.String()
}

// verdictPayload is the wire shape of the model's answer. SameProduct is a
// pointer so a missing field is distinguishable from false.
type verdictPayload struct {
	SameProduct *bool  `json:"same_product"`
	Reason      string `json:"reason"`
}

// parseVerdict decodes the model's JSON answer. Anything other than an
// explicit boolean same_product field is a parse error.
func parseVerdict(text string) (Verdict, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload verdictPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Verdict{}, errors.NewParseError("json", "", "malformed verdict", err)
	}
	if payload.SameProduct == nil {
		return Verdict{}, errors.NewParseError("json", "", "verdict missing same_product field", nil)
	}
	return Verdict{Same: *payload.SameProduct, Reason: payload.Reason}, nil
}
