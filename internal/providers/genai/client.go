package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey      string
	Model       string
	ScorerModel string
	HTTPClient  *http.Client
	Logger      *infra.Logger
}

// Client is a thin facade over the Gemini SDK. Without an API key it renders
// deterministic synthetic images and a passing score, so the pipeline runs
// end-to-end in local and CI environments.
type Client struct {
	sdk         *genai.Client
	model       string
	scorerModel string
	logger      *infra.Logger
}

// InputPart is either instruction text or inline image bytes.
type InputPart struct {
	Text string
	Data []byte
	MIME string
}

// ImageRequest carries the ordered parts of an image generation call.
type ImageRequest struct {
	Parts       []InputPart
	Temperature float32
}

// TextRequest carries the ordered parts of a JSON answer call.
type TextRequest struct {
	Parts []InputPart
}

// ImageAsset is the normalized representation returned by the Gemini client.
type ImageAsset struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// NewClient constructs a Gemini client. An empty API key selects synthetic mode.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	scorer := opts.ScorerModel
	if scorer == "" {
		scorer = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}

	c := &Client{model: model, scorerModel: scorer, logger: logger}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		logger.Warn().Msg("genai: GEMINI_API_KEY not set; using synthetic images")
		return c, nil
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	c.sdk = sdk
	return c, nil
}

// Model returns the configured image model identifier.
func (c *Client) Model() string {
	return c.model
}

// Synthetic reports whether the client renders placeholders instead of calling Gemini.
func (c *Client) Synthetic() bool {
	return c.sdk == nil
}

// GenerateImage returns the first inline image of the response, or nil when the model
// answered with text only.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.sdk == nil {
		return c.syntheticImage(req), nil
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(req.Temperature),
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, contents(req.Parts), cfg)
	if err != nil {
		return nil, classify(err)
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			width, height := decodeImageDimensions(part.InlineData.Data)
			return &ImageAsset{
				Format: firstNonEmpty(part.InlineData.MIMEType, "image/png"),
				Width:  width,
				Height: height,
				Data:   part.InlineData.Data,
			}, nil
		}
	}
	c.logger.Debug().Str("model", c.model).Str("text", truncate(responseText(resp), 200)).Msg("genai: response carried no image")
	return nil, nil
}

// GenerateJSON asks the scorer model for a JSON answer and returns its raw text.
func (c *Client) GenerateJSON(ctx context.Context, req TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.sdk == nil {
		return syntheticScore, nil
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.scorerModel, contents(req.Parts), cfg)
	if err != nil {
		return "", classify(err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty scorer response", domain.ErrProviderFailure)
	}
	return text, nil
}

func contents(parts []InputPart) []*genai.Content {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			out = append(out, genai.NewPartFromBytes(p.Data, firstNonEmpty(p.MIME, "image/png")))
			continue
		}
		if s := strings.TrimSpace(p.Text); s != "" {
			out = append(out, genai.NewPartFromText(s))
		}
	}
	return []*genai.Content{genai.NewContentFromParts(out, genai.RoleUser)}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
		break
	}
	return strings.TrimSpace(sb.String())
}

// classify maps rate limiting onto ErrQuotaExceeded and everything else onto ErrProviderFailure.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	limited := strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		limited = true
	}
	if limited {
		return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
