package image

import (
	"context"

	"illustrator/internal/providers/genai"
)

// GeminiGenerator adapts the genai client to Model.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, parts []Part, temperature float32) (*Asset, error) {
	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Parts:       toInputParts(parts),
		Temperature: temperature,
	})
	if err != nil || asset == nil {
		return nil, err
	}
	return &Asset{
		Data:   asset.Data,
		MIME:   asset.Format,
		Width:  asset.Width,
		Height: asset.Height,
	}, nil
}

// GeminiScorer adapts the genai client's JSON mode to Scorer.
type GeminiScorer struct {
	client *genai.Client
}

func NewGeminiScorer(client *genai.Client) *GeminiScorer {
	return &GeminiScorer{client: client}
}

func (s *GeminiScorer) Score(ctx context.Context, parts []Part) (string, error) {
	return s.client.GenerateJSON(ctx, genai.TextRequest{Parts: toInputParts(parts)})
}

func toInputParts(parts []Part) []genai.InputPart {
	out := make([]genai.InputPart, 0, len(parts))
	for _, p := range parts {
		out = append(out, genai.InputPart{Text: p.Text, Data: p.Data, MIME: p.MIME})
	}
	return out
}

var (
	_ Model  = (*GeminiGenerator)(nil)
	_ Scorer = (*GeminiScorer)(nil)
)
