package image

import (
	"context"
	"strings"
)

// Part is one element of an ordered model input: either instruction text or an image.
type Part struct {
	Text string
	Data []byte
	MIME string
}

// TextPart wraps an instruction.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart wraps image bytes. An empty MIME defaults to PNG.
func ImagePart(data []byte, mime string) Part {
	if strings.TrimSpace(mime) == "" {
		mime = "image/png"
	}
	return Part{Data: data, MIME: mime}
}

// IsImage reports whether the part carries image bytes.
func (p Part) IsImage() bool {
	return len(p.Data) > 0
}

// Asset represents a generated image.
type Asset struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Model is the contract implemented by image generators. A nil asset with a nil error
// means the model answered without an image.
type Model interface {
	Generate(ctx context.Context, parts []Part, temperature float32) (*Asset, error)
}

// Scorer asks an auxiliary model to grade a candidate and returns its raw JSON answer.
type Scorer interface {
	Score(ctx context.Context, parts []Part) (string, error)
}
