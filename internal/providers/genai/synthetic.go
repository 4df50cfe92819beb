package genai

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/webp"
)

const syntheticScore = `{"illustration_completeness":10,"character_consistency":10,"environment_completeness":10}`

// syntheticImage derives a placeholder from the request so retries of the same input
// produce the same picture.
func (c *Client) syntheticImage(req ImageRequest) *ImageAsset {
	hasher := sha256.New()
	hasher.Write([]byte(c.model))
	for _, p := range req.Parts {
		hasher.Write([]byte(p.Text))
		if len(p.Data) > 0 {
			sum := sha256.Sum256(p.Data)
			hasher.Write(sum[:])
		}
		hasher.Write([]byte{'|'})
	}
	seed := hex.EncodeToString(hasher.Sum(nil))[:16]

	width, height := 512, 512
	for _, p := range req.Parts {
		if w, h := decodeImageDimensions(p.Data); w > 0 && h > 0 {
			width, height = min(w, 1024), min(h, 1024)
			break
		}
	}
	data := renderSyntheticImage(width, height, seed)
	return &ImageAsset{Format: "image/png", Width: width, Height: height, Data: data}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, min(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func decodeImageDimensions(data []byte) (int, int) {
	if len(data) == 0 {
		return 0, 0
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
