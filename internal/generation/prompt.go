package generation

import (
	"fmt"
	"strings"

	"illustrator/internal/domain"
	"illustrator/internal/providers/image"
)

const (
	baseTemperature  float32 = 0.4
	retryTemperature float32 = 0.8
	maxRetryLevel            = 2
)

const identityInstruction = "You are an illustrator who redraws photographs. Keep every person, animal and object " +
	"recognisable: same poses, same clothing, same composition and framing. Change only the rendering style."

const anchorInstruction = "The next image is an illustration already produced for this same set of photos. " +
	"Match its palette, line quality and character designs exactly so the set looks consistent."

const ruleBlock = `Rules:
- Transform the entire frame. No photographic pixels may remain anywhere, including the background.
- Do not add or remove people, text, logos or watermarks.
- Keep the original aspect ratio.
- Return exactly one image.`

var retryPreambles = [...]string{
	"",
	"The previous attempt left parts of the photo untouched. Every subject and every background surface must be " +
		"fully redrawn in the target style this time.",
	"FINAL ATTEMPT. Output a single image in which 100% of the frame is illustrated. Redraw every listed subject and " +
		"every background surface. Any photographic region makes the result unusable.",
}

// PromptInput is everything the prompt depends on for one try.
type PromptInput struct {
	Source     image.Part
	Style      Style
	Scene      *domain.SceneAnalysis
	Anchor     *image.Part
	RetryLevel int
}

// BuildPrompt assembles the ordered parts for one model call:
// retry preamble, identity, anchor, scene, rules, style, source.
func BuildPrompt(in PromptInput) ([]image.Part, float32) {
	level := min(max(in.RetryLevel, 0), maxRetryLevel)
	parts := make([]image.Part, 0, 8)

	if preamble := retryPreambles[level]; preamble != "" {
		parts = append(parts, image.TextPart(preamble))
	}
	parts = append(parts, image.TextPart(identityInstruction))
	if in.Anchor != nil && in.Anchor.IsImage() {
		parts = append(parts, image.TextPart(anchorInstruction), *in.Anchor)
	}
	if scene := renderScene(in.Scene); scene != "" {
		parts = append(parts, image.TextPart(scene))
	}
	parts = append(parts,
		image.TextPart(ruleBlock),
		image.TextPart("Style: "+in.Style.Name+". "+in.Style.Instruction),
		in.Source,
	)

	temperature := baseTemperature
	if level > 0 {
		temperature = retryTemperature
	}
	return parts, temperature
}

func renderScene(scene *domain.SceneAnalysis) string {
	if scene.Empty() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Scene analysis of the photo.")
	if scene.Summary != "" {
		fmt.Fprintf(&sb, "\nSummary: %s", scene.Summary)
	}
	if len(scene.Subjects) > 0 {
		sb.WriteString("\nSubjects that must all be transformed:")
		for i, s := range scene.Subjects {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, s.Label)
			if s.Description != "" {
				fmt.Fprintf(&sb, ": %s", s.Description)
			}
		}
	}
	if len(scene.Background) > 0 {
		sb.WriteString("\nBackground surfaces that must all be transformed:")
		for _, b := range scene.Background {
			fmt.Fprintf(&sb, "\n- %s", b)
		}
	}
	if scene.Lighting != "" {
		fmt.Fprintf(&sb, "\nLighting: %s", scene.Lighting)
	}
	return sb.String()
}
