package generation

import (
	"fmt"
	"sort"
	"strings"

	"illustrator/internal/domain"
)

// Style is one illustration look the service can render.
type Style struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Instruction string `json:"-"`
}

var styles = map[string]Style{
	"watercolor": {
		ID:   "watercolor",
		Name: "Watercolor",
		Instruction: "Render the scene as a soft watercolor painting: visible paper texture, wet-on-wet washes, " +
			"gentle color bleeding at the edges and loose pencil under-drawing.",
	},
	"webtoon": {
		ID:   "webtoon",
		Name: "Webtoon",
		Instruction: "Render the scene as a Korean webtoon panel: clean digital line art, flat cel shading, " +
			"bright saturated colors and expressive faces with large eyes.",
	},
	"claymation": {
		ID:   "claymation",
		Name: "Claymation",
		Instruction: "Render the scene as a stop-motion clay model set: rounded sculpted forms, fingerprint texture on every surface, " +
			"miniature props and soft studio lighting.",
	},
	"pencil_sketch": {
		ID:   "pencil_sketch",
		Name: "Pencil sketch",
		Instruction: "Render the scene as a graphite pencil sketch on white paper: cross-hatched shading, " +
			"confident contour lines and no color.",
	},
	"storybook": {
		ID:   "storybook",
		Name: "Storybook",
		Instruction: "Render the scene as a children's picture book illustration: gouache textures, warm palette, " +
			"simplified shapes and a cozy, whimsical mood.",
	},
}

// LookupStyle returns the catalogue entry for id.
func LookupStyle(id string) (Style, error) {
	style, ok := styles[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Style{}, fmt.Errorf("%w: unknown style %q", domain.ErrInvalidInput, id)
	}
	return style, nil
}

// Styles lists the catalogue ordered by id.
func Styles() []Style {
	out := make([]Style, 0, len(styles))
	for _, s := range styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
