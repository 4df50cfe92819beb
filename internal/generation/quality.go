package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
	"illustrator/internal/providers/image"
)

// Scored dimensions.
const (
	DimensionIllustrationCompleteness = "illustration_completeness"
	DimensionCharacterConsistency     = "character_consistency"
	DimensionEnvironmentCompleteness  = "environment_completeness"
)

const (
	completenessThreshold        = 7
	consistencyThreshold         = 6
	consistencyThresholdNoAnchor = 5
	missingScore                 = 10
)

const scoreSchema = `{
  "type": "object",
  "properties": {
    "illustration_completeness": {"type": "integer", "minimum": 1, "maximum": 10},
    "character_consistency": {"type": "integer", "minimum": 1, "maximum": 10},
    "environment_completeness": {"type": "integer", "minimum": 1, "maximum": 10}
  }
}`

const scorerInstruction = `You grade an AI illustration made from a photo. Reply with JSON only:
{"illustration_completeness": 1-10, "character_consistency": 1-10, "environment_completeness": 1-10}
illustration_completeness: how much of the frame is illustrated rather than photographic.
character_consistency: how well people and animals keep their identity%s.
environment_completeness: how fully the background surfaces were redrawn.`

// Verdict is the outcome of one quality check.
type Verdict struct {
	Pass             bool
	FailedDimensions []string
	Scores           map[string]int
}

// QualityGate grades candidates with an auxiliary model. It never blocks generation:
// any scorer or parse error yields a passing verdict.
type QualityGate struct {
	scorer  image.Scorer
	timeout time.Duration
	logger  zerolog.Logger
	metrics *infra.Metrics
	schema  *jsonschema.Schema
}

func NewQualityGate(scorer image.Scorer, timeout time.Duration, logger zerolog.Logger, metrics *infra.Metrics) (*QualityGate, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("score.json", strings.NewReader(scoreSchema)); err != nil {
		return nil, fmt.Errorf("add score schema: %w", err)
	}
	schema, err := compiler.Compile("score.json")
	if err != nil {
		return nil, fmt.Errorf("compile score schema: %w", err)
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &QualityGate{scorer: scorer, timeout: timeout, logger: logger, metrics: metrics, schema: schema}, nil
}

// Assess scores candidate. hasAnchor relaxes the consistency threshold when false.
func (g *QualityGate) Assess(ctx context.Context, candidate image.Part, scene *domain.SceneAnalysis, hasAnchor bool) Verdict {
	if g == nil || g.scorer == nil {
		return Verdict{Pass: true}
	}

	anchorNote := ""
	if hasAnchor {
		anchorNote = " and match the earlier illustrations of the same set"
	}
	parts := []image.Part{image.TextPart(fmt.Sprintf(scorerInstruction, anchorNote))}
	if s := renderScene(scene); s != "" {
		parts = append(parts, image.TextPart(s))
	}
	parts = append(parts, candidate)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	raw, err := g.scorer.Score(callCtx, parts)
	if err != nil {
		g.logger.Warn().Err(err).Msg("quality: scorer call failed; passing candidate")
		g.metrics.QualityVerdict(true)
		return Verdict{Pass: true}
	}
	scores, err := g.parse(raw)
	if err != nil {
		g.logger.Warn().Err(err).Msg("quality: unreadable score; passing candidate")
		g.metrics.QualityVerdict(true)
		return Verdict{Pass: true}
	}

	verdict := Evaluate(scores, hasAnchor)
	g.metrics.QualityVerdict(verdict.Pass)
	return verdict
}

// Evaluate applies the thresholds. A dimension missing from scores counts as a perfect score.
func Evaluate(scores map[string]int, hasAnchor bool) Verdict {
	consistency := consistencyThresholdNoAnchor
	if hasAnchor {
		consistency = consistencyThreshold
	}
	thresholds := []struct {
		dimension string
		min       int
	}{
		{DimensionIllustrationCompleteness, completenessThreshold},
		{DimensionCharacterConsistency, consistency},
		{DimensionEnvironmentCompleteness, completenessThreshold},
	}

	v := Verdict{Pass: true, Scores: make(map[string]int, len(thresholds))}
	for _, th := range thresholds {
		score, ok := scores[th.dimension]
		if !ok {
			score = missingScore
		}
		v.Scores[th.dimension] = score
		if score < th.min {
			v.Pass = false
			v.FailedDimensions = append(v.FailedDimensions, th.dimension)
		}
	}
	return v
}

func (g *QualityGate) parse(raw string) (map[string]int, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, fmt.Errorf("no json in scorer output")
	}
	var doc any
	if err := json.Unmarshal([]byte(fragment), &doc); err != nil {
		return nil, fmt.Errorf("decode score: %w", err)
	}
	if err := g.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("score does not match schema: %w", err)
	}
	obj, _ := doc.(map[string]any)
	scores := make(map[string]int, 3)
	for _, dim := range []string{DimensionIllustrationCompleteness, DimensionCharacterConsistency, DimensionEnvironmentCompleteness} {
		if n, ok := obj[dim].(float64); ok {
			scores[dim] = int(n)
		}
	}
	return scores, nil
}

func extractJSONFragment(raw string) string {
	text := trimCodeFence(strings.TrimSpace(raw))
	start := strings.IndexAny(text, "{")
	end := strings.LastIndexAny(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func trimCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
