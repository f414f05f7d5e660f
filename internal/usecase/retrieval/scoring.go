package retrieval

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/coursedesk/faqsearch/internal/domain"
)

// neutralVectorScore stands in for a vector hit whose distance is not a
// usable number.
const neutralVectorScore = 0.7

// Policy is the scoring policy for one deployment. Scores are relative
// ranking weights on a shared scale, so keyword and vector candidates can
// be merged into one ordered list. The constants live in configuration;
// changing them reorders results but never breaks the merge contract.
type Policy struct {
	PublicBase         float64
	InternalBase       float64
	QuestionMatchBonus float64
	QuestionTokenBonus float64
	ContentTokenBonus  float64
	VectorScoreFloor   float64
	VectorScoreCeiling float64
}

// tokenize lowercases the query and splits it on whitespace, keeping only
// tokens longer than one rune. Single-rune tokens match too broadly to
// carry ranking signal.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// scoreKeyword computes the relevance weight of a keyword-matched entry.
// Internal entries start from a higher base since operator-authored content
// is presumed more detailed. Question matches outweigh content matches.
func (p Policy) scoreKeyword(e domain.Entry, loweredQuery string, tokens []string) float64 {
	score := p.PublicBase
	if e.Partition == domain.PartitionInternal {
		score = p.InternalBase
	}

	question := strings.ToLower(e.Question)
	content := strings.ToLower(e.Content)

	if strings.Contains(question, loweredQuery) {
		score += p.QuestionMatchBonus
	}
	for _, tok := range tokens {
		if strings.Contains(question, tok) {
			score += p.QuestionTokenBonus
		}
		if strings.Contains(content, tok) {
			score += p.ContentTokenBonus
		}
	}
	return score
}

// scoreDistance maps a cosine distance onto the keyword score scale. The
// clamp keeps vector hits comparable in magnitude to keyword hits without
// ever reaching the extremes of the range.
func (p Policy) scoreDistance(distance float64) float64 {
	// A zero-magnitude chunk embedding makes cosine distance NaN; treat it
	// as a neutral mid-range match rather than letting NaN escape the clamp
	// and poison the sort.
	if math.IsNaN(distance) {
		return p.clampVector(neutralVectorScore)
	}
	if distance < 0 {
		distance = 0
	}
	return p.clampVector(1 / (1 + distance))
}

// clampVector bounds a vector score into [floor, ceiling].
func (p Policy) clampVector(score float64) float64 {
	if score < p.VectorScoreFloor {
		return p.VectorScoreFloor
	}
	if score > p.VectorScoreCeiling {
		return p.VectorScoreCeiling
	}
	return score
}
