package extract

import (
	"math"

	"github.com/hbollon/go-edlib"
)

// suspiciousGrowthPercent flags rendering deltas where JavaScript
// appears to have grown the DOM more than 10x, which usually indicates
// an infinite-render loop or an injected third-party payload rather
// than genuine content.
const suspiciousGrowthPercent = 1000

// ComputeRenderingDelta compares the raw and rendered HTML of a page
// and quantifies how much JavaScript changed it.
func ComputeRenderingDelta(rawHTML, renderedHTML string) *RenderingDelta {
	similarity := 1.0
	if rawHTML != renderedHTML {
		// Jaro similarity stays linear on large documents where
		// edit-distance measures would not.
		similarity = float64(edlib.JaroSimilarity(rawHTML, renderedHTML))
	}
	return renderingDelta(len(rawHTML), len(renderedHTML), similarity)
}

// renderingDelta computes the delta from lengths and a precomputed
// similarity. Growth reports rendered/initial as a percentage, uncapped
// but flagged suspicious past 1000%. Shrinkage reports similarity*100
// so a near-identical smaller DOM (whitespace collapsed, comments
// stripped) is not mistaken for content loss.
func renderingDelta(initialLength, renderedLength int, similarity float64) *RenderingDelta {
	delta := &RenderingDelta{
		InitialLength:  initialLength,
		RenderedLength: renderedLength,
	}

	switch {
	case initialLength == 0 && renderedLength == 0:
		delta.Percentage = 100
	case initialLength == 0:
		// Fully client-rendered page; no meaningful ratio exists.
		delta.Percentage = 100
		delta.Suspicious = true
	case renderedLength >= initialLength:
		delta.Percentage = roundTenth(float64(renderedLength) / float64(initialLength) * 100)
		delta.Suspicious = delta.Percentage > suspiciousGrowthPercent
	default:
		pct := similarity * 100
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		delta.Percentage = roundTenth(pct)
	}

	return delta
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
