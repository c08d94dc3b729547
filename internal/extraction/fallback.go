package extraction

import (
	"regexp"
	"strconv"

	"github.com/panelproof/engine/internal/models"
)

// Default site extents used when nothing better can be read from the
// documents.
const (
	DefaultSiteWidth  = 1000.0
	DefaultSiteHeight = 800.0

	fallbackConfidence  = 0.2
	heuristicConfidence = 0.3
)

// Matches figures like "120 x 80", "120ft x 80ft", "120 × 80".
var dimensionRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ft|feet|m|meters)?\s*[x×]\s*(\d+(?:\.\d+)?)`)

// FallbackGeometry builds a minimal plan geometry from whatever dimension
// figures a text scan finds. It never fails; extraction must not block
// the rest of the pipeline.
func FallbackGeometry(docs []Document) (*GeometryPayload, float64) {
	width := DefaultSiteWidth
	height := DefaultSiteHeight
	confidence := fallbackConfidence

	for _, d := range docs {
		m := dimensionRe.FindStringSubmatch(d.TextContent)
		if m == nil {
			continue
		}
		w, err1 := strconv.ParseFloat(m[1], 64)
		h, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && w > 0 && h > 0 {
			width = w
			height = h
			confidence = heuristicConfidence
			break
		}
	}

	return &GeometryPayload{
		SiteBoundary: []models.PointJSON{},
		SiteWidth:    width,
		SiteHeight:   height,
		Units:        "ft",
	}, confidence
}
