package services

import (
	"encoding/json"

	"github.com/panelproof/engine/internal/geometry"
	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// Conversions between the JSONB world of the data model and the geometry
// package, shared by the registration, validation, and governance
// services.

func toPolygon(pts []models.PointJSON) geometry.Polygon {
	pg := make(geometry.Polygon, len(pts))
	for i, p := range pts {
		pg[i] = geometry.Point{X: p.X, Y: p.Y}
	}
	return pg
}

func decodeBoundary(pgm *models.PlanGeometryModel) (geometry.Polygon, error) {
	if len(pgm.SiteBoundary) == 0 {
		return nil, nil
	}
	var pts []models.PointJSON
	if err := json.Unmarshal(pgm.SiteBoundary, &pts); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode site boundary failed")
	}
	return toPolygon(pts), nil
}

type noGoZone struct {
	polygon geometry.Polygon
	label   string
}

func decodeNoGoZones(pgm *models.PlanGeometryModel) ([]noGoZone, error) {
	if len(pgm.NoGoZones) == 0 {
		return nil, nil
	}
	var raw []models.NoGoZone
	if err := json.Unmarshal(pgm.NoGoZones, &raw); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode no-go zones failed")
	}
	zones := make([]noGoZone, 0, len(raw))
	for _, z := range raw {
		zones = append(zones, noGoZone{polygon: toPolygon(z.Polygon), label: z.Label})
	}
	return zones, nil
}

func decodeRequirements(pgm *models.PlanGeometryModel) (*models.PanelMapRequirements, error) {
	if len(pgm.PanelMapRequirements) == 0 {
		return nil, nil
	}
	var reqs models.PanelMapRequirements
	if err := json.Unmarshal(pgm.PanelMapRequirements, &reqs); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode panel map requirements failed")
	}
	return &reqs, nil
}

// planExtents prefers the site boundary's bounding box and falls back to
// the recorded width/height extents anchored at the origin.
func planExtents(pgm *models.PlanGeometryModel) (geometry.Bounds, error) {
	boundary, err := decodeBoundary(pgm)
	if err != nil {
		return geometry.Bounds{}, err
	}
	if b, ok := boundary.Bounds(); ok && len(boundary) >= 3 {
		return b, nil
	}
	return geometry.Bounds{MinX: 0, MinY: 0, MaxX: pgm.SiteWidth, MaxY: pgm.SiteHeight}, nil
}

func affineFromModel(t *models.LayoutTransform) geometry.Affine {
	return geometry.Affine{
		TranslateX:      t.TranslationX,
		TranslateY:      t.TranslationY,
		RotationDegrees: t.RotationDegrees,
		ScaleX:          t.ScaleX,
		ScaleY:          t.ScaleY,
		SkewX:           t.SkewX,
		SkewY:           t.SkewY,
	}
}

// panelFootprint returns the rotated corner polygon of a panel.
func panelFootprint(p *models.Panel) geometry.Polygon {
	return geometry.Polygon(geometry.RotatedRectCorners(p.X, p.Y, p.Width, p.Height, p.Rotation))
}

func patchBounds(p *models.Patch) geometry.Bounds {
	return geometry.SquareBounds(p.X, p.Y, p.Radius)
}

func testBounds(d *models.DestructiveTest) geometry.Bounds {
	return geometry.RectBounds(d.X, d.Y, d.Width, d.Height)
}

func boundsCorners(b geometry.Bounds) []geometry.Point {
	return []geometry.Point{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY},
		{X: b.MinX, Y: b.MaxY},
	}
}

// layoutBounds is the union bounding box of every item footprint.
func layoutBounds(d *models.LayoutData) (geometry.Bounds, bool) {
	var out geometry.Bounds
	found := false
	add := func(b geometry.Bounds) {
		if !found {
			out = b
			found = true
			return
		}
		out = geometry.Union(out, b)
	}
	for i := range d.Panels {
		corners := panelFootprint(&d.Panels[i])
		if b, ok := geometry.BoundsOfPoints(corners); ok {
			add(b)
		}
	}
	for i := range d.Patches {
		add(patchBounds(&d.Patches[i]))
	}
	for i := range d.DestructiveTests {
		add(testBounds(&d.DestructiveTests[i]))
	}
	return out, found
}
