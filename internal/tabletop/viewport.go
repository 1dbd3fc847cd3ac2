package tabletop

import "math"

// Point is a 2D coordinate, in screen pixels or map units depending on use.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ViewportConfig bounds and tunes a viewport.
type ViewportConfig struct {
	MinScale        float64
	MaxScale        float64
	ZoomSensitivity float64

	// ZoomAroundPivot keeps the map point under the pivot fixed on screen.
	// When false, zoom scales around the viewport origin.
	ZoomAroundPivot bool
}

// DefaultViewportConfig matches the stock configuration.
var DefaultViewportConfig = ViewportConfig{
	MinScale:        0.1,
	MaxScale:        5.0,
	ZoomSensitivity: 0.001,
}

// Viewport is one viewer's local pan/zoom. It is never persisted or shared.
// The transform is translate-then-scale:
//
//	screen = offset + scale*map
type Viewport struct {
	Scale  float64 `json:"scale"`
	Offset Point   `json:"offset"`
	cfg    ViewportConfig
}

// NewViewport returns an identity viewport (scale 1, no offset, clamped to
// the configured range).
func NewViewport(cfg ViewportConfig) Viewport {
	v := Viewport{Scale: 1, cfg: cfg}
	v.Scale = v.clamp(v.Scale)
	return v
}

// Pan translates the view by a screen-space delta. Panning is unbounded.
func (v *Viewport) Pan(dx, dy float64) {
	v.Offset.X += dx
	v.Offset.Y += dy
}

// Zoom changes the scale by delta*sensitivity, where a positive delta (a
// wheel scrolled towards the user) zooms out. The result is silently
// clamped to [MinScale, MaxScale].
func (v *Viewport) Zoom(delta float64, pivot Point) {
	next := v.clamp(v.Scale - delta*v.cfg.ZoomSensitivity)
	if v.cfg.ZoomAroundPivot && next != v.Scale {
		ratio := next / v.Scale
		v.Offset.X = pivot.X - (pivot.X-v.Offset.X)*ratio
		v.Offset.Y = pivot.Y - (pivot.Y-v.Offset.Y)*ratio
	}
	v.Scale = next
}

// SetScale sets the scale directly, clamped.
func (v *Viewport) SetScale(scale float64) {
	v.Scale = v.clamp(scale)
}

// ScreenToMap maps a screen point into map space.
func (v Viewport) ScreenToMap(p Point) Point {
	return Point{
		X: (p.X - v.Offset.X) / v.Scale,
		Y: (p.Y - v.Offset.Y) / v.Scale,
	}
}

// MapToScreen maps a map-space point onto the screen.
func (v Viewport) MapToScreen(p Point) Point {
	return Point{
		X: v.Offset.X + p.X*v.Scale,
		Y: v.Offset.Y + p.Y*v.Scale,
	}
}

func (v Viewport) clamp(s float64) float64 {
	if math.IsNaN(s) {
		return v.cfg.MinScale
	}
	if s < v.cfg.MinScale {
		return v.cfg.MinScale
	}
	if s > v.cfg.MaxScale {
		return v.cfg.MaxScale
	}
	return s
}
