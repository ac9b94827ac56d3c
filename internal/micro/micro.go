// Package micro provides the integer-micrometer scalar and point types
// used throughout the geometry pipeline, mirroring GoSlice's own
// Micrometer-scaled-integer coordinate model.
package micro

import "math"

// Scale converts a millimeter float value to the integer Micrometer scalar.
const Scale = 1000

// Micrometer is a coordinate or length expressed in integer micrometers.
// Using integers instead of float64 throughout the geometry pipeline
// avoids boundary-equality ambiguities in repeated boolean operations.
type Micrometer int64

// FromMM converts a millimeter float value to Micrometer.
func FromMM(mm float64) Micrometer {
	return Micrometer(math.Round(mm * Scale))
}

// ToMM converts back to a millimeter float value.
func (m Micrometer) ToMM() float64 {
	return float64(m) / Scale
}

// Point is a 2D point in micrometer coordinates.
type Point struct {
	X, Y Micrometer
}

// NewPoint creates a new Point.
func NewPoint(x, y Micrometer) Point {
	return Point{X: x, Y: y}
}

// PointFromMM creates a Point from millimeter coordinates.
func PointFromMM(x, y float64) Point {
	return Point{X: FromMM(x), Y: FromMM(y)}
}

// ToMM returns the point as millimeter float coordinates.
func (p Point) ToMM() (float64, float64) {
	return p.X.ToMM(), p.Y.ToMM()
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{p.X - o.X, p.Y - o.Y}
}

// Add returns p + o.
func (p Point) Add(o Point) Point {
	return Point{p.X + o.X, p.Y + o.Y}
}

// Size returns the euclidean length of p interpreted as a vector.
func (p Point) Size() Micrometer {
	return Micrometer(math.Hypot(float64(p.X), float64(p.Y)))
}

// ShorterThanOrEqual reports whether the vector length of p is <= d.
func (p Point) ShorterThanOrEqual(d Micrometer) bool {
	return p.Size() <= d
}

// Dist returns the euclidean distance between p and o, in micrometers.
func (p Point) Dist(o Point) float64 {
	d := p.Sub(o)
	return math.Hypot(float64(d.X), float64(d.Y))
}
