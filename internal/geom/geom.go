// Package geom provides the 2D computational-geometry primitives the
// rest of the pipeline is built on: polygons with holes, polyline
// buffering and clipping, boolean set operations, and a bulk-loaded
// spatial index for nearest-neighbor and farthest-point queries.
//
// Boolean operations and offsetting are delegated to
// github.com/aligator/go.clipper, the same polygon-clipping library
// GoSlice's own clip package wraps. Spatial indexing is delegated to
// github.com/paulmach/orb/quadtree.
package geom

import (
	"errors"
	"math"
	"sort"

	clipper "github.com/aligator/go.clipper"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/aligator/arcoverhang/internal/micro"
)

// Tolerance is the default inflate-before-boolean-ops tolerance
// (spec.md §4.A: "boundary-equality ambiguities are resolved by
// inflating with a buffer of 1e-2 before boolean ops").
const Tolerance = micro.Micrometer(10) // 1e-2 mm in micrometers

// Ring is an ordered, possibly-closed sequence of points.
type Ring []micro.Point

// Polygon is a simple region with an outer boundary and zero or more
// holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// Closed reports whether the ring's first and last point coincide.
func (r Ring) Closed() bool {
	if len(r) < 2 {
		return false
	}
	return r[0] == r[len(r)-1]
}

// AsClosed returns r with its first point appended at the end if it
// isn't already closed.
func (r Ring) AsClosed() Ring {
	if r.Closed() || len(r) == 0 {
		return r
	}
	out := make(Ring, len(r)+1)
	copy(out, r)
	out[len(r)] = r[0]
	return out
}

// LengthMM returns the total length of the polyline in millimeters.
func (r Ring) LengthMM() float64 {
	var total float64
	for i := 1; i < len(r); i++ {
		total += r[i-1].Dist(r[i])
	}
	return total / micro.Scale
}

// Area returns the signed shoelace area in square micrometers.
func (r Ring) Area() float64 {
	if len(r) < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < len(r); i++ {
		j := (i + 1) % len(r)
		sum += float64(r[i].X)*float64(r[j].Y) - float64(r[j].X)*float64(r[i].Y)
	}
	return sum / 2
}

// AreaMM2 returns the unsigned area in square millimeters.
func (p Polygon) AreaMM2() float64 {
	area := math.Abs(p.Outer.Area())
	for _, h := range p.Holes {
		area -= math.Abs(h.Area())
	}
	return area / (micro.Scale * micro.Scale)
}

// Contains reports whether pt lies in p (outer minus holes), using
// ray-casting point-in-polygon.
func (p Polygon) Contains(pt micro.Point) bool {
	if !PointInRing(pt, p.Outer) {
		return false
	}
	for _, h := range p.Holes {
		if PointInRing(pt, h) {
			return false
		}
	}
	return true
}

// PointInRing reports whether pt lies inside the (implicitly closed)
// ring r using the even-odd ray-casting rule.
func PointInRing(pt micro.Point, r Ring) bool {
	inside := false
	n := len(r)
	if n < 3 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(r[i].X), float64(r[i].Y)
		xj, yj := float64(r[j].X), float64(r[j].Y)
		px, py := float64(pt.X), float64(pt.Y)
		if (yi > py) != (yj > py) {
			xcross := (xj-xi)*(py-yi)/(yj-yi) + xi
			if px < xcross {
				inside = !inside
			}
		}
	}
	return inside
}

// Boundary returns every ring (outer + holes) making up p's boundary.
func (p Polygon) Boundary() []Ring {
	out := make([]Ring, 0, 1+len(p.Holes))
	out = append(out, p.Outer)
	out = append(out, p.Holes...)
	return out
}

// ---- clipper conversions ----

func toClipperPath(r Ring) clipper.Path {
	path := make(clipper.Path, 0, len(r))
	for _, p := range r {
		path = append(path, &clipper.IntPoint{X: clipper.CInt(p.X), Y: clipper.CInt(p.Y)})
	}
	return path
}

func fromClipperPath(p clipper.Path) Ring {
	r := make(Ring, 0, len(p))
	for _, pt := range p {
		r = append(r, micro.Point{X: micro.Micrometer(pt.X), Y: micro.Micrometer(pt.Y)})
	}
	return r
}

func toClipperPaths(p Polygon) clipper.Paths {
	paths := clipper.Paths{toClipperPath(p.Outer)}
	for _, h := range p.Holes {
		paths = append(paths, toClipperPath(h))
	}
	return paths
}

// polyTreeToPolygons walks a clipper PolyTree the same way
// clip.clipperClipper.GenerateLayerParts does: top-level children are
// outer contours, their children are holes, their children's children
// start new outer contours one level down.
func polyTreeToPolygons(tree *clipper.PolyTree) []Polygon {
	var result []Polygon
	level := tree.Childs()
	for len(level) > 0 {
		var next []*clipper.PolyNode
		for _, node := range level {
			var holes []Ring
			for _, child := range node.Childs() {
				holes = append(holes, fromClipperPath(child.Contour()))
				next = append(next, child.Childs()...)
			}
			result = append(result, Polygon{Outer: fromClipperPath(node.Contour()), Holes: holes})
		}
		level = next
	}
	return result
}

var errClipFailed = errors.New("geom: clipper execution failed")

func boolOp(subject []Polygon, clip []Polygon, op clipper.ClipType) ([]Polygon, error) {
	c := clipper.NewClipper(clipper.IoNone)
	for _, s := range subject {
		c.AddPaths(toClipperPaths(s), clipper.PtSubject, true)
	}
	for _, cl := range clip {
		c.AddPaths(toClipperPaths(cl), clipper.PtClip, true)
	}
	tree, ok := c.Execute2(op, clipper.PftNonZero, clipper.PftNonZero)
	if !ok {
		return nil, errClipFailed
	}
	return polyTreeToPolygons(tree), nil
}

// Union merges overlapping polygons (spec.md §4.C: "overlapping bridge
// polygons within a layer are unioned before validation").
func Union(polys []Polygon) ([]Polygon, error) {
	if len(polys) == 0 {
		return nil, nil
	}
	return boolOp(polys, nil, clipper.CtUnion)
}

// Intersection returns a ∩ b.
func Intersection(a, b Polygon) ([]Polygon, error) {
	return boolOp([]Polygon{a}, []Polygon{b}, clipper.CtIntersection)
}

// Difference returns a \ b.
func Difference(a, b Polygon) ([]Polygon, error) {
	return boolOp([]Polygon{a}, []Polygon{b}, clipper.CtDifference)
}

// DifferenceMulti returns a \ (union of b).
func DifferenceMulti(a Polygon, b []Polygon) ([]Polygon, error) {
	if len(b) == 0 {
		return []Polygon{a}, nil
	}
	return boolOp([]Polygon{a}, b, clipper.CtDifference)
}

// Inflate grows p's outer ring by Tolerance; used to avoid degenerate
// boundary-equality before boolean ops, per spec.md §4.A/§4.E.
func Inflate(p Polygon) (Polygon, error) {
	bufs, err := Buffer(p, Tolerance)
	if err != nil || len(bufs) == 0 {
		return p, err
	}
	return bufs[0], nil
}

// Buffer offsets a closed polygon by delta (positive grows, negative
// shrinks), using a square join / closed-polygon end type, matching
// clip.Inset's use of clipper.JtSquare/EtClosedPolygon.
func Buffer(p Polygon, delta micro.Micrometer) ([]Polygon, error) {
	o := clipper.NewClipperOffset()
	o.AddPaths(toClipperPaths(p), clipper.JtSquare, clipper.EtClosedPolygon)
	o.MiterLimit = 2
	result := o.Execute(float64(delta))
	return clipperPathsToPolygons(result), nil
}

// BufferLine offsets an open polyline by delta, producing the polygon
// that surrounds it — used to turn a bridge-infill feature's polyline
// into a BridgeRegion polygon (spec.md §4.C).
func BufferLine(line Ring, delta micro.Micrometer) ([]Polygon, error) {
	o := clipper.NewClipperOffset()
	o.AddPaths(clipper.Paths{toClipperPath(line)}, clipper.JtRound, clipper.EtOpenRound)
	o.MiterLimit = 2
	result := o.Execute(float64(delta))
	return clipperPathsToPolygons(result), nil
}

// clipperPathsToPolygons groups flat offset output into polygons by
// running a self-union so nested results become outer/hole pairs.
func clipperPathsToPolygons(paths clipper.Paths) []Polygon {
	if len(paths) == 0 {
		return nil
	}
	c := clipper.NewClipper(clipper.IoNone)
	c.AddPaths(paths, clipper.PtSubject, true)
	tree, ok := c.Execute2(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)
	if !ok {
		return nil
	}
	return polyTreeToPolygons(tree)
}

// Segmentize densifies ring r so that no segment is longer than
// maxSegLen, inserting intermediate points (spec.md §4.A "segmentize to
// a max segment length").
func Segmentize(r Ring, maxSegLen micro.Micrometer) Ring {
	if len(r) < 2 || maxSegLen <= 0 {
		return r
	}
	out := make(Ring, 0, len(r))
	for i := 0; i < len(r)-1; i++ {
		a, b := r[i], r[i+1]
		out = append(out, a)
		d := a.Dist(b)
		n := int(d / float64(maxSegLen))
		for k := 1; k <= n; k++ {
			t := float64(k) / float64(n+1)
			out = append(out, micro.Point{
				X: a.X + micro.Micrometer(float64(b.X-a.X)*t),
				Y: a.Y + micro.Micrometer(float64(b.Y-a.Y)*t),
			})
		}
	}
	out = append(out, r[len(r)-1])
	return out
}

// DistPointToSegment returns the distance from pt to the segment a-b.
func DistPointToSegment(pt, a, b micro.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return pt.Dist(a)
	}
	t := (float64(pt.X-a.X)*dx + float64(pt.Y-a.Y)*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	proj := micro.Point{X: a.X + micro.Micrometer(dx*t), Y: a.Y + micro.Micrometer(dy*t)}
	return pt.Dist(proj)
}

// DistPointToRing returns the minimum distance from pt to any segment
// of ring r, including the closing edge back to r[0] when r isn't
// already explicitly closed (most rings coming out of clipper-backed
// ops in this package aren't).
func DistPointToRing(pt micro.Point, r Ring) float64 {
	best := math.Inf(1)
	for i := 0; i < len(r)-1; i++ {
		d := DistPointToSegment(pt, r[i], r[i+1])
		if d < best {
			best = d
		}
	}
	if len(r) > 1 && !r.Closed() {
		if d := DistPointToSegment(pt, r[len(r)-1], r[0]); d < best {
			best = d
		}
	}
	return best
}

// segmentIntersect returns the intersection point of segments p1-p2
// and p3-p4, if any, using the standard parametric line-intersection
// formula.
func segmentIntersect(p1, p2, p3, p4 micro.Point) (micro.Point, bool) {
	x1, y1 := float64(p1.X), float64(p1.Y)
	x2, y2 := float64(p2.X), float64(p2.Y)
	x3, y3 := float64(p3.X), float64(p3.Y)
	x4, y4 := float64(p4.X), float64(p4.Y)

	denom := (x1-x2)*(y3-y4) - (y1-y2)*(x3-x4)
	if math.Abs(denom) < 1e-9 {
		return micro.Point{}, false
	}
	t := ((x1-x3)*(y3-y4) - (y1-y3)*(x3-x4)) / denom
	u := ((x1-x3)*(y1-y2) - (y1-y3)*(x1-x2)) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return micro.Point{}, false
	}
	return micro.Point{
		X: micro.Micrometer(x1 + t*(x2-x1)),
		Y: micro.Micrometer(y1 + t*(y2-y1)),
	}, true
}

// paramAlong returns pt's parametric position t on segment a-b (pt is
// assumed to already lie on that segment), used to order multiple
// boundary crossings found on the same segment.
func paramAlong(a, b, pt micro.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	if dx == 0 && dy == 0 {
		return 0
	}
	if math.Abs(dx) >= math.Abs(dy) {
		return float64(pt.X-a.X) / dx
	}
	return float64(pt.Y-a.Y) / dy
}

// ClipOpenRingToPolygon clips an open polyline to the parts that lie
// within polygon p, splitting at boundary crossings. Used for clipping
// a full-circle sample polyline to the remaining-to-fill region
// (spec.md §4.F).
func ClipOpenRingToPolygon(line Ring, p Polygon) []Ring {
	if len(line) == 0 {
		return nil
	}

	type mark struct {
		pt     micro.Point
		inside bool
	}

	var marks []mark
	marks = append(marks, mark{line[0], p.Contains(line[0])})
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]

		// A segment can cross more than one boundary ring (e.g. the outer
		// ring and a hole); collecting crossings per-ring and appending them
		// in ring order would interleave them out of travel order along
		// a-b, so every crossing on this segment is first gathered with its
		// own parametric t and sorted before being folded into marks.
		type crossing struct {
			t  float64
			pt micro.Point
		}
		var crossings []crossing
		for _, ring := range p.Boundary() {
			closed := ring.AsClosed()
			for j := 0; j < len(closed)-1; j++ {
				if ip, ok := segmentIntersect(a, b, closed[j], closed[j+1]); ok {
					t := paramAlong(a, b, ip)
					crossings = append(crossings, crossing{t, ip})
				}
			}
		}
		sort.Slice(crossings, func(i, j int) bool { return crossings[i].t < crossings[j].t })
		// A crossing closes the current piece when leaving p and opens a
		// new one when entering it, so both ends of a piece keep their
		// crossing point. A crossing through a boundary vertex is found
		// on both adjacent edges and counts once.
		inside := p.Contains(a)
		for k, c := range crossings {
			if k > 0 && c.pt == crossings[k-1].pt {
				continue
			}
			if inside {
				marks = append(marks, mark{c.pt, true}, mark{c.pt, false})
			} else {
				marks = append(marks, mark{c.pt, false}, mark{c.pt, true})
			}
			inside = !inside
		}

		marks = append(marks, mark{b, p.Contains(b)})
	}

	var result []Ring
	var cur Ring
	for _, m := range marks {
		if m.inside {
			cur = append(cur, m.pt)
		} else if len(cur) > 0 {
			if len(cur) >= 2 {
				result = append(result, cur)
			}
			cur = nil
		}
	}
	if len(cur) >= 2 {
		result = append(result, cur)
	}
	return result
}

// NearCommonBoundary walks ring a and returns the maximal runs of
// points that lie within tolerance of ring b, merged into polylines.
// This implements spec.md §4.E's "∂startArea ∩ ∂P (buffered 1e-2)"
// without relying on clipper's limited open-path boolean support.
func NearCommonBoundary(a, b Ring, tolerance micro.Micrometer) []Ring {
	tol := float64(tolerance)
	var result []Ring
	var cur Ring
	for _, pt := range a {
		if DistPointToRing(pt, b) <= tol {
			cur = append(cur, pt)
		} else if len(cur) > 0 {
			if len(cur) >= 2 {
				result = append(result, cur)
			}
			cur = nil
		}
	}
	if len(cur) >= 2 {
		result = append(result, cur)
	}
	return result
}

// LineMerge greedily joins polylines that share an endpoint, the way
// shapely.ops.linemerge does, so fragmented boundary runs become
// contiguous polylines.
func LineMerge(lines []Ring) []Ring {
	remaining := append([]Ring(nil), lines...)
	var merged []Ring

	for len(remaining) > 0 {
		cur := remaining[0]
		remaining = remaining[1:]

		changed := true
		for changed {
			changed = false
			for i, other := range remaining {
				if len(other) == 0 || len(cur) == 0 {
					continue
				}
				switch {
				case cur[len(cur)-1] == other[0]:
					cur = append(cur, other[1:]...)
				case cur[len(cur)-1] == other[len(other)-1]:
					cur = append(cur, reverseRing(other[:len(other)-1])...)
				case cur[0] == other[len(other)-1]:
					cur = append(append(Ring{}, other...), cur[1:]...)
				case cur[0] == other[0]:
					cur = append(reverseRing(other[1:]), cur...)
				default:
					continue
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				changed = true
				break
			}
		}
		merged = append(merged, cur)
	}
	return merged
}

func reverseRing(r Ring) Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}

// Longest returns the longest ring by length, and true if rings is
// non-empty.
func Longest(rings []Ring) (Ring, bool) {
	if len(rings) == 0 {
		return nil, false
	}
	best := rings[0]
	for _, r := range rings[1:] {
		if r.LengthMM() > best.LengthMM() {
			best = r
		}
	}
	return best, true
}

// ---- spatial index ----

// IndexedPoint is a point carried by Index along with an opaque
// reference back to owning geometry, per spec.md §3's "spatial indices
// exclusively own lightweight references to geometries whose lifetime
// must exceed them".
type IndexedPoint struct {
	P   micro.Point
	Ref any
}

// Index is a bulk-loaded, read-only-after-construction spatial index
// over a fixed set of points, backed by an orb quadtree.
type Index struct {
	tree   *quadtree.Quadtree
	lookup map[orb.Pointer]IndexedPoint
}

type orbPoint struct {
	p   orb.Point
	idx int
}

func (o orbPoint) Point() orb.Point { return o.p }

// NewIndex bulk-loads an Index over points. The index is immutable
// after construction.
func NewIndex(points []IndexedPoint) *Index {
	if len(points) == 0 {
		return &Index{lookup: map[orb.Pointer]IndexedPoint{}}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, ip := range points {
		x, y := ip.P.ToMM()
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	// Guard against a degenerate (zero-area) bound.
	if minX == maxX {
		maxX += 1
	}
	if minY == maxY {
		maxY += 1
	}

	tree := quadtree.New(orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}})
	lookup := make(map[orb.Pointer]IndexedPoint, len(points))
	for i, ip := range points {
		x, y := ip.P.ToMM()
		op := orbPoint{p: orb.Point{x, y}, idx: i}
		_ = tree.Add(op)
		lookup[op] = ip
	}
	return &Index{tree: tree, lookup: lookup}
}

// Nearest returns the indexed point nearest to p.
func (ix *Index) Nearest(p micro.Point) (IndexedPoint, bool) {
	if ix.tree == nil {
		return IndexedPoint{}, false
	}
	x, y := p.ToMM()
	found := ix.tree.Find(orb.Point{x, y})
	if found == nil {
		return IndexedPoint{}, false
	}
	ip, ok := ix.lookup[found]
	return ip, ok
}

// FarthestFromRing returns the n farthest points in from (sorted
// descending by distance) from ring to's boundary, implementing
// spec.md §4.G step 2 ("the N = AllowedArcRetries+1 farthest points on
// ∂filled_space from ∂P").
//
// Distance from a point to to's nearest vertex is always >= that
// point's true (segment-to-segment) distance to to: the closest point
// on any segment touching that vertex is never farther away than the
// vertex itself. That makes the Index's nearest-vertex query a cheap
// upper bound, which is usable for branch-and-bound pruning: points are
// visited in descending upper-bound order and scored exactly against
// to, tracking the worst (n-th largest) exact distance found so far. As
// soon as a point's upper bound can't beat that running threshold,
// every point still unvisited has an equal-or-smaller upper bound (they
// come later in descending order) and so can't beat it either, and the
// scan stops. Unlike a fixed-size shortlist, this never discards the
// true farthest point.
func FarthestFromRing(from Ring, to Ring, n int) []micro.Point {
	if len(from) == 0 || n <= 0 {
		return nil
	}
	if len(to) == 0 {
		n = min(n, len(from))
		return append([]micro.Point(nil), from[:n]...)
	}
	return FarthestFromIndexedRing(from, NewRingIndex(to), to, n)
}

// NewRingIndex builds the spatial index FarthestFromIndexedRing needs
// for ring to, so a caller that queries the same to repeatedly (e.g.
// archfill.Fill's frontier loop, where poly.Outer never changes across
// iterations) can build it once and reuse it instead of paying
// FarthestFromRing's per-call index construction every time.
func NewRingIndex(to Ring) *Index {
	toPoints := make([]IndexedPoint, len(to))
	for i, p := range to {
		toPoints[i] = IndexedPoint{P: p}
	}
	return NewIndex(toPoints)
}

// FarthestFromIndexedRing is FarthestFromRing with to's Index
// precomputed by NewRingIndex, for callers that invoke it many times
// against the same to.
func FarthestFromIndexedRing(from Ring, ix *Index, to Ring, n int) []micro.Point {
	if len(from) == 0 || n <= 0 {
		return nil
	}
	if len(to) == 0 {
		n = min(n, len(from))
		return append([]micro.Point(nil), from[:n]...)
	}

	type bound struct {
		p    micro.Point
		uppr float64
	}
	bounds := make([]bound, 0, len(from))
	for _, p := range from {
		ub := 0.0
		if nearest, ok := ix.Nearest(p); ok {
			ub = p.Dist(nearest.P)
		}
		bounds = append(bounds, bound{p, ub})
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].uppr > bounds[j].uppr })

	type exact struct {
		p micro.Point
		d float64
	}
	best := make([]exact, 0, n)
	worstKept := math.Inf(-1)

	for _, b := range bounds {
		if len(best) >= n && b.uppr <= worstKept {
			break
		}
		d := DistPointToRing(b.p, to)
		best = append(best, exact{b.p, d})
		sort.Slice(best, func(i, j int) bool { return best[i].d > best[j].d })
		if len(best) > n {
			best = best[:n]
		}
		if len(best) >= n {
			worstKept = best[len(best)-1].d
		}
	}

	out := make([]micro.Point, len(best))
	for i, e := range best {
		out[i] = e.p
	}
	return out
}

// FarthestDistance is a convenience wrapper returning just the largest
// distance found by FarthestFromRing.
func FarthestDistance(from Ring, to Ring) float64 {
	pts := FarthestFromRing(from, to, 1)
	if len(pts) == 0 {
		return 0
	}
	return DistPointToRing(pts[0], to)
}
