// Package validate implements the overhang validator (spec.md §4.D):
// which bridge-infill polygons on a layer qualify as overhangs needing
// arc replacement, and the forward annotation of accepted polygons onto
// the following layers' oldpolys lists for later cooling-zone rewrite
// (spec.md §9 "Forward layer references").
package validate

import (
	"fmt"

	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/warn"
)

// Region is a validated overhang polygon plus the bookkeeping needed
// to delete its source feature later (spec.md §3 "BridgeRegion").
type Region struct {
	ID          string
	Polygon     geom.Polygon
	LayerIndex  int
	FeatureIdx  int // index into the layer's Features slice
}

// LayerGeometry bundles the per-layer inputs the validator needs.
type LayerGeometry struct {
	LayerIndex              int
	Z                       float64
	BridgeCandidates        []geom.Polygon
	BridgeFeatureIdx        []int
	OverhangPerimeterLines  []geom.Ring
	AllowedSpace            *geom.Polygon // optional
}

// PrevLayerGeometry bundles the previous layer's external-perimeter
// polygon(s) used for internal-bridging detection.
type PrevLayerGeometry struct {
	ExternalPerimeters []geom.Polygon
}

// Validate runs spec.md §4.D's four-part test over one layer's merged
// bridge-infill candidates, returning the accepted Regions.
func Validate(lg LayerGeometry, prev PrevLayerGeometry, p config.Parameters, reporter *warn.Reporter) []Region {
	var accepted []Region

	for idx, poly := range lg.BridgeCandidates {
		id := fmt.Sprintf("L%d-B%d", lg.LayerIndex, idx)

		if len(poly.Outer) < 3 {
			reporter.Advisory("layer %d region %s: invalid geometry, skipped", lg.LayerIndex, id)
			continue
		}

		if lg.AllowedSpace != nil {
			inter, err := geom.Intersection(poly, *lg.AllowedSpace)
			if err != nil || len(inter) == 0 {
				reporter.Advisory("layer %d region %s: outside AllowedSpaceForArcs, skipped", lg.LayerIndex, id)
				continue
			}
		}

		area := poly.AreaMM2()
		if area < p.MinArea {
			reporter.Advisory("layer %d region %s: area %.2f mm^2 below MinArea %.2f", lg.LayerIndex, id, area, p.MinArea)
			continue
		}

		if !closeToOverhangPerimeter(poly, lg.OverhangPerimeterLines, p.PerimeterExtrusionWidth) &&
			!overlapsPreviousExternalPerimeter(poly, prev.ExternalPerimeters) {
			reporter.Advisory("layer %d region %s: not adjacent to an overhang perimeter and no internal bridging overlap", lg.LayerIndex, id)
			continue
		}

		accepted = append(accepted, Region{
			ID:         id,
			Polygon:    poly,
			LayerIndex: lg.LayerIndex,
			FeatureIdx: lg.BridgeFeatureIdx[idx],
		})
	}

	return accepted
}

// closeToOverhangPerimeter implements spec.md §4.D condition 4(a):
// "close (within 2x perimeter width) to any overhang-perimeter
// polyline on the same layer".
func closeToOverhangPerimeter(poly geom.Polygon, overhangLines []geom.Ring, perimeterWidth float64) bool {
	if len(overhangLines) == 0 {
		return false
	}
	threshold := perimeterWidth * 2 * 1000 // mm -> micrometers
	for _, line := range overhangLines {
		for _, pt := range poly.Outer {
			if geom.DistPointToRing(pt, line) <= threshold {
				return true
			}
		}
	}
	return false
}

// overlapsPreviousExternalPerimeter implements spec.md §4.D condition
// 4(b): "overlaps (in the strict topological sense) any external
// perimeter polygon of the previous layer".
func overlapsPreviousExternalPerimeter(poly geom.Polygon, prevExternal []geom.Polygon) bool {
	for _, ext := range prevExternal {
		inter, err := geom.Intersection(poly, ext)
		if err == nil && len(inter) > 0 {
			return true
		}
	}
	return false
}

// AnnotateForward pushes accepted regions onto the oldpolys set of
// every following layer whose Z is within specialCoolingZdist of the
// overhang layer (spec.md §4.D). It returns nothing: it appends into
// the caller's oldPolys map, keyed by layer index, append-only and
// built during a single forward pass, per spec.md §5/§9.
func AnnotateForward(regions []Region, layerZ map[int]float64, specialCoolingZdist float64, oldPolys map[int][]Region) {
	if len(regions) == 0 {
		return
	}
	baseZ, ok := layerZ[regions[0].LayerIndex]
	if !ok {
		return
	}
	for layerIdx, z := range layerZ {
		if layerIdx <= regions[0].LayerIndex {
			continue
		}
		if z-baseZ > specialCoolingZdist {
			continue
		}
		oldPolys[layerIdx] = append(oldPolys[layerIdx], regions...)
	}
}
