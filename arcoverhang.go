// Package arcoverhang wires the whole post-processing pipeline
// together: tokenize -> per layer (extract -> validate -> start
// geometry -> arc fill -> emit) -> (Hilbert fill -> emit for following
// layers) -> rewrite -> write file, mirroring GoSlice's own
// Process()-drives-a-modifier-pipeline control flow (spec.md §2).
package arcoverhang

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/aligator/arcoverhang/internal/archfill"
	"github.com/aligator/arcoverhang/internal/config"
	"github.com/aligator/arcoverhang/internal/feature"
	"github.com/aligator/arcoverhang/internal/geom"
	"github.com/aligator/arcoverhang/internal/hilbertfill"
	"github.com/aligator/arcoverhang/internal/micro"
	"github.com/aligator/arcoverhang/internal/motion"
	"github.com/aligator/arcoverhang/internal/rewrite"
	"github.com/aligator/arcoverhang/internal/startgeom"
	"github.com/aligator/arcoverhang/internal/toolpath"
	"github.com/aligator/arcoverhang/internal/validate"
	"github.com/aligator/arcoverhang/internal/warn"
)

// Processor runs the full pipeline over one toolpath file's lines.
// Output path and the post-write stdin pause are CLI concerns, owned
// entirely by cmd/arcoverhang and never read by Process itself.
type Processor struct {
	reporter *warn.Reporter
	rng      *rand.Rand
}

// New creates a Processor.
func New(reporter *warn.Reporter, rng *rand.Rand) *Processor {
	if reporter == nil {
		reporter = warn.New(nil)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Processor{reporter: reporter, rng: rng}
}

// layerFill holds everything computed for one layer so following
// layers' Hilbert pass (which reads oldPolys) can be driven from a
// second, purely sequential pass (spec.md §5).
type layerFill struct {
	layer       toolpath.Layer
	regions     []validate.Region
	fillResults map[string]archfill.FillResult // keyed by Region.ID
	extPerims   []geom.Polygon
}

// Process runs the full pipeline over lines and returns the rewritten
// output. If no polygon was successfully converted, it returns the
// input unchanged (spec.md §7: "the rewriter must not emit a modified
// output if no polygon was successfully converted").
func (pr *Processor) Process(lines []string) ([]string, error) {
	doc, err := toolpath.Tokenize(lines)
	if err != nil {
		return nil, pr.reporter.Fatal(err)
	}
	if len(doc.Layers) == 0 {
		return lines, nil
	}

	params := config.Parse(doc.Settings, doc.Dialect)
	if err := config.CheckRequired(params); err != nil {
		return nil, pr.reporter.Fatal(err)
	}
	for _, w := range config.WarnedSettings(params) {
		pr.reporter.Advisory("%s", w)
	}

	layerZ := map[int]float64{}
	for _, l := range doc.Layers {
		layerZ[l.Index] = l.Z
	}

	oldPolysByLayer := map[int][]validate.Region{}
	fills := make([]layerFill, len(doc.Layers))

	var prevExternal []geom.Polygon

	anyConverted := false

	for i, layer := range doc.Layers {
		lf := layerFill{layer: layer, fillResults: map[string]archfill.FillResult{}}

		extPolys := extractExternalPerimeters(layer, params)
		lf.extPerims = extPolys

		// Layers 0 and 1 are never modified (spec.md §3, §8).
		if i >= 2 {
			bridgeCandidates, bridgeFeatureIdx := extractBridgeCandidates(layer, params)
			merged, _ := feature.MergeOverlapping(bridgeCandidates)

			overhangLines := extractOverhangPerimeterLines(layer, params)

			lg := validate.LayerGeometry{
				LayerIndex:             layer.Index,
				Z:                      layer.Z,
				BridgeCandidates:       merged,
				BridgeFeatureIdx:       remapFeatureIdx(bridgeCandidates, bridgeFeatureIdx, merged),
				OverhangPerimeterLines: overhangLines,
			}
			regions := validate.Validate(lg, validate.PrevLayerGeometry{ExternalPerimeters: prevExternal}, params, pr.reporter)
			lf.regions = regions

			validate.AnnotateForward(regions, layerZ, params.SpecialCoolingZdist, oldPolysByLayer)

			for _, region := range regions {
				result, err := pr.fillRegion(region, prevExternal, params)
				if err != nil || result.Failed {
					reason := "unknown"
					if result.Reason != "" {
						reason = result.Reason
					}
					pr.reporter.Recoverable(layer.Index, region.ID, reason)
					continue
				}
				if result.FillFraction < params.WarnBelowThisFillingPercentage {
					pr.reporter.Advisory("layer %d region %s: fill fraction %.1f%% below warn threshold", layer.Index, region.ID, result.FillFraction)
				}
				lf.fillResults[region.ID] = result
				anyConverted = true
			}
		}

		fills[i] = lf
		prevExternal = extPolys
	}

	if !anyConverted {
		pr.reporter.Advisory("no overhang polygon was successfully converted; output left unchanged")
		return lines, nil
	}

	return pr.rewriteAll(doc, fills, oldPolysByLayer, params), nil
}

func (pr *Processor) fillRegion(region validate.Region, prevExternal []geom.Polygon, p config.Parameters) (archfill.FillResult, error) {
	start, err := startgeom.Derive(region.Polygon, prevExternal)
	if err != nil {
		return archfill.FillResult{Failed: true, Reason: "no start geometry"}, err
	}

	candidates := startgeom.Candidates(start.StartLineString, p.CornerImportanceMultiplier, pr.rng)
	if len(candidates) == 0 {
		return archfill.FillResult{Failed: true, Reason: "no usable start point"}, fmt.Errorf("no start point")
	}

	nozzle := micro.FromMM(p.NozzleDiameter)
	return archfill.Fill(region.Polygon, start.BoundaryWithoutStart, candidates, nozzle, p)
}

func extractExternalPerimeters(layer toolpath.Layer, p config.Parameters) []geom.Polygon {
	var polys []geom.Polygon
	for _, f := range layer.Features {
		if f.Kind != toolpath.FeatureExternalPerimeter && f.Kind != toolpath.FeatureOverhangPerimeter {
			continue
		}
		if poly, ok := feature.ExternalPerimeterPolygon(f.Lines, p.ArcPointsPerMillimeter); ok {
			polys = append(polys, poly)
		}
	}
	return polys
}

func extractOverhangPerimeterLines(layer toolpath.Layer, p config.Parameters) []geom.Ring {
	var lines []geom.Ring
	for _, f := range layer.Features {
		if f.Kind == toolpath.FeatureOverhangPerimeter {
			lines = append(lines, feature.Polyline(f.Lines, p.ArcPointsPerMillimeter))
		}
	}
	return lines
}

func extractBridgeCandidates(layer toolpath.Layer, p config.Parameters) ([]geom.Polygon, []int) {
	var polys []geom.Polygon
	var idx []int
	for fi, f := range layer.Features {
		if f.Kind != toolpath.FeatureBridgeInfill {
			continue
		}
		if poly, ok := feature.BridgePolygon(f.Lines, p.ExtrusionWidth, p.ArcPointsPerMillimeter); ok {
			polys = append(polys, poly)
			idx = append(idx, fi)
		}
	}
	return polys, idx
}

// remapFeatureIdx maps merged polygons back to a representative source
// feature index (the first contributing feature), since union may
// combine several candidates into one polygon (spec.md §4.C merge
// step).
func remapFeatureIdx(original []geom.Polygon, originalIdx []int, merged []geom.Polygon) []int {
	out := make([]int, len(merged))
	for mi, m := range merged {
		best := -1
		for oi, o := range original {
			if polysOverlap(o, m) {
				best = originalIdx[oi]
				break
			}
		}
		out[mi] = best
	}
	return out
}

func polysOverlap(a, b geom.Polygon) bool {
	inter, err := geom.Intersection(a, b)
	return err == nil && len(inter) > 0
}

func (pr *Processor) rewriteAll(doc toolpath.Document, fills []layerFill, oldPolysByLayer map[int][]validate.Region, p config.Parameters) []string {
	out := append([]string(nil), doc.PreludeLines...)

	for i, lf := range fills {
		layer := lf.layer

		var arcLines []string
		arcFeatureIdx := -1
		var validPolys []geom.Polygon
		var preservedFailed []geom.Polygon

		if len(lf.regions) > 0 {
			st := &motion.State{}
			for _, region := range lf.regions {
				result, ok := lf.fillResults[region.ID]
				if !ok {
					preservedFailed = append(preservedFailed, region.Polygon)
					continue
				}
				validPolys = append(validPolys, region.Polygon)
				arcLines = append(arcLines, motion.EmitArcBundle(result.Arcs, st, p)...)
				// region.FeatureIdx can be -1 (remapFeatureIdx found no
				// overlapping source feature for a merged polygon) -
				// that must never compete with -1's other meaning here
				// ("no injection point chosen yet"), or arc injection
				// for the whole layer silently disables itself.
				if region.FeatureIdx >= 0 && (arcFeatureIdx < 0 || region.FeatureIdx < arcFeatureIdx) {
					arcFeatureIdx = region.FeatureIdx
				}
			}
		}

		hilbertFeatureIdx := -1
		var hilbertLines []string
		var oldPolys []geom.Polygon
		if regions, ok := oldPolysByLayer[i]; ok {
			for _, r := range regions {
				oldPolys = append(oldPolys, r.Polygon)
			}

			// Every solid-infill feature in the layer is gathered and
			// merged into one combined footprint before curve generation
			// (spotSolidInfill/makePolysFromSolidInfill in the original
			// script), not just the first - all of it gets replaced by
			// Hilbert fill and deleted below, so generating from only one
			// feature would leave the rest unfilled once its lines are gone.
			var solidPolys []geom.Polygon
			firstSolidIdx := -1
			for fi, f := range layer.Features {
				if f.Kind != toolpath.FeatureSolidInfill {
					continue
				}
				if firstSolidIdx < 0 {
					firstSolidIdx = fi
				}
				if poly, ok := feature.SolidInfillPolygon(f.Lines, p.SolidInfillExtrusionWidth, p.ArcPointsPerMillimeter); ok {
					solidPolys = append(solidPolys, poly)
				}
			}
			merged, _ := feature.MergeOverlapping(solidPolys)

			var allChunks []geom.Ring
			for _, poly := range merged {
				chunks, err := hilbertfill.Plan(poly, p.SolidInfillExtrusionWidth, p.HilbertFillingPercentage, p.InfillSpeed, p.SecondsBetweenTravels, layer.Index, pr.rng)
				if err == nil {
					allChunks = append(allChunks, chunks...)
				}
			}
			if len(allChunks) > 0 && firstSolidIdx >= 0 {
				hilbertLines = motion.EmitHilbert(allChunks, p)
				hilbertFeatureIdx = firstSolidIdx
			}
		}

		target := toolpath.FeatureBridgeInfill
		deleted := rewrite.DeleteLines(layer, target, validPolys, preservedFailed, p)
		// The solid infill a successful Hilbert fill replaces must be
		// deleted too, the same way the original script's second
		// prepareDeletion(";TYPE:Solid infill", polys=layer.oldpolys) call
		// does - otherwise the original infill prints again right after
		// the injected Hilbert block, doubling extrusion over that area.
		if len(oldPolys) > 0 {
			for ln, d := range rewrite.DeleteLines(layer, toolpath.FeatureSolidInfill, oldPolys, nil, p) {
				deleted[ln] = d
			}
		}

		inj := rewrite.Injection{
			ArcFeatureIdx:     arcFeatureIdx,
			ArcLines:          arcLines,
			HilbertFeatureIdx: hilbertFeatureIdx,
			HilbertLines:      hilbertLines,
			OldPolys:          oldPolys,
		}

		rewritten := rewrite.ApplyLayer(layer, deleted, inj, p)
		out = append(out, ";LAYER_CHANGE")
		out = append(out, rewritten...)
	}

	return out
}

// Render joins lines into a single file body with trailing newlines,
// for writing to disk.
func Render(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}
