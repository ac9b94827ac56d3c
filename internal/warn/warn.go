// Package warn implements the three error bands spec.md §7 defines:
// fatal (process exits without writing output), recoverable-per-polygon
// (recorded, processing continues), and advisory (logged, processing
// continues). The rest of the pipeline reports through a single
// Reporter instead of scattering fmt.Println calls, while still
// funneling actual output through the standard log package the way
// GoSlice's own CLI layer does.
package warn

import (
	"fmt"
	"log"
)

// FailedPolygon records a polygon that could not be converted to an
// arc fill, per spec.md §7 band 2: "recorded in failedArcGenPolys, its
// bridge infill is not deleted".
type FailedPolygon struct {
	LayerIndex int
	RegionID   string
	Reason     string
}

// Reporter accumulates recoverable and advisory diagnostics for a
// single processing run and exposes them for the final summary.
type Reporter struct {
	logger   *log.Logger
	failed   []FailedPolygon
	advisory []string
}

// New creates a Reporter writing to the given logger's destination. If
// logger is nil, log.Default() is used.
func New(logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Reporter{logger: logger}
}

// Fatal logs and returns err unchanged, for the caller to propagate and
// exit nonzero without writing output (spec.md §7 band 1).
func (r *Reporter) Fatal(err error) error {
	if err == nil {
		return nil
	}
	r.logger.Printf("fatal: %v", err)
	return err
}

// Recoverable records a per-polygon failure and logs it once (spec.md
// §7 band 2). Processing continues; the polygon's original infill is
// preserved by the caller.
func (r *Reporter) Recoverable(layerIndex int, regionID, reason string) {
	r.failed = append(r.failed, FailedPolygon{LayerIndex: layerIndex, RegionID: regionID, Reason: reason})
	r.logger.Printf("warning: layer %d region %s: %s (infill preserved)", layerIndex, regionID, reason)
}

// Advisory logs a non-critical diagnostic; processing always continues
// (spec.md §7 band 3).
func (r *Reporter) Advisory(format string, args ...any) {
	r.logger.Printf("notice: "+format, args...)
	r.advisory = append(r.advisory, fmt.Sprintf(format, args...))
}

// Failed returns every recorded recoverable failure.
func (r *Reporter) Failed() []FailedPolygon {
	return r.failed
}

// IsFailed reports whether regionID on layerIndex was recorded as
// recoverably failed.
func (r *Reporter) IsFailed(layerIndex int, regionID string) bool {
	for _, f := range r.failed {
		if f.LayerIndex == layerIndex && f.RegionID == regionID {
			return true
		}
	}
	return false
}

// Advisories returns every advisory message logged so far.
func (r *Reporter) Advisories() []string {
	return r.advisory
}
