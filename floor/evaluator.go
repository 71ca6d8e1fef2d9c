package floor

import (
	"github.com/golang/geo/r3"
)

const (
	// DefaultFarThreshold is the largest projected pin distance still considered walkable
	DefaultFarThreshold = 2.0
	// DefaultProjectionEpsilon lifts the wall ray off the floor to avoid self-hits
	DefaultProjectionEpsilon = 0.05
	// DefaultPlacementDistance is how far in front of the camera a pin is dropped
	DefaultPlacementDistance = 0.4
)

// Evaluator decides whether two pins share a walkable floor surface
type Evaluator struct {
	Caster            RayCaster
	FarThreshold      float64
	ProjectionEpsilon float64
	Debug             DebugSink // optional
}

// NewEvaluator creates an evaluator over the given ray caster. Zero config values
// fall back to the defaults.
func NewEvaluator(caster RayCaster, cfg EvaluationConfig) *Evaluator {
	e := &Evaluator{
		Caster:            caster,
		FarThreshold:      cfg.FarThreshold,
		ProjectionEpsilon: cfg.ProjectionEpsilon,
	}
	if e.FarThreshold <= 0 {
		e.FarThreshold = DefaultFarThreshold
	}
	if e.ProjectionEpsilon <= 0 {
		e.ProjectionEpsilon = DefaultProjectionEpsilon
	}
	return e
}

// scanState tracks the walk over matched projection pairs
type scanState int

const (
	scanScanning scanState = iota
	scanPending            // a matched pair is being validated
	scanTerminal           // same-floor or crossed-wall reached
)

// pairScan accumulates verdicts in scan order. The first terminal verdict wins;
// without one, the first inconclusive verdict is reported.
type pairScan struct {
	state        scanState
	terminal     Verdict
	inconclusive *Verdict
}

func (s *pairScan) record(v Verdict) {
	if v.terminal() {
		s.terminal = v
		s.state = scanTerminal
		return
	}
	if s.inconclusive == nil {
		s.inconclusive = &v
	}
	s.state = scanScanning
}

func (s *pairScan) verdict() Verdict {
	if s.state == scanTerminal {
		return s.terminal
	}
	return *s.inconclusive
}

// matchedPair is a pair of projections, one per pin, onto the same surface
type matchedPair struct {
	a, b ProjectionResult
}

// matchPairs lists every identity-matched pair, pin A's results outer, pin B's inner
func matchPairs(resA, resB []ProjectionResult) []matchedPair {
	var pairs []matchedPair
	for _, r1 := range resA {
		for _, r2 := range resB {
			if r1.Surface.ID == r2.Surface.ID {
				pairs = append(pairs, matchedPair{a: r1, b: r2})
			}
		}
	}
	return pairs
}

// Evaluate classifies the floor relationship between pins a and b. Every irregular
// condition is a verdict; Evaluate never fails.
func (e *Evaluator) Evaluate(a, b Marker) Verdict {
	resA := e.Caster.CastDown(a.Position())
	resB := e.Caster.CastDown(b.Position())

	for _, r := range resA {
		e.attach(a, r, MarkerProjection)
	}
	for _, r := range resB {
		e.attach(b, r, MarkerProjection)
	}

	counts := Verdict{ProjectionsA: len(resA), ProjectionsB: len(resB)}
	if len(resA) == 0 || len(resB) == 0 {
		counts.Kind = VerdictNoProjection
		return counts
	}

	pairs := matchPairs(resA, resB)
	if len(pairs) == 0 {
		counts.Kind = VerdictNoMatch
		return counts
	}

	scan := pairScan{state: scanScanning}
	for i := 0; i < len(pairs) && scan.state != scanTerminal; i++ {
		scan.state = scanPending
		v := e.validate(a, pairs[i])
		v.ProjectionsA, v.ProjectionsB = counts.ProjectionsA, counts.ProjectionsB
		scan.record(v)
	}
	return scan.verdict()
}

// validate runs the distance gate, the boundary test and the wall test for one pair
func (e *Evaluator) validate(a Marker, p matchedPair) Verdict {
	pos1 := p.a.Point()
	pos2 := p.b.Point()
	diff := pos1.Sub(pos2)
	dist := diff.Norm()

	v := Verdict{Surface: p.a.Surface.ID, Distance: dist}
	e.segment(Segment{From: pos1, To: pos2, Surface: p.a.Surface.ID})

	if dist > e.FarThreshold {
		v.Kind = VerdictTooFar
		return v
	}

	if LeavesBoundary(p.a.Surface, pos1, pos2) {
		v.Kind = VerdictLeftBoundary
		return v
	}

	origin := pos2.Add(r3.Vector{Y: e.ProjectionEpsilon})
	walls := e.Caster.CastToward(origin, diff)
	v.WallCount = len(walls)
	for _, wall := range walls {
		// Only a wall between the projections blocks; hits beyond pin A are ignored.
		wallDist := wall.Point().Distance(pos2)
		if wallDist < dist {
			e.attach(a, wall, MarkerBlockingWall)
			v.Kind = VerdictCrossedWall
			v.Wall = wall.Surface.ID
			v.WallDistance = wallDist
			return v
		}
	}

	v.Kind = VerdictSameFloor
	return v
}

// attach emits a debug marker for r in pin's local frame
func (e *Evaluator) attach(pin Marker, r ProjectionResult, kind MarkerKind) {
	if e.Debug == nil {
		return
	}
	e.Debug.AttachMarker(pin.ID, IntersectionMarker{
		Kind:    kind,
		Surface: r.Surface.ID,
		Local:   RelativeTransform(pin.Transform, r.WorldTransform),
		World:   r.Point(),
	})
}

func (e *Evaluator) segment(s Segment) {
	if e.Debug != nil {
		e.Debug.AddSegment(s)
	}
}
