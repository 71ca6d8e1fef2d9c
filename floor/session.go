package floor

import (
	"log"
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

// VerdictHandler is called after every evaluation
type VerdictHandler func(eval Evaluation)

// Session owns the pin store and runs an evaluation whenever the second pin is in
// place. Placement and evaluation happen under one lock, so a new pin is never
// accepted while an evaluation is still running.
type Session struct {
	mu       sync.Mutex
	store    *PinStore
	caster   RayCaster
	config   EvaluationConfig
	last     *Evaluation
	handlers []VerdictHandler
}

// NewSession creates a session evaluating against caster
func NewSession(caster RayCaster, cfg EvaluationConfig) *Session {
	s := &Session{
		store:  NewPinStore(),
		caster: caster,
		config: cfg,
	}
	s.store.OnEvict(func(m Marker) {
		log.Printf("Evicted pin %d (%s)", m.Index, m.ID)
	})
	return s
}

// OnVerdict registers a handler invoked after each evaluation
func (s *Session) OnVerdict(h VerdictHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Place drops a pin at a world position. The evaluation is returned when the pin
// completed a pair.
func (s *Session) Place(position r3.Vector) (MarkerID, *Evaluation) {
	return s.PlaceTransform(Translation(position))
}

// PlaceRelative drops a pin PlacementDistance in front of the camera (local -Z)
func (s *Session) PlaceRelative(camera Transform) (MarkerID, *Evaluation) {
	distance := s.config.PlacementDistance
	if distance <= 0 {
		distance = DefaultPlacementDistance
	}
	return s.PlaceTransform(MultiplyTransforms(camera, Translation(r3.Vector{Z: -distance})))
}

// PlaceTransform drops a pin with a full world transform
func (s *Session) PlaceTransform(t Transform) (MarkerID, *Evaluation) {
	s.mu.Lock()
	id := s.store.PlaceTransform(t)
	var eval *Evaluation
	if s.store.Full() {
		eval = s.evaluateLocked()
	}
	handlers := append([]VerdictHandler(nil), s.handlers...)
	s.mu.Unlock()

	if eval != nil {
		for _, h := range handlers {
			h(*eval)
		}
	}
	return id, eval
}

// Reevaluate runs the evaluation again on the current pair, e.g. after the scene
// estimate changed. It returns false when fewer than two pins exist.
func (s *Session) Reevaluate() (*Evaluation, bool) {
	s.mu.Lock()
	if !s.store.Full() {
		s.mu.Unlock()
		return nil, false
	}
	eval := s.evaluateLocked()
	handlers := append([]VerdictHandler(nil), s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(*eval)
	}
	return eval, true
}

// evaluateLocked evaluates the stored pair; s.mu must be held
func (s *Session) evaluateLocked() *Evaluation {
	s.store.ClearAttachments()
	pins := s.store.Markers()

	recorder := NewDebugRecorder()
	evaluator := NewEvaluator(s.caster, s.config)
	evaluator.Debug = recorder

	verdict := evaluator.Evaluate(pins[0], pins[1])

	state := StateDifferentFloor
	if verdict.SameFloor() {
		state = StateSameFloor
	}
	debug := recorder.Geometry()
	for _, am := range debug.Markers {
		s.store.Attach(am.Pin, am.Marker)
	}
	for _, p := range pins {
		s.store.SetVisualState(p.ID, state)
	}

	log.Printf("Floor verdict: %s (%s)", verdict.Kind, verdict.Message())

	eval := &Evaluation{
		Verdict:   verdict,
		Pins:      s.store.Markers(),
		Debug:     debug,
		Timestamp: time.Now(),
	}
	s.last = eval
	return eval
}

// Markers returns a snapshot of the active pins
func (s *Session) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Markers()
}

// LastEvaluation returns the most recent evaluation, if any
func (s *Session) LastEvaluation() (*Evaluation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, false
	}
	eval := *s.last
	return &eval, true
}

// Reset removes all pins and forgets the last evaluation
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Reset()
	s.last = nil
}
