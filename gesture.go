package main

import (
	"encoding/json"
	"fmt"
)

type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseUpdate Phase = "update"
	PhaseEnd    Phase = "end"
)

// PanEvent carries a translation delta in viewport units. Within a
// start/end bracket the delta is cumulative since the start event.
type PanEvent struct {
	Phase Phase   `json:"phase"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
}

// PinchEvent carries a scale ratio. Within a start/end bracket the ratio is
// cumulative since the start event.
type PinchEvent struct {
	Phase Phase   `json:"phase"`
	Ratio float64 `json:"ratio"`
}

type GestureEvent struct {
	Pan   *PanEvent
	Pinch *PinchEvent
}

func (e *GestureEvent) UnmarshalJSON(data []byte) error {
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal gesture: %w", err)
	}

	switch ev.Type {
	case "pan":
		var pan PanEvent
		if err := json.Unmarshal(data, &pan); err != nil {
			return fmt.Errorf("failed to unmarshal pan gesture: %w", err)
		}
		if err := pan.Phase.validate(); err != nil {
			return err
		}
		e.Pan = &pan
	case "pinch":
		var pinch PinchEvent
		if err := json.Unmarshal(data, &pinch); err != nil {
			return fmt.Errorf("failed to unmarshal pinch gesture: %w", err)
		}
		if err := pinch.Phase.validate(); err != nil {
			return err
		}
		if pinch.Phase == PhaseUpdate && pinch.Ratio == 0 {
			return fmt.Errorf("pinch update without ratio")
		}
		e.Pinch = &pinch
	default:
		return fmt.Errorf("unknown gesture %q", ev.Type)
	}
	return nil
}

func (e GestureEvent) MarshalJSON() ([]byte, error) {
	switch {
	case e.Pan != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			PanEvent
		}{"pan", *e.Pan})
	case e.Pinch != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			PinchEvent
		}{"pinch", *e.Pinch})
	}
	return nil, fmt.Errorf("empty gesture")
}

func (p Phase) validate() error {
	switch p {
	case PhaseStart, PhaseUpdate, PhaseEnd:
		return nil
	case "":
		return fmt.Errorf("gesture phase is missing")
	}
	return fmt.Errorf("unknown gesture phase %q", p)
}

// GestureReducer folds pan and pinch streams into a TransformState. Every
// state it exposes has been through ClampPolicy. It is not safe for
// concurrent use; callers feed it from a single logical thread.
type GestureReducer struct {
	policy ClampPolicy
	state  TransformState

	panBasis   *TransformState
	pinchBasis *TransformState
}

func NewGestureReducer(policy ClampPolicy) *GestureReducer {
	return &GestureReducer{
		policy: policy,
		state:  policy.Initial(),
	}
}

func (g *GestureReducer) State() TransformState { return g.state }

func (g *GestureReducer) Policy() ClampPolicy { return g.policy }

// Reset returns to the initial covering state and drops any gesture basis.
func (g *GestureReducer) Reset() {
	g.state = g.policy.Initial()
	g.panBasis, g.pinchBasis = nil, nil
}

// Set replaces the state, clamped. Used to restore a saved transform.
func (g *GestureReducer) Set(s TransformState) TransformState {
	g.state = g.policy.Clamp(s)
	return g.state
}

func (g *GestureReducer) Apply(ev GestureEvent) TransformState {
	switch {
	case ev.Pan != nil:
		g.pan(*ev.Pan)
	case ev.Pinch != nil:
		g.pinch(*ev.Pinch)
	}
	return g.state
}

func (g *GestureReducer) ApplyAll(events []GestureEvent) TransformState {
	for _, ev := range events {
		g.Apply(ev)
	}
	return g.state
}

func (g *GestureReducer) pan(ev PanEvent) {
	switch ev.Phase {
	case PhaseStart:
		basis := g.state
		g.panBasis = &basis
		return
	case PhaseEnd:
		defer func() { g.panBasis = nil }()
		if ev.DX == 0 && ev.DY == 0 {
			return
		}
	}

	if !isFinite(ev.DX) || !isFinite(ev.DY) {
		return
	}

	originX, originY := g.state.TranslateX, g.state.TranslateY
	if g.panBasis != nil {
		originX, originY = g.panBasis.TranslateX, g.panBasis.TranslateY
	}
	g.state = g.policy.Clamp(TransformState{
		Scale:      g.state.Scale,
		TranslateX: originX + ev.DX,
		TranslateY: originY + ev.DY,
	})
}

func (g *GestureReducer) pinch(ev PinchEvent) {
	switch ev.Phase {
	case PhaseStart:
		basis := g.state
		g.pinchBasis = &basis
		return
	case PhaseEnd:
		defer func() { g.pinchBasis = nil }()
		if ev.Ratio == 0 {
			return
		}
	}

	if !isFinite(ev.Ratio) || ev.Ratio <= 0 {
		return
	}

	origin := g.state.Scale
	if g.pinchBasis != nil {
		origin = g.pinchBasis.Scale
	}
	g.state = g.policy.Clamp(TransformState{
		Scale:      origin * ev.Ratio,
		TranslateX: g.state.TranslateX,
		TranslateY: g.state.TranslateY,
	})
}
