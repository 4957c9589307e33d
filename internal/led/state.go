package led

import (
	"time"

	"github.com/smazurov/lednode/internal/faults"
)

// State is what the strip shows: either one active effect or a manual fill.
// It is owned by a single goroutine and is not safe for concurrent use.
type State struct {
	strip     Strip
	palette   *Palette
	active    Effect
	lastColor Color
	fill      Color
	dirty     bool
}

// Snapshot is a copy of State for reporting.
type Snapshot struct {
	Active    string           `json:"active" example:"rainbowchase" doc:"Active effect, empty for a manual fill"`
	LastColor Color            `json:"last_color" doc:"Last color set through the color route"`
	Colors    map[string]Color `json:"colors" doc:"Color remembered by each effect"`
}

// NewState creates a state with no active effect. lastColor is what led_on
// fills with until a color is set.
func NewState(strip Strip, palette *Palette, lastColor Color) *State {
	return &State{strip: strip, palette: palette, lastColor: lastColor}
}

// Active returns the active effect, nil during a manual fill.
func (s *State) Active() Effect { return s.active }

// Strip returns the strip the state draws into.
func (s *State) Strip() Strip { return s.strip }

// Palette returns the effect set.
func (s *State) Palette() *Palette { return s.palette }

// LastColor returns the last color set.
func (s *State) LastColor() Color { return s.lastColor }

// Select makes the named effect active without touching its color.
func (s *State) Select(name string) error {
	e, ok := s.palette.Get(name)
	if !ok {
		return faults.BadRequest("unknown effect %q", name)
	}
	if s.active != e {
		e.Reset()
	}
	s.active = e
	return nil
}

// SetColor records c as the last color and applies it to the active effect
// only.
func (s *State) SetColor(c Color) {
	s.lastColor = c
	if s.active != nil {
		s.active.SetColor(c)
	}
}

// On fills the strip with the last color and deactivates effects.
func (s *State) On() {
	s.Fill(s.lastColor)
}

// Off fills the strip with black and deactivates effects.
func (s *State) Off() {
	s.Fill(Black)
}

// Fill deactivates effects and fills the strip with c.
func (s *State) Fill(c Color) {
	s.active = nil
	s.fill = c
	s.strip.Fill(c)
	s.dirty = true
}

// Render advances the active effect and pushes the frame. With no active
// effect it only pushes a pending manual fill.
func (s *State) Render(now time.Time) error {
	if s.active == nil {
		if !s.dirty {
			return nil
		}
	} else {
		s.active.Animate(s.strip, now)
	}
	if err := s.strip.Show(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Showing returns the active effect and its color, or an empty name and the
// manual fill color.
func (s *State) Showing() (string, Color) {
	if s.active != nil {
		return s.active.Name(), s.active.Color()
	}
	return "", s.fill
}

// Snapshot copies the state for reporting.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{LastColor: s.lastColor, Colors: make(map[string]Color)}
	if s.active != nil {
		snap.Active = s.active.Name()
	}
	for _, name := range s.palette.Names() {
		e, _ := s.palette.Get(name)
		snap.Colors[name] = e.Color()
	}
	return snap
}
