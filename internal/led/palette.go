package led

import (
	"math/rand/v2"
	"time"
)

// Effect names. Each is also the route that selects it.
const (
	EffectSolid          = "solid"
	EffectBlink          = "blink"
	EffectChase          = "chase"
	EffectComet          = "comet"
	EffectPulse          = "pulse"
	EffectColorCycle     = "colorcycle"
	EffectRainbow        = "rainbow"
	EffectRainbowChase   = "rainbowchase"
	EffectRainbowComet   = "rainbowcomet"
	EffectRainbowSparkle = "rainbowsparkle"
)

// CycleColors are the colors stepped through by colorcycle.
var CycleColors = []Color{Magenta, Orange, Teal}

// Palette is the fixed set of effects, built once at startup.
type Palette struct {
	effects map[string]Effect
	order   []string
}

// NewPalette builds the ten effects. Colored effects start with initial.
func NewPalette(initial Color, rng *rand.Rand) *Palette {
	p := &Palette{effects: make(map[string]Effect)}
	for _, e := range []Effect{
		NewSolid(initial),
		NewBlink(500*time.Millisecond, initial),
		NewChase(100*time.Millisecond, initial, 3, 6),
		NewComet(10*time.Millisecond, initial, 10, true),
		NewPulse(100*time.Millisecond, initial, 3*time.Second),
		NewColorCycle(500*time.Millisecond, CycleColors),
		NewRainbow(100*time.Millisecond, 2*time.Second),
		NewRainbowChase(100*time.Millisecond, 3, 6),
		NewRainbowComet(100*time.Millisecond, 7, true),
		NewRainbowSparkle(100*time.Millisecond, 15, rng),
	} {
		p.effects[e.Name()] = e
		p.order = append(p.order, e.Name())
	}
	return p
}

// Get returns the effect called name.
func (p *Palette) Get(name string) (Effect, bool) {
	e, ok := p.effects[name]
	return e, ok
}

// Names lists the effects in registration order.
func (p *Palette) Names() []string {
	return append([]string(nil), p.order...)
}
