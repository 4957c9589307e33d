package led

import (
	"math"
	"math/rand/v2"
	"time"
)

// Solid fills the strip with its color.
type Solid struct{ base }

// NewSolid creates a solid fill.
func NewSolid(c Color) *Solid {
	return &Solid{base{name: EffectSolid, color: c}}
}

func (e *Solid) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	s.Fill(e.color)
	return true
}

// Blink alternates between its color and black every speed interval.
type Blink struct {
	base
	on bool
}

// NewBlink creates a blink effect.
func NewBlink(speed time.Duration, c Color) *Blink {
	return &Blink{base: base{name: EffectBlink, speed: speed, color: c}}
}

func (e *Blink) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	e.on = !e.on
	if e.on {
		s.Fill(e.color)
	} else {
		s.Fill(Black)
	}
	return true
}

func (e *Blink) Reset() {
	e.base.Reset()
	e.on = false
}

// Chase moves bars of size lit pixels separated by spacing dark pixels along
// the strip. When rainbow is set each bar takes its color from the wheel.
type Chase struct {
	base
	size    int
	spacing int
	offset  int
	rainbow bool
	hue     float64
}

// NewChase creates a single-color chase.
func NewChase(speed time.Duration, c Color, size, spacing int) *Chase {
	return &Chase{base: base{name: EffectChase, speed: speed, color: c}, size: size, spacing: spacing}
}

// NewRainbowChase creates a chase whose bars cycle through the wheel.
func NewRainbowChase(speed time.Duration, size, spacing int) *Chase {
	return &Chase{
		base:    base{name: EffectRainbowChase, speed: speed, color: Blue},
		size:    size,
		spacing: spacing,
		rainbow: true,
	}
}

func (e *Chase) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	n := s.Len()
	cycle := e.size + e.spacing
	for i := range n {
		pos := (i - e.offset + cycle*n) % cycle
		if pos >= e.size {
			s.Set(i, Black)
			continue
		}
		if e.rainbow {
			bar := (i - e.offset + cycle*n) / cycle
			s.Set(i, Wheel(e.hue+float64(bar*cycle)/float64(n)))
		} else {
			s.Set(i, e.color)
		}
	}
	e.offset = (e.offset + 1) % cycle
	if e.rainbow {
		e.hue += 1.0 / 256
	}
	return true
}

func (e *Chase) Reset() {
	e.base.Reset()
	e.offset = 0
	e.hue = 0
}

// Comet runs a head with a fading tail along the strip, reversing at the ends
// when bounce is set.
type Comet struct {
	base
	tail    int
	bounce  bool
	rainbow bool
	head    int
	dir     int
}

// NewComet creates a single-color comet.
func NewComet(speed time.Duration, c Color, tail int, bounce bool) *Comet {
	return &Comet{base: base{name: EffectComet, speed: speed, color: c}, tail: tail, bounce: bounce, dir: 1}
}

// NewRainbowComet creates a comet whose tail spans the color wheel.
func NewRainbowComet(speed time.Duration, tail int, bounce bool) *Comet {
	return &Comet{
		base:    base{name: EffectRainbowComet, speed: speed, color: Blue},
		tail:    tail,
		bounce:  bounce,
		rainbow: true,
		dir:     1,
	}
}

func (e *Comet) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	n := s.Len()
	s.Fill(Black)
	for k := range e.tail {
		level := 1 - float64(k)/float64(e.tail)
		c := e.color
		if e.rainbow {
			c = Wheel(float64(k) / float64(e.tail))
		}
		s.Set(e.head-e.dir*k, c.Scale(level))
	}

	e.head += e.dir
	switch {
	case e.bounce && (e.head >= n-1 || e.head <= 0):
		e.head = max(0, min(e.head, n-1))
		e.dir = -e.dir
	case !e.bounce && e.head >= n+e.tail:
		e.head = 0
	}
	return true
}

func (e *Comet) Reset() {
	e.base.Reset()
	e.head = 0
	e.dir = 1
}

// Pulse fades its color up and down over period.
type Pulse struct {
	base
	period time.Duration
}

// NewPulse creates a pulse effect.
func NewPulse(speed time.Duration, c Color, period time.Duration) *Pulse {
	return &Pulse{base: base{name: EffectPulse, speed: speed, color: c}, period: period}
}

func (e *Pulse) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	s.Fill(e.color.Scale(triangle(e.elapsed(now), e.period)))
	return true
}

// ColorCycle fills the strip with each of its colors in turn.
type ColorCycle struct {
	base
	colors []Color
	index  int
}

// NewColorCycle creates a color cycle over colors.
func NewColorCycle(speed time.Duration, colors []Color) *ColorCycle {
	return &ColorCycle{
		base:   base{name: EffectColorCycle, speed: speed, color: colors[0]},
		colors: colors,
	}
}

func (e *ColorCycle) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	s.Fill(e.colors[e.index])
	e.index = (e.index + 1) % len(e.colors)
	return true
}

func (e *ColorCycle) Reset() {
	e.base.Reset()
	e.index = 0
}

// Rainbow fills the strip with one color that walks the wheel once per
// period.
type Rainbow struct {
	base
	period time.Duration
}

// NewRainbow creates a rainbow effect.
func NewRainbow(speed, period time.Duration) *Rainbow {
	return &Rainbow{base: base{name: EffectRainbow, speed: speed, color: Blue}, period: period}
}

func (e *Rainbow) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	s.Fill(Wheel(phase(e.elapsed(now), e.period)))
	return true
}

// RainbowSparkle shows a dimmed rainbow with random pixels flashing at full
// intensity.
type RainbowSparkle struct {
	base
	sparkles   int
	background float64
	period     time.Duration
	rng        *rand.Rand
}

// NewRainbowSparkle creates a sparkle effect. rng may be nil.
func NewRainbowSparkle(speed time.Duration, sparkles int, rng *rand.Rand) *RainbowSparkle {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RainbowSparkle{
		base:       base{name: EffectRainbowSparkle, speed: speed, color: Blue},
		sparkles:   sparkles,
		background: 0.2,
		period:     5 * time.Second,
		rng:        rng,
	}
}

func (e *RainbowSparkle) Animate(s Strip, now time.Time) bool {
	if !e.due(now) {
		return false
	}
	n := s.Len()
	shift := phase(e.elapsed(now), e.period)
	for i := range n {
		s.Set(i, Wheel(shift+float64(i)/float64(n)).Scale(e.background))
	}
	for range min(e.sparkles, n) {
		i := e.rng.IntN(n)
		s.Set(i, Wheel(shift+float64(i)/float64(n)))
	}
	return true
}

// phase returns the position of d within period as a fraction in [0, 1).
func phase(d, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	return float64(d%period) / float64(period)
}

// triangle ramps 0 → 1 → 0 over period.
func triangle(d, period time.Duration) float64 {
	return 1 - math.Abs(2*phase(d, period)-1)
}
