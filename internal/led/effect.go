package led

import "time"

// Effect is one animation. Animate draws the next frame into the strip when
// the effect's step interval has elapsed and reports whether it drew.
// Effects never call Show.
type Effect interface {
	Name() string
	Color() Color
	SetColor(c Color)
	Animate(s Strip, now time.Time) bool
	Reset()
}

// base carries the fields every effect shares.
type base struct {
	name  string
	speed time.Duration
	color Color
	next  time.Time
	start time.Time
}

func (b *base) Name() string     { return b.name }
func (b *base) Color() Color     { return b.color }
func (b *base) SetColor(c Color) { b.color = c }

func (b *base) elapsed(now time.Time) time.Duration {
	return now.Sub(b.start)
}

// Reset restarts the effect's timing on the next Animate.
func (b *base) Reset() {
	b.next = time.Time{}
	b.start = time.Time{}
}

// due reports whether a new step should be drawn at now and schedules the
// following one.
func (b *base) due(now time.Time) bool {
	if b.start.IsZero() {
		b.start = now
	}
	if now.Before(b.next) {
		return false
	}
	b.next = now.Add(b.speed)
	return true
}
