// Package led holds the animation state, the effects and the pixel strip
// drivers.
package led

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an 8-bit RGB pixel value.
type Color struct {
	R uint8 `json:"r" minimum:"0" maximum:"255"`
	G uint8 `json:"g" minimum:"0" maximum:"255"`
	B uint8 `json:"b" minimum:"0" maximum:"255"`
}

// Named colors.
var (
	Black   = Color{0, 0, 0}
	White   = Color{255, 255, 255}
	Blue    = Color{0, 0, 255}
	Magenta = Color{255, 0, 20}
	Orange  = Color{255, 40, 0}
	Teal    = Color{0, 255, 40}
)

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGBA converts c to an opaque image/color value.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Scale returns c dimmed to level, clamped to [0, 1].
func (c Color) Scale(level float64) Color {
	switch {
	case level <= 0:
		return Black
	case level >= 1:
		return c
	}
	return fromColorful(toColorful(c).BlendRgb(colorful.Color{}, 1-level))
}

// Wheel returns a fully saturated color for a position on the color wheel,
// where 0 and 1 are both red.
func Wheel(pos float64) Color {
	pos -= float64(int(pos))
	if pos < 0 {
		pos++
	}
	return fromColorful(colorful.Hsv(pos*360, 1, 1))
}

func toColorful(c Color) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func fromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color{r, g, b}
}
