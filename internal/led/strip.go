package led

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Strip is a pixel buffer attached to physical LEDs. Set and Fill only touch
// the buffer; Show pushes it out.
type Strip interface {
	Len() int
	Set(i int, c Color)
	Fill(c Color)
	Show() error
}

// StripConfig selects and parameterizes a strip driver.
type StripConfig struct {
	Driver     string
	Pixels     int
	Brightness float64
	Address    string
	Channel    uint8
}

// DriverFunc builds a strip from its configuration.
type DriverFunc func(cfg StripConfig) (Strip, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]DriverFunc{
		"memory": func(cfg StripConfig) (Strip, error) { return NewMemoryStrip(cfg.Pixels, cfg.Brightness), nil },
		"opc":    func(cfg StripConfig) (Strip, error) { return NewOPCStrip(cfg) },
	}
)

// RegisterDriver makes a strip driver available to NewStrip.
func RegisterDriver(name string, fn DriverFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = fn
}

// Drivers lists the registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStrip builds the strip named by cfg.Driver.
func NewStrip(cfg StripConfig) (Strip, error) {
	if cfg.Pixels <= 0 {
		return nil, fmt.Errorf("strip needs at least one pixel, got %d", cfg.Pixels)
	}
	if cfg.Brightness < 0 || cfg.Brightness > 1 {
		return nil, fmt.Errorf("strip brightness %v out of range [0, 1]", cfg.Brightness)
	}

	driversMu.RLock()
	fn, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strip driver %q (available: %v)", cfg.Driver, Drivers())
	}
	return fn(cfg)
}

// Buffer is the pixel storage shared by the drivers.
type Buffer struct {
	pixels     []Color
	brightness float64
}

// NewBuffer allocates n black pixels.
func NewBuffer(n int, brightness float64) *Buffer {
	return &Buffer{pixels: make([]Color, n), brightness: brightness}
}

func (b *Buffer) Len() int { return len(b.pixels) }

// Set ignores indexes outside the strip.
func (b *Buffer) Set(i int, c Color) {
	if i < 0 || i >= len(b.pixels) {
		return
	}
	b.pixels[i] = c
}

func (b *Buffer) Fill(c Color) {
	for i := range b.pixels {
		b.pixels[i] = c
	}
}

// Get returns the unscaled value of pixel i.
func (b *Buffer) Get(i int) Color {
	if i < 0 || i >= len(b.pixels) {
		return Black
	}
	return b.pixels[i]
}

// Brightness returns the global scale applied on Show.
func (b *Buffer) Brightness() float64 { return b.brightness }

// Scaled returns the pixels with brightness applied, as sent to the LEDs.
func (b *Buffer) Scaled() []Color {
	out := make([]Color, len(b.pixels))
	for i, c := range b.pixels {
		out[i] = Color{
			R: scaleChannel(c.R, b.brightness),
			G: scaleChannel(c.G, b.brightness),
			B: scaleChannel(c.B, b.brightness),
		}
	}
	return out
}

func scaleChannel(v uint8, brightness float64) uint8 {
	return uint8(math.Round(float64(v) * brightness))
}
