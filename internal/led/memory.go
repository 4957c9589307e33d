package led

import "sync"

// MemoryStrip keeps frames in memory. It backs headless runs and tests.
type MemoryStrip struct {
	*Buffer

	mu     sync.Mutex
	shows  int
	last   []Color
	failer func() error
}

// NewMemoryStrip creates an in-memory strip of n pixels.
func NewMemoryStrip(n int, brightness float64) *MemoryStrip {
	return &MemoryStrip{Buffer: NewBuffer(n, brightness)}
}

// Show records the scaled frame.
func (m *MemoryStrip) Show() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failer != nil {
		if err := m.failer(); err != nil {
			return err
		}
	}
	m.shows++
	m.last = m.Scaled()
	return nil
}

// FailWith makes Show return whatever fn returns; nil fn clears it.
func (m *MemoryStrip) FailWith(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failer = fn
}

// Shows returns how many frames were pushed.
func (m *MemoryStrip) Shows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shows
}

// LastFrame returns a copy of the last frame pushed.
func (m *MemoryStrip) LastFrame() []Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Color(nil), m.last...)
}
