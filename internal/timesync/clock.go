package timesync

import (
	"sync"
	"time"
)

// ClockSink receives a freshly fetched time.
type ClockSink interface {
	SetTime(TimeSample)
}

// SoftClock is a ClockSink that keeps running from the last sample using the
// local monotonic clock.
type SoftClock struct {
	mu   sync.RWMutex
	base time.Time
	at   time.Time
	set  bool

	now func() time.Time
}

// NewSoftClock returns an unset clock.
func NewSoftClock() *SoftClock {
	return &SoftClock{now: time.Now}
}

// SetTime implements ClockSink.
func (c *SoftClock) SetTime(s TimeSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = s.Time()
	c.at = c.now()
	c.set = true
}

// IsSet reports whether SetTime has been called.
func (c *SoftClock) IsSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// Now returns the sampled wall time advanced by the time elapsed since it
// was set. It returns the zero time while the clock is unset.
func (c *SoftClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return time.Time{}
	}
	return c.base.Add(c.now().Sub(c.at))
}
