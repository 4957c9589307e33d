package timesync

import (
	"testing"
	"time"
)

func TestSoftClock(t *testing.T) {
	local := time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local)
	c := NewSoftClock()
	c.now = func() time.Time { return local }

	if c.IsSet() {
		t.Fatal("new clock reports set")
	}
	if !c.Now().IsZero() {
		t.Errorf("unset Now() = %v, want zero", c.Now())
	}

	c.SetTime(TimeSample{Year: 2024, Month: 3, Day: 5, Hour: 14, Minute: 22, Second: 7})
	local = local.Add(90 * time.Second)

	if !c.IsSet() {
		t.Fatal("IsSet() = false after SetTime")
	}
	want := time.Date(2024, 3, 5, 14, 23, 37, 0, time.UTC)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}
