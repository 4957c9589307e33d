package metrics

import (
	"errors"
	"sync"
	"testing"
)

func TestLoopStatsSnapshot(t *testing.T) {
	before := GetLoopStats()

	IncLoopIteration()
	IncLoopIteration()
	IncRecovery("render", errors.New("serial read timeout"))

	after := GetLoopStats()
	if after.Iterations-before.Iterations != 2 {
		t.Errorf("iterations advanced by %d, want 2", after.Iterations-before.Iterations)
	}
	if after.Recoveries-before.Recoveries != 1 {
		t.Errorf("recoveries advanced by %d, want 1", after.Recoveries-before.Recoveries)
	}
	if after.LastFault != "serial read timeout" {
		t.Errorf("LastFault = %q", after.LastFault)
	}
	if after.LastRecovery.IsZero() {
		t.Error("LastRecovery should be set")
	}
}

func TestLoopStatsConcurrency(t *testing.T) {
	before := GetLoopStats().Iterations

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncLoopIteration()
			_ = GetLoopStats()
		}()
	}
	wg.Wait()

	if got := GetLoopStats().Iterations - before; got != 50 {
		t.Errorf("iterations advanced by %d, want 50", got)
	}
}
