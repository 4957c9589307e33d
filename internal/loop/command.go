package loop

import (
	"context"
	"errors"
	"net/http"

	"github.com/smazurov/lednode/internal/led"
)

// Handler applies a command body to the animation state and returns an
// optional reply body.
type Handler func(s *led.State, body []byte) (any, error)

// Route is one entry of the command table.
type Route struct {
	Method  string
	Handler Handler
	// ReadOnly routes do not change what the strip shows.
	ReadOnly bool
}

// Routes maps a request path to its route. It is built once and never
// mutated afterwards.
type Routes map[string]Route

// Command is a request handed from an API goroutine to the loop.
type Command struct {
	Route string
	Body  []byte
	// Reply receives exactly one Result. It must be buffered.
	Reply chan Result
}

// Result is the loop's answer to a Command.
type Result struct {
	Status int
	Body   any
	Err    error
}

// ErrQueueClosed is returned by Submit after Run has returned.
var ErrQueueClosed = errors.New("control loop stopped")

// Submit queues a command and waits for its result. It gives up when ctx
// ends before the loop picks the command up or answers it.
func (l *Loop) Submit(ctx context.Context, route string, body []byte) Result {
	cmd := Command{Route: route, Body: body, Reply: make(chan Result, 1)}

	select {
	case l.inbox <- cmd:
	case <-l.done:
		return Result{Status: http.StatusServiceUnavailable, Err: ErrQueueClosed}
	case <-ctx.Done():
		return Result{Status: http.StatusServiceUnavailable, Err: ctx.Err()}
	}

	select {
	case res := <-cmd.Reply:
		return res
	case <-l.done:
		return Result{Status: http.StatusServiceUnavailable, Err: ErrQueueClosed}
	case <-ctx.Done():
		return Result{Status: http.StatusServiceUnavailable, Err: ctx.Err()}
	}
}
