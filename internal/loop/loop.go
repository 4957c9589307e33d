// Package loop runs the single goroutine that owns the LED state: it animates
// the strip at a steady cadence, applies commands from the API one at a time
// and re-establishes connectivity after transient faults.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/smazurov/lednode/internal/events"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/led"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/metrics"
)

// DefaultFrameInterval is the pause between loop iterations.
const DefaultFrameInterval = 10 * time.Millisecond

// DefaultInboxSize is how many commands may wait for the loop.
const DefaultInboxSize = 8

// faultLogInterval limits how often an identical fault is logged.
const faultLogInterval = 5 * time.Second

// State is a control loop state.
type State int

// Loop states.
const (
	StateDispatch State = iota
	StateRender
	StateRecover
)

func (s State) String() string {
	switch s {
	case StateDispatch:
		return "dispatch"
	case StateRender:
		return "render"
	case StateRecover:
		return "recover"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Supervisor re-establishes connectivity.
type Supervisor interface {
	EnsureConnected(ctx context.Context) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithFrameInterval sets the pause between iterations. Zero runs iterations
// back to back.
func WithFrameInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithInboxSize sets the command queue capacity.
func WithInboxSize(n int) Option {
	return func(l *Loop) { l.inbox = make(chan Command, n) }
}

// WithPublisher sets where loop events go.
func WithPublisher(p events.Publisher) Option {
	return func(l *Loop) { l.events = p }
}

// WithWatchdog sets a function called after every iteration.
func WithWatchdog(fn func()) Option {
	return func(l *Loop) { l.watchdog = fn }
}

// WithClock replaces the time source handed to effects.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop is the control loop. Create it with New and start it with Run.
type Loop struct {
	state    *led.State
	routes   Routes
	sup      Supervisor
	inbox    chan Command
	done     chan struct{}
	interval time.Duration
	events   events.Publisher
	watchdog func()
	now      func() time.Time
	logger   *slog.Logger

	current State
	// faulted and cause describe the fault that led to StateRecover.
	faulted State
	cause   error

	lastFault   string
	lastFaultAt time.Time
}

// New creates a loop that owns state. The state must not be touched by
// anything else once Run starts.
func New(state *led.State, routes Routes, sup Supervisor, opts ...Option) *Loop {
	l := &Loop{
		state:    state,
		routes:   routes,
		sup:      sup,
		inbox:    make(chan Command, DefaultInboxSize),
		done:     make(chan struct{}),
		interval: DefaultFrameInterval,
		events:   events.Discard,
		watchdog: func() {},
		now:      time.Now,
		logger:   logging.GetLogger("loop"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Current returns the state the loop will execute next. It is only
// meaningful from the loop goroutine or after Run returned.
func (l *Loop) Current() State { return l.current }

// Run executes the loop until ctx is cancelled. Faults never stop it.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	var tick <-chan time.Time
	if l.interval > 0 {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	l.logger.Info("Control loop started", "frame_interval", l.interval)
	l.announce("")
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("Control loop stopped")
			return err
		}

		if l.Step(ctx) != StateDispatch {
			continue
		}

		// An iteration ends each time the loop is back at dispatch.
		metrics.IncLoopIteration()
		l.watchdog()
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-tick:
		}
	}
}

// Step executes the current state once and returns the next one.
func (l *Loop) Step(ctx context.Context) State {
	var err error
	next := StateDispatch

	switch l.current {
	case StateDispatch:
		err = l.dispatch()
		next = StateRender
	case StateRender:
		err = l.render()
	case StateRecover:
		l.reconnect(ctx)
	}

	if err != nil && l.fault(err) {
		l.faulted, l.cause = l.current, err
		next = StateRecover
	}
	l.current = next
	return next
}

// fault logs err and reports whether it is transient.
func (l *Loop) fault(err error) bool {
	transient := faults.IsTransient(err)
	metrics.IncFault(transient)

	now := l.now()
	msg := err.Error()
	if msg != l.lastFault || now.Sub(l.lastFaultAt) >= faultLogInterval {
		l.lastFault, l.lastFaultAt = msg, now
		if transient {
			l.logger.Warn("Transient fault, recovering", "state", l.current.String(), "error", err)
		} else {
			l.logger.Error("Fault in control loop", "state", l.current.String(), "error", err)
		}
	}
	return transient
}

func (l *Loop) dispatch() error {
	var cmd Command
	select {
	case cmd = <-l.inbox:
	default:
		return nil
	}

	res, err := l.apply(cmd)
	if res.Err != nil && !errors.Is(res.Err, faults.ErrBadRequest) {
		l.logger.Debug("Command failed", "route", cmd.Route, "status", res.Status, "error", res.Err)
	}
	metrics.IncCommand(cmd.Route, res.Status)
	cmd.Reply <- res
	return err
}

// apply runs one command. The returned error is the fault to act on, if
// any; client errors are only reported in the Result.
func (l *Loop) apply(cmd Command) (Result, error) {
	route, ok := l.routes[cmd.Route]
	if !ok {
		return Result{Status: http.StatusNotFound, Err: faults.BadRequest("no route %s", cmd.Route)}, nil
	}

	var body any
	err := safely(func() error {
		var herr error
		body, herr = route.Handler(l.state, cmd.Body)
		return herr
	})

	switch {
	case err == nil:
	case errors.Is(err, faults.ErrBadRequest):
		return Result{Status: http.StatusBadRequest, Err: err}, nil
	case faults.IsTransient(err):
		return Result{Status: http.StatusServiceUnavailable, Err: err}, err
	default:
		return Result{Status: http.StatusInternalServerError, Err: err}, err
	}

	if !route.ReadOnly {
		l.announce(cmd.Route)
	}
	return Result{Status: http.StatusOK, Body: body}, nil
}

func (l *Loop) announce(route string) {
	effect, c := l.state.Showing()
	ev := events.EffectChangedEvent{
		Effect:    effect,
		Route:     route,
		Color:     [3]uint8{c.R, c.G, c.B},
		Timestamp: time.Now(),
	}
	metrics.SetActiveEffect(ev.Effect)
	l.events.Publish(ev)
}

func (l *Loop) render() error {
	start := time.Now()
	err := safely(func() error { return l.state.Render(l.now()) })
	metrics.ObserveFrame(time.Since(start))
	return err
}

// reconnect brings the network back once and returns to dispatch whatever the
// outcome; a still-broken network faults again on the next iteration.
func (l *Loop) reconnect(ctx context.Context) {
	from, cause := l.faulted, l.cause
	l.cause = nil

	metrics.IncRecovery(from.String(), cause)
	start := time.Now()
	err := l.sup.EnsureConnected(ctx)
	ev := events.RecoveryEvent{
		From:      from.String(),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if cause != nil {
		ev.Cause = cause.Error()
	}
	if err != nil {
		ev.Err = err.Error()
		if ctx.Err() == nil {
			l.logger.Error("Recovery did not restore connectivity", "from", from.String(), "error", err)
		}
	} else {
		l.logger.Info("Recovered", "from", from.String(), "duration", ev.Duration)
	}
	l.events.Publish(ev)
}

// safely runs fn, turning a panic into an error. Runtime error panics stay
// recognizable as runtime.Error.
func safely(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if rerr, ok := r.(runtime.Error); ok {
			err = fmt.Errorf("recovered panic: %w", rerr)
			return
		}
		if perr, ok := r.(error); ok {
			err = fmt.Errorf("recovered panic: %w", perr)
			return
		}
		err = fmt.Errorf("recovered panic: %v", r)
	}()
	return fn()
}
