// Package supervisor keeps the network transport associated, retrying until
// it succeeds.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/events"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/metrics"
	"github.com/smazurov/lednode/internal/transport"
)

// DefaultRetryInterval is the pause between failed connect attempts.
const DefaultRetryInterval = 2 * time.Second

// Policy controls retrying. MaxAttempts of zero retries forever.
type Policy struct {
	RetryInterval time.Duration
	MaxAttempts   int
}

// DefaultPolicy retries every two seconds without limit.
func DefaultPolicy() Policy {
	return Policy{RetryInterval: DefaultRetryInterval}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(s *Supervisor) { s.policy = p }
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// WithPublisher sets where connectivity events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Supervisor) { s.events = p }
}

// Supervisor serializes connection checks and retries for one transport.
// It is shared by the control loop and the API handlers.
type Supervisor struct {
	mu     sync.Mutex
	handle transport.Handle
	creds  config.Credentials
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	events events.Publisher
	logger *slog.Logger

	// up is the last state published; nil before the first check.
	up *bool
}

// New creates a supervisor for handle.
func New(handle transport.Handle, creds config.Credentials, opts ...Option) *Supervisor {
	s := &Supervisor{
		handle: handle,
		creds:  creds,
		policy: DefaultPolicy(),
		sleep:  sleepContext,
		events: events.Discard,
		logger: logging.GetLogger("supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the supervised transport.
func (s *Supervisor) Handle() transport.Handle { return s.handle }

// EnsureConnected returns at once when the transport is associated.
// Otherwise it retries Connect, pausing RetryInterval after each failure,
// until it succeeds, ctx ends, or MaxAttempts is exhausted.
func (s *Supervisor) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle.IsConnected(ctx) {
		if s.up == nil || !*s.up {
			s.publish(true, 0, nil)
		}
		return nil
	}

	kind := string(s.handle.Kind())
	s.logger.Info("Ensuring network connection", "ssid", s.creds.SSID)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		metrics.IncConnectAttempt(kind)
		err := s.handle.Connect(ctx, s.creds)
		if err == nil {
			s.logger.Info("Network connected", "attempt", attempt)
			s.publish(true, attempt, nil)
			return nil
		}
		if faults.IsConfiguration(err) {
			return err
		}

		metrics.IncConnectFailure(kind)
		if !faults.IsConnectivity(err) {
			err = faults.Connectivity("connect", err)
		}
		s.logger.Warn("Could not connect to access point, retrying",
			"attempt", attempt, "retry_in", s.policy.RetryInterval, "error", err)
		s.publish(false, attempt, err)

		if s.policy.MaxAttempts > 0 && attempt >= s.policy.MaxAttempts {
			return err
		}
		if err := s.sleep(ctx, s.policy.RetryInterval); err != nil {
			return err
		}
	}
}

func (s *Supervisor) publish(connected bool, attempt int, err error) {
	s.up = &connected
	ev := events.ConnectivityChangedEvent{
		Connected: connected,
		Transport: string(s.handle.Kind()),
		Attempt:   attempt,
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.events.Publish(ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
