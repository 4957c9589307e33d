package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const cipsendMax = 2048

// atConn is a TCP connection opened by the co-processor with AT+CIPSTART and
// carried over the AT link. The co-processor runs in single-connection mode,
// so at most one atConn is open at a time; release frees the slot.
type atConn struct {
	link    *atLink
	remote  atAddr
	timeout time.Duration
	release func()

	closed    atomic.Bool
	closeOnce sync.Once

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
}

type atAddr string

func (a atAddr) Network() string { return "tcp" }
func (a atAddr) String() string  { return string(a) }

func (c *atConn) Read(p []byte) (int, error) {
	for {
		if c.closed.Load() {
			return 0, net.ErrClosed
		}
		if d := c.deadline(true); !d.IsZero() && time.Now().After(d) {
			return 0, os.ErrDeadlineExceeded
		}
		n, err := c.link.Receive(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (c *atConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if c.closed.Load() {
			return written, net.ErrClosed
		}
		ctx, cancel := c.writeContext()
		chunk := p[written:min(len(p), written+cipsendMax)]
		err := c.link.Send(ctx, chunk, c.timeout)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return written, os.ErrDeadlineExceeded
			}
			return written, err
		}
		written += len(chunk)
	}
	return written, nil
}

// Close sends AT+CIPCLOSE and frees the socket slot. A reply of ERROR means
// the peer already closed the socket and is ignored.
func (c *atConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_, err = c.link.Command(ctx, "AT+CIPCLOSE", c.timeout)
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			err = nil
		}
		c.release()
	})
	return err
}

func (c *atConn) LocalAddr() net.Addr  { return atAddr("coprocessor") }
func (c *atConn) RemoteAddr() net.Addr { return c.remote }

func (c *atConn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline, c.writeDeadline = t, t
	return nil
}

func (c *atConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *atConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

func (c *atConn) deadline(read bool) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if read {
		return c.readDeadline
	}
	return c.writeDeadline
}

func (c *atConn) writeContext() (context.Context, context.CancelFunc) {
	if d := c.deadline(false); !d.IsZero() {
		return context.WithDeadline(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}
