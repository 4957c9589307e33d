package led

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	opcSetPixels    = 0
	opcDialTimeout  = 2 * time.Second
	opcWriteTimeout = 100 * time.Millisecond
	opcRedialEvery  = time.Second
)

// ErrStripOffline is returned by Show while no OPC connection is up. It is
// not a network fault: the frame is dropped and a redial runs in the
// background.
var ErrStripOffline = errors.New("strip offline")

// OPCStrip sends frames to an Open Pixel Control server such as fcserver.
// Show never dials: a missing connection is dialed on a background goroutine
// at most once per redial interval, and frames are dropped until it is up.
type OPCStrip struct {
	*Buffer

	address string
	channel uint8
	frame   []byte
	dial    Dialer
	redial  time.Duration
	now     func() time.Time

	mu       sync.Mutex
	conn     net.Conn
	dialing  bool
	lastDial time.Time
	dialErr  error
	closed   bool
}

// Dialer opens the connection to the OPC server.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// OPCOption configures an OPCStrip.
type OPCOption func(*OPCStrip)

// WithDialer replaces net.DialTimeout.
func WithDialer(d Dialer) OPCOption {
	return func(o *OPCStrip) { o.dial = d }
}

// NewOPCStrip creates an OPC strip for cfg.Address. No connection is made
// until Connect or the first Show.
func NewOPCStrip(cfg StripConfig, opts ...OPCOption) (*OPCStrip, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("opc strip requires an address")
	}
	o := &OPCStrip{
		Buffer:  NewBuffer(cfg.Pixels, cfg.Brightness),
		address: cfg.Address,
		channel: cfg.Channel,
		frame:   make([]byte, 4+3*cfg.Pixels),
		dial:    net.DialTimeout,
		redial:  opcRedialEvery,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Connect dials synchronously. It is meant for startup, before the loop runs.
func (o *OPCStrip) Connect() error {
	o.mu.Lock()
	if o.conn != nil {
		o.mu.Unlock()
		return nil
	}
	o.dialing = true
	o.lastDial = o.now()
	o.mu.Unlock()
	return o.connect()
}

// Show writes one set-pixel-colors message.
func (o *OPCStrip) Show() error {
	conn, err := o.current()
	if conn == nil {
		return err
	}

	o.frame[0] = o.channel
	o.frame[1] = opcSetPixels
	binary.BigEndian.PutUint16(o.frame[2:4], uint16(3*o.Len()))
	for i, c := range o.Scaled() {
		o.frame[4+3*i] = c.R
		o.frame[5+3*i] = c.G
		o.frame[6+3*i] = c.B
	}

	if err := conn.SetWriteDeadline(time.Now().Add(opcWriteTimeout)); err != nil {
		o.drop(conn)
		return fmt.Errorf("opc deadline: %w", err)
	}
	if _, err := conn.Write(o.frame); err != nil {
		o.drop(conn)
		return fmt.Errorf("opc write %s: %w", o.address, err)
	}
	return nil
}

// Close drops the connection and stops redialing.
func (o *OPCStrip) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.conn == nil {
		return nil
	}
	err := o.conn.Close()
	o.conn = nil
	return err
}

// current returns the live connection, or nil and an ErrStripOffline error
// after starting a background dial if the last one is old enough.
func (o *OPCStrip) current() (net.Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn != nil {
		return o.conn, nil
	}
	if !o.closed && !o.dialing && o.now().Sub(o.lastDial) >= o.redial {
		o.dialing = true
		o.lastDial = o.now()
		go func() { _ = o.connect() }()
	}
	if o.dialErr != nil {
		return nil, fmt.Errorf("opc %s: %w (last dial: %v)", o.address, ErrStripOffline, o.dialErr)
	}
	return nil, fmt.Errorf("opc %s: %w", o.address, ErrStripOffline)
}

func (o *OPCStrip) connect() error {
	conn, err := o.dial("tcp", o.address, opcDialTimeout)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.dialing = false
	o.dialErr = err
	if err != nil {
		return fmt.Errorf("opc dial %s: %w", o.address, err)
	}
	if o.closed {
		return conn.Close()
	}
	o.conn = conn
	return nil
}

func (o *OPCStrip) drop(conn net.Conn) {
	_ = conn.Close()
	o.mu.Lock()
	if o.conn == conn {
		o.conn = nil
	}
	o.mu.Unlock()
}
