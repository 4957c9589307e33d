package transport

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/faults"
)

const (
	defaultSerialReadTimeout = 300 * time.Millisecond
	defaultBaudRate          = 115200

	atCommandTimeout = 2 * time.Second
	atJoinTimeout    = 20 * time.Second
	atScanTimeout    = 15 * time.Second
	atSocketTimeout  = 10 * time.Second
)

// SerialConfig describes the serial bus to the co-processor.
type SerialConfig struct {
	Port     string
	BaudRate int
}

// Coprocessor is a Handle backed by an ESP-AT co-processor on a serial bus.
type Coprocessor struct {
	port   io.ReadWriteCloser
	link   *atLink
	socket chan struct{}
	logger *slog.Logger
}

// OpenCoprocessor opens the serial port and puts the co-processor into
// station, single-connection mode.
func OpenCoprocessor(ctx context.Context, cfg SerialConfig) (*Coprocessor, error) {
	if cfg.Port == "" {
		return nil, faults.Configuration("open coprocessor", "serial port is empty")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = defaultBaudRate
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}

	c := newCoprocessor(port, transportLogger(KindCoprocessorBus, "port", cfg.Port))
	if err := c.init(ctx); err != nil {
		_ = port.Close()
		return nil, err
	}
	return c, nil
}

func newCoprocessor(port io.ReadWriteCloser, logger *slog.Logger) *Coprocessor {
	c := &Coprocessor{
		port:   port,
		link:   newATLink(port),
		socket: make(chan struct{}, 1),
		logger: logger,
	}
	return c
}

func (c *Coprocessor) init(ctx context.Context) error {
	for _, cmd := range []string{"AT", "ATE0", "AT+CWMODE=1", "AT+CIPMUX=0"} {
		if _, err := c.link.Command(ctx, cmd, atCommandTimeout); err != nil {
			return fmt.Errorf("initialize coprocessor: %w", err)
		}
	}
	c.logger.Debug("Coprocessor initialized")
	return nil
}

func (c *Coprocessor) Kind() Kind { return KindCoprocessorBus }

// Connect joins the access point named in creds.
func (c *Coprocessor) Connect(ctx context.Context, creds config.Credentials) error {
	if creds.SSID == "" {
		return faults.Configuration("connect", "'ssid' is missing from the secrets file")
	}
	cmd := "AT+CWJAP=" + quoteAT(creds.SSID) + "," + quoteAT(creds.Password)
	if _, err := c.link.Command(ctx, cmd, atJoinTimeout); err != nil {
		return faults.Connectivity("join "+creds.SSID, err)
	}
	c.logger.Info("Joined access point", "ssid", creds.SSID)
	return nil
}

// IsConnected asks the co-processor which access point it is joined to.
func (c *Coprocessor) IsConnected(ctx context.Context) bool {
	lines, err := c.link.Command(ctx, "AT+CWJAP?", atCommandTimeout)
	if err != nil {
		c.logger.Debug("Connection query failed", "error", err)
		return false
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "+CWJAP:") {
			return true
		}
	}
	return false
}

// ScanNetworks runs AT+CWLAP when the sequence is first ranged over.
func (c *Coprocessor) ScanNetworks(ctx context.Context) iter.Seq[Network] {
	var used atomic.Bool
	return func(yield func(Network) bool) {
		if used.Swap(true) {
			c.logger.Warn("Network scan sequence reused; it yields only once")
			return
		}
		lines, err := c.link.Command(ctx, "AT+CWLAP", atScanTimeout)
		if err != nil {
			c.logger.Warn("Network scan failed", "error", err)
			return
		}
		for _, line := range lines {
			n, ok := parseCWLAP(line)
			if !ok {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// Identity reports the AT firmware version and station MAC address.
func (c *Coprocessor) Identity(ctx context.Context) (Identity, error) {
	var id Identity
	lines, err := c.link.Command(ctx, "AT+GMR", atCommandTimeout)
	if err != nil {
		return id, err
	}
	for _, line := range lines {
		if v, ok := strings.CutPrefix(line, "AT version:"); ok {
			id.Firmware = v
			break
		}
	}

	lines, err = c.link.Command(ctx, "AT+CIPSTAMAC?", atCommandTimeout)
	if err != nil {
		return id, err
	}
	for _, line := range lines {
		if v, ok := strings.CutPrefix(line, "+CIPSTAMAC:"); ok {
			id.MAC = strings.Trim(v, `"`)
		}
	}
	return id, nil
}

// NewHTTPClient returns a client that dials through the co-processor's
// socket. Keep-alives are disabled because the co-processor holds one
// socket at a time.
func (c *Coprocessor) NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         c.DialContext,
			DisableKeepAlives:   true,
			MaxConnsPerHost:     1,
			TLSHandshakeTimeout: 15 * time.Second,
		},
	}
}

// DialContext opens a TCP socket with AT+CIPSTART. It blocks while another
// socket is open.
func (c *Coprocessor) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, fmt.Errorf("coprocessor cannot dial %s", network)
	}
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	select {
	case c.socket <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-c.socket }

	c.link.ResetSocket()
	cmd := fmt.Sprintf(`AT+CIPSTART="TCP",%s,%d`, quoteAT(host), port)
	if _, err := c.link.Command(ctx, cmd, atSocketTimeout); err != nil {
		release()
		return nil, faults.Connectivity("dial "+address, err)
	}

	c.logger.Debug("Socket opened", "address", address)
	return &atConn{
		link:    c.link,
		remote:  atAddr(address),
		timeout: atSocketTimeout,
		release: release,
	}, nil
}

// Close closes the serial port.
func (c *Coprocessor) Close() error {
	return c.port.Close()
}

// parseCWLAP parses +CWLAP:(ecn,"ssid",rssi,"mac",channel,...).
func parseCWLAP(line string) (Network, bool) {
	rest, ok := strings.CutPrefix(line, "+CWLAP:")
	if !ok {
		return Network{}, false
	}
	fields := splitATFields(rest)
	if len(fields) < 5 {
		return Network{}, false
	}
	rssi, err := strconv.Atoi(fields[2])
	if err != nil {
		return Network{}, false
	}
	channel, err := strconv.Atoi(fields[4])
	if err != nil {
		return Network{}, false
	}
	return Network{SSID: fields[1], RSSI: rssi, Channel: channel}, true
}
