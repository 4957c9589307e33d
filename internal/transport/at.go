package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	atReadChunk   = 512
	ipdPrefix     = "+IPD,"
	atPrompt      = ">"
	atMaxIPDFrame = 8192
)

var errATTimeout = fmt.Errorf("timed out waiting for reply: %w", os.ErrDeadlineExceeded)

// CommandError is a command the co-processor answered with ERROR or FAIL.
type CommandError struct {
	Command string
	Reply   string
	Lines   []string
}

func (e *CommandError) Error() string {
	if len(e.Lines) == 0 {
		return fmt.Sprintf("%s: %s", e.Command, e.Reply)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Command, e.Reply, strings.Join(e.Lines, "; "))
}

// atLink frames ESP-AT commands and replies over a byte stream. Socket
// payloads announced with +IPD may arrive between any two reply lines; they
// are set aside in ipd for the tunnelled connection to read.
type atLink struct {
	mu      sync.Mutex
	rw      io.ReadWriter
	buf     []byte
	ipd     []byte
	peerEOF bool
}

func newATLink(rw io.ReadWriter) *atLink {
	return &atLink{rw: rw}
}

// Command sends cmd and collects the reply lines up to OK.
func (l *atLink) Command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(cmd + "\r\n"); err != nil {
		return nil, err
	}
	return l.await(ctx, cmd, replyDeadline(ctx, timeout), "OK")
}

// replyDeadline is now+timeout, or the context deadline when that is sooner.
func replyDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// commandName is cmd as it may appear in errors and logs. Arguments of the
// join command carry the password and are dropped.
func commandName(cmd string) string {
	if name, _, ok := strings.Cut(cmd, "="); ok && name == "AT+CWJAP" {
		return name
	}
	return cmd
}

// Send writes payload on the open socket with AT+CIPSEND.
func (l *atLink) Send(ctx context.Context, payload []byte, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmd := "AT+CIPSEND=" + strconv.Itoa(len(payload))
	deadline := replyDeadline(ctx, timeout)
	if err := l.write(cmd + "\r\n"); err != nil {
		return err
	}
	if _, err := l.await(ctx, cmd, deadline, atPrompt); err != nil {
		return err
	}
	if _, err := l.rw.Write(payload); err != nil {
		return fmt.Errorf("write socket payload: %w", err)
	}
	_, err := l.await(ctx, cmd, deadline, "SEND OK")
	return err
}

// Receive copies buffered socket payload into p, reading from the port at
// most once when nothing is buffered. It returns (0, nil) when no data
// arrived within the port's read timeout.
func (l *atLink) Receive(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.ipd) == 0 {
		line, ok, err := l.parse()
		if err != nil {
			return 0, err
		}
		if ok {
			l.observe(line)
			continue
		}
		if l.peerEOF {
			return 0, io.EOF
		}
		n, err := l.fill()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
	}
	n := copy(p, l.ipd)
	l.ipd = l.ipd[n:]
	return n, nil
}

// ResetSocket discards socket state before a new connection is opened.
func (l *atLink) ResetSocket() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ipd = nil
	l.peerEOF = false
}

func (l *atLink) write(s string) error {
	if _, err := io.WriteString(l.rw, s); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// await reads lines until one of accept arrives, failing on ERROR/FAIL.
func (l *atLink) await(ctx context.Context, cmd string, deadline time.Time, accept ...string) ([]string, error) {
	var lines []string
	for {
		if err := ctx.Err(); err != nil {
			return lines, err
		}
		line, err := l.nextLine(deadline)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
				err = context.DeadlineExceeded
			}
			return lines, fmt.Errorf("%s: %w", commandName(cmd), err)
		}
		switch {
		case slices.Contains(accept, line):
			return lines, nil
		case line == "ERROR" || line == "FAIL" || line == "SEND FAIL":
			return lines, &CommandError{Command: commandName(cmd), Reply: line, Lines: lines}
		case line == cmd:
			// echo
		case l.observe(line):
		default:
			lines = append(lines, line)
		}
	}
}

// observe records unsolicited socket notifications and reports whether line
// was one.
func (l *atLink) observe(line string) bool {
	if line == "CLOSED" || strings.HasSuffix(line, ",CLOSED") {
		l.peerEOF = true
		return true
	}
	return false
}

func (l *atLink) nextLine(deadline time.Time) (string, error) {
	for {
		line, ok, err := l.parse()
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", errATTimeout
		}
		if _, err := l.fill(); err != nil {
			return "", err
		}
	}
}

// parse consumes one complete line, prompt or +IPD frame from buf. Frames are
// moved to ipd and parsing continues with whatever follows them.
func (l *atLink) parse() (string, bool, error) {
	for {
		l.buf = bytes.TrimLeft(l.buf, "\r\n")
		switch {
		case len(l.buf) == 0:
			return "", false, nil

		case bytes.HasPrefix(l.buf, []byte(ipdPrefix)):
			colon := bytes.IndexByte(l.buf, ':')
			if colon < 0 {
				if len(l.buf) > len(ipdPrefix)+8 {
					return "", false, fmt.Errorf("malformed %q header", ipdPrefix)
				}
				return "", false, nil
			}
			n, err := strconv.Atoi(string(l.buf[len(ipdPrefix):colon]))
			if err != nil || n < 0 || n > atMaxIPDFrame {
				return "", false, fmt.Errorf("malformed %q length %q", ipdPrefix, l.buf[len(ipdPrefix):colon])
			}
			end := colon + 1 + n
			if len(l.buf) < end {
				return "", false, nil
			}
			l.ipd = append(l.ipd, l.buf[colon+1:end]...)
			l.buf = l.buf[end:]

		case l.buf[0] == '>':
			l.buf = bytes.TrimPrefix(l.buf[1:], []byte(" "))
			return atPrompt, true, nil

		default:
			nl := bytes.IndexByte(l.buf, '\n')
			if nl < 0 {
				return "", false, nil
			}
			line := strings.TrimRight(string(l.buf[:nl]), "\r")
			l.buf = l.buf[nl+1:]
			return line, true, nil
		}
	}
}

// fill reads once from the port. Serial ports return (0, nil) when their
// read timeout expires.
func (l *atLink) fill() (int, error) {
	tmp := make([]byte, atReadChunk)
	n, err := l.rw.Read(tmp)
	l.buf = append(l.buf, tmp[:n]...)
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return n, fmt.Errorf("read: %w", err)
	}
	return n, nil
}

// quoteAT quotes s as an AT string argument, escaping the characters the
// firmware treats specially.
func quoteAT(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == ',' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// splitATFields splits the argument list of a reply such as
// (3,"home,net",-52,"aa:bb:cc:dd:ee:ff",6) into unquoted fields.
func splitATFields(s string) []string {
	s = strings.TrimPrefix(strings.TrimSuffix(s, ")"), "(")
	var (
		fields  []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}
