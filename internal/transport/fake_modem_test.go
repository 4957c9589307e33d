package transport

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// fakeModem emulates an ESP-AT co-processor on the other end of the serial
// port.
type fakeModem struct {
	mu       sync.Mutex
	out      bytes.Buffer
	in       []byte
	sendLeft int
	payload  []byte
	replies  map[string]string
	onSend   func(payload []byte) string
	commands []string
	closed   bool
}

func newFakeModem(replies map[string]string) *fakeModem {
	if replies == nil {
		replies = map[string]string{}
	}
	return &fakeModem{replies: replies}
}

func (m *fakeModem) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.out.Len() == 0 {
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	defer m.mu.Unlock()
	return m.out.Read(p)
}

func (m *fakeModem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in = append(m.in, p...)
	for len(m.in) > 0 {
		if m.sendLeft > 0 {
			n := min(len(m.in), m.sendLeft)
			m.payload = append(m.payload, m.in[:n]...)
			m.in = m.in[n:]
			m.sendLeft -= n
			if m.sendLeft == 0 {
				m.finishSend()
			}
			continue
		}
		idx := bytes.Index(m.in, []byte("\r\n"))
		if idx < 0 {
			break
		}
		cmd := string(m.in[:idx])
		m.in = m.in[idx+2:]
		m.handle(cmd)
	}
	return len(p), nil
}

func (m *fakeModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModem) handle(cmd string) {
	m.commands = append(m.commands, cmd)
	if size, ok := strings.CutPrefix(cmd, "AT+CIPSEND="); ok {
		m.sendLeft, _ = strconv.Atoi(size)
		m.payload = nil
		m.out.WriteString("\r\nOK\r\n> ")
		return
	}
	if reply, ok := m.replies[cmd]; ok {
		m.out.WriteString(reply)
		return
	}
	for key, reply := range m.replies {
		if strings.HasSuffix(key, "=") && strings.HasPrefix(cmd, key) {
			m.out.WriteString(reply)
			return
		}
	}
	m.out.WriteString("\r\nOK\r\n")
}

func (m *fakeModem) finishSend() {
	fmt.Fprintf(&m.out, "\r\nRecv %d bytes\r\n\r\nSEND OK\r\n", len(m.payload))
	if m.onSend == nil {
		return
	}
	resp := m.onSend(m.payload)
	for len(resp) > 0 {
		chunk := resp[:min(len(resp), 64)]
		resp = resp[len(chunk):]
		fmt.Fprintf(&m.out, "\r\n+IPD,%d:%s", len(chunk), chunk)
	}
	m.out.WriteString("CLOSED\r\n")
}

func (m *fakeModem) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
