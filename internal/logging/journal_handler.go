package logging

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry written by this process.
const SyslogIdentifier = "lednode"

// JournalHandler writes records to the systemd journal as structured fields.
// Attribute keys become upper-case field names, nested under their groups
// with "_"; characters journald rejects are replaced.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
	send   func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournalHandler creates a journal handler. Passing a *slog.LevelVar lets
// the level follow runtime reconfiguration.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, send: journal.Send}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+4)
	maps.Copy(fields, h.fields)
	r.Attrs(func(a slog.Attr) bool {
		putField(fields, h.prefix, a)
		return true
	})

	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fields["CODE_FILE"] = frame.File
		fields["CODE_LINE"] = strconv.Itoa(frame.Line)
		fields["CODE_FUNC"] = frame.Function
	}
	return h.send(r.Message, priority(r.Level), fields)
}

// WithAttrs implements slog.Handler. Attributes are rendered once here.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = maps.Clone(h.fields)
	if next.fields == nil {
		next.fields = make(map[string]string, len(attrs))
	}
	for _, a := range attrs {
		putField(next.fields, h.prefix, a)
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = journalKey(h.prefix, name)
	return &next
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func putField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := journalKey(prefix, a.Key)

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, member := range a.Value.Group() {
			putField(fields, key, member)
		}
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			fields[key] = err.Error()
		} else {
			fields[key] = a.Value.String()
		}
	default:
		if key != "" {
			fields[key] = a.Value.String()
		}
	}
}

// journalKey upper-cases key, maps anything outside [A-Z0-9_] to '_' and
// joins it to prefix. Leading underscores are reserved for journald itself.
func journalKey(prefix, key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
	switch {
	case name == "":
		name = prefix
	case prefix != "":
		name = prefix + "_" + name
	}
	return strings.TrimLeft(name, "_")
}

// IsJournalAvailable reports whether the journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
