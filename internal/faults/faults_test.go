package faults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := Service("fetch time", "status 500", errors.New("boom"))
	got := err.Error()
	for _, want := range []string{"SERVICE", "fetch time", "status 500", "boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestKindHelpers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Configuration("time", "missing aio_username"))
	if !IsConfiguration(wrapped) {
		t.Error("IsConfiguration() = false for wrapped configuration error")
	}
	if IsService(wrapped) {
		t.Error("IsService() = true for configuration error")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain) should be empty")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connectivity", Connectivity("connect", errors.New("no ap")), true},
		{"service", Service("weather", "status 502", nil), true},
		{"configuration", Configuration("time", "missing key"), false},
		{"bad request", BadRequest("r out of range"), false},
		{"eof", fmt.Errorf("read: %w", io.EOF), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Connectivity("connect", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}
