package netstate

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"
)

func TestMonitorStartsOnline(t *testing.T) {
	m := NewMonitor(nil, time.Second, log.New(&bytes.Buffer{}, "", 0))
	if !m.Online() {
		t.Fatal("expected monitor to start online")
	}
}

func TestMonitorCheck(t *testing.T) {
	tests := []struct {
		name string
		ping Ping
		want bool
	}{
		{"ping ok", func(context.Context) error { return nil }, true},
		{"ping error", func(context.Context) error { return errors.New("refused") }, false},
		{"ping hangs", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(tt.ping, 20*time.Millisecond, log.New(&bytes.Buffer{}, "", 0))
			if got := m.Check(context.Background()); got != tt.want {
				t.Fatalf("Check() = %t, want %t", got, tt.want)
			}
			if m.Online() != tt.want {
				t.Fatalf("Online() = %t, want %t", m.Online(), tt.want)
			}
		})
	}
}

func TestMonitorLogsTransitionsOnce(t *testing.T) {
	var logs bytes.Buffer
	m := NewMonitor(nil, time.Second, log.New(&logs, "", 0))
	m.Set(false)
	m.Set(false)
	m.Set(true)
	if n := strings.Count(logs.String(), "\n"); n != 2 {
		t.Fatalf("expected 2 transition lines, got %d: %q", n, logs.String())
	}
}
