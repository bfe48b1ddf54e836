// Package netstate tracks whether the remote store is reachable.
package netstate

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"garden-planner/internal/resilience"
)

// Ping checks the remote store once.
type Ping func(ctx context.Context) error

// Monitor holds the last observed connectivity state. It starts online so the
// first remote call is attempted before any ping has run.
type Monitor struct {
	online  atomic.Bool
	ping    Ping
	timeout time.Duration
	logger  *log.Logger
}

func NewMonitor(ping Ping, timeout time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	m := &Monitor{ping: ping, timeout: timeout, logger: logger}
	m.online.Store(true)
	return m
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records a state change and logs transitions.
func (m *Monitor) Set(online bool) {
	if prev := m.online.Swap(online); prev != online {
		if online {
			m.logger.Printf("[info] remote store reachable again")
		} else {
			m.logger.Printf("[warn] remote store unreachable, serving cached data")
		}
	}
}

// Check runs the ping and updates the state. A ping that outlives the
// timeout counts as offline.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.ping == nil {
		return m.Online()
	}
	g := resilience.New(resilience.Policy{Timeout: m.timeout}, nil, m.logger)
	ok, err := resilience.CallOr(ctx, g, "network check", false, func(ctx context.Context) (bool, error) {
		if err := m.ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		ok = false
	}
	m.Set(ok)
	return ok
}
