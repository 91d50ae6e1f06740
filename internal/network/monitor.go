// Package network reports connectivity changes to the upload queue.
package network

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Prober reports whether the network is reachable right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// DialProber treats a successful TCP dial to Addr as connectivity.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Monitor polls a Prober and notifies subscribers on every transition.
// It starts in the online state.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

type Option func(*Monitor)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: 5 * time.Second,
		online:   true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe returns a channel receiving the new state on each transition.
// Slow subscribers only ever see the latest state.
func (m *Monitor) Subscribe() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 1)
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one probe and publishes a transition if the state changed.
func (m *Monitor) Check(ctx context.Context) {
	online := m.prober.Probe(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if online == m.online {
		return
	}
	m.online = online
	m.logger.InfoContext(ctx, "network state changed", "online", online)
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}
