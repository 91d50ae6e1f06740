package network

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	online atomic.Bool
}

func (p *stubProber) Probe(context.Context) bool { return p.online.Load() }

func TestMonitor_Transitions(t *testing.T) {
	p := &stubProber{}
	p.online.Store(true)
	m := NewMonitor(p)
	ch := m.Subscribe()
	ctx := context.Background()

	m.Check(ctx)
	assert.Empty(t, ch, "no transition while state is unchanged")

	p.online.Store(false)
	m.Check(ctx)
	assert.False(t, m.Online())
	require.Len(t, ch, 1)
	assert.False(t, <-ch)

	t.Run("slow subscriber sees only the latest state", func(t *testing.T) {
		p.online.Store(true)
		m.Check(ctx)
		p.online.Store(false)
		m.Check(ctx)
		p.online.Store(true)
		m.Check(ctx)
		require.Len(t, ch, 1)
		assert.True(t, <-ch)
	})
}

func TestDialProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	assert.True(t, DialProber{Addr: addr}.Probe(context.Background()))

	require.NoError(t, ln.Close())
	assert.False(t, DialProber{Addr: addr}.Probe(context.Background()))
}
