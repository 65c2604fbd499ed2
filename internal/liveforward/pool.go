package liveforward

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PoolConfig configures a ConnPool, adapted from pkg/dimse's
// PoolConfig/AssociationConfig split.
type PoolConfig struct {
	ConnConfig
	MaxPoolSize int
	MaxIdleTime time.Duration
}

// ConnPool manages a pool of outbound upstream associations, one per
// (host, port, callingAET, calledAET) forwarding target.
type ConnPool struct {
	cfg           ConnConfig
	maxSize       int
	maxIdleTime   time.Duration
	conns         []*Conn
	mu            sync.Mutex
	cleanupTicker *time.Ticker
	done          chan struct{}
}

func NewConnPool(cfg PoolConfig) *ConnPool {
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 5
	}
	if cfg.MaxIdleTime == 0 {
		cfg.MaxIdleTime = 5 * time.Minute
	}

	p := &ConnPool{
		cfg:           cfg.ConnConfig,
		maxSize:       cfg.MaxPoolSize,
		maxIdleTime:   cfg.MaxIdleTime,
		conns:         make([]*Conn, 0, cfg.MaxPoolSize),
		cleanupTicker: time.NewTicker(time.Minute),
		done:          make(chan struct{}),
	}
	go p.cleanup()
	return p
}

func (p *ConnPool) Get(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.conns {
		if c.IsConnected() {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return c, nil
		}
	}

	if len(p.conns) < p.maxSize {
		c := NewConn(p.cfg)
		if err := c.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to open upstream connection: %w", err)
		}
		return c, nil
	}

	return nil, fmt.Errorf("upstream connection pool exhausted")
}

func (p *ConnPool) Put(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !c.IsConnected() {
		c.Close()
		return
	}
	if len(p.conns) >= p.maxSize {
		c.Close()
		return
	}
	p.conns = append(p.conns, c)
}

func (p *ConnPool) Close() error {
	close(p.done)
	p.cleanupTicker.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.conns = nil
	return firstErr
}

func (p *ConnPool) cleanup() {
	for {
		select {
		case <-p.cleanupTicker.C:
			p.removeIdle()
		case <-p.done:
			return
		}
	}
}

func (p *ConnPool) removeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	active := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		switch {
		case now.Sub(c.GetLastUsed()) > p.maxIdleTime:
			c.Close()
		case c.IsConnected():
			active = append(active, c)
		default:
			c.Close()
		}
	}
	p.conns = active
}
