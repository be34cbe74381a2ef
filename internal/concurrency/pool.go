package concurrency

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// ErrPoolExhausted is returned when acquire cannot obtain a handle before
// ctx is done and the pool is shutting down.
var ErrPoolExhausted = errors.New("concurrency: connection pool exhausted")

const (
	defaultMaxHandles = 3
	pollInterval      = 10 * time.Millisecond
	defaultIdleTTL    = 60 * time.Second
)

// handle wraps a pooled *sql.DB (or any resource implementing Closer) with
// its last-used timestamp for the idle sweeper.
type handle struct {
	conn     *sql.DB
	lastUsed time.Time
}

// Pool is a fixed-capacity pool of database handles. acquire() serves from
// the available list, then opens a new handle if under cap, then polls
// until one is released. A background sweeper closes handles idle past
// idleTTL. Pool does not open handles itself — callers supply an opener.
type Pool struct {
	mu        sync.Mutex
	available []*handle
	inUse     int
	maxSize   int
	idleTTL   time.Duration
	opener    func() (*sql.DB, error)

	closed   bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// PoolOptions configures NewPool.
type PoolOptions struct {
	MaxSize int
	IdleTTL time.Duration
	Opener  func() (*sql.DB, error)
}

// NewPool constructs a pool and starts its idle sweeper goroutine.
func NewPool(opts PoolOptions) *Pool {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxHandles
	}
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	p := &Pool{
		maxSize: maxSize,
		idleTTL: idleTTL,
		opener:  opts.Opener,
		stopCh:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sweepLoop()
	return p
}

// Acquire returns a handle from the available list, opens a new one if
// under capacity, or polls every ~10ms until one is released.
func (p *Pool) Acquire(ctx context.Context) (*sql.DB, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}
		if n := len(p.available); n > 0 {
			h := p.available[n-1]
			p.available = p.available[:n-1]
			p.inUse++
			p.mu.Unlock()
			return h.conn, nil
		}
		if p.inUse < p.maxSize {
			p.inUse++
			p.mu.Unlock()
			conn, err := p.opener()
			if err != nil {
				p.mu.Lock()
				p.inUse--
				p.mu.Unlock()
				return nil, err
			}
			return conn, nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ErrPoolExhausted
		case <-p.stopCh:
			return nil, ErrPoolExhausted
		case <-time.After(pollInterval):
		}
	}
}

// Release stamps the handle's last-used time and returns it to the pool.
func (p *Pool) Release(conn *sql.DB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if p.closed {
		conn.Close()
		return
	}
	p.available = append(p.available, &handle{conn: conn, lastUsed: time.Now()})
}

// sweepLoop closes handles idle longer than idleTTL every 60s.
func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sweepOnce(time.Now())
		}
	}
}

func (p *Pool) sweepOnce(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.available[:0]
	for _, h := range p.available {
		if now.Sub(h.lastUsed) > p.idleTTL {
			h.conn.Close()
			continue
		}
		kept = append(kept, h)
	}
	p.available = kept
}

// Close stops the sweeper and closes every idle handle. In-flight handles
// are closed as they are released.
func (p *Pool) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, h := range p.available {
		if err := h.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.available = nil
	return firstErr
}
