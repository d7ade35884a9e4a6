package nntp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
)

// managedServer pairs a configured server with the weighted semaphore that
// enforces its max_connections limit and a small free-connection cache so a
// lease doesn't always pay dial+auth latency.
type managedServer struct {
	server *domain.Server
	sem    *semaphore.Weighted

	mu   sync.Mutex
	idle []*Connection
}

// Pool is the server pool (C2): it owns every configured server, leases
// connections to callers by failover level, and tracks per-server article
// counters for RPC introspection.
type Pool struct {
	logger         *logger.Logger
	connectTimeout time.Duration

	mu      sync.RWMutex
	servers []*managedServer // sorted by Level ascending
	maxLvl  int
}

// NewPool builds a Pool from the configured servers. It does not dial any
// connection eagerly; that happens on first Lease.
func NewPool(servers []*domain.Server, connectTimeout time.Duration, log *logger.Logger) *Pool {
	p := &Pool{logger: log, connectTimeout: connectTimeout}

	for _, s := range servers {
		if !s.Active {
			continue
		}
		p.servers = append(p.servers, &managedServer{
			server: s,
			sem:    semaphore.NewWeighted(int64(s.MaxConnection)),
		})
		if s.Level > p.maxLvl {
			p.maxLvl = s.Level
		}
	}

	sort.Slice(p.servers, func(i, j int) bool {
		return p.servers[i].server.Level < p.servers[j].server.Level
	})

	return p
}

// TotalCapacity returns the sum of max_connections across every active
// server, used by the scheduler to size its worker pool (§4.4).
func (p *Pool) TotalCapacity() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for _, ms := range p.servers {
		total += ms.server.MaxConnection
	}
	return total
}

// MaxLevel returns the highest failover level configured.
func (p *Pool) MaxLevel() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxLvl
}

// Lease acquires a connection from the first server at or above minLevel
// that has a free slot, preferring the lowest level. It blocks until ctx is
// done or a slot frees up, trying every eligible server each pass before
// sleeping briefly. excluded lists server ids already confirmed NotFound for
// the article being fetched (failover bookkeeping lives in the caller).
func (p *Pool) Lease(ctx context.Context, minLevel int, excluded map[string]bool) (*Connection, error) {
	p.mu.RLock()
	candidates := make([]*managedServer, 0, len(p.servers))
	for _, ms := range p.servers {
		if ms.server.Level < minLevel {
			continue
		}
		if excluded[ms.server.ID] {
			continue
		}
		candidates = append(candidates, ms)
	}
	p.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNoServers
	}

	for {
		for _, ms := range candidates {
			if !ms.sem.TryAcquire(1) {
				continue
			}

			conn, err := ms.acquireConnection(p.connectTimeout)
			if err != nil {
				ms.sem.Release(1)
				p.logger.Debug("pool: lease on %s failed: %v", ms.server.ID, err)
				continue
			}

			atomic.AddInt64(&ms.server.LeasedNow, 1)
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// Release returns a connection to its server's slot, keeping the socket
// open in the idle cache for reuse unless broken is true.
func (p *Pool) Release(serverID string, conn *Connection, broken bool) {
	p.mu.RLock()
	var ms *managedServer
	for _, m := range p.servers {
		if m.server.ID == serverID {
			ms = m
			break
		}
	}
	p.mu.RUnlock()

	if ms == nil {
		conn.Disconnect()
		return
	}

	atomic.AddInt64(&ms.server.LeasedNow, -1)

	if broken {
		conn.Disconnect()
	} else {
		ms.mu.Lock()
		ms.idle = append(ms.idle, conn)
		ms.mu.Unlock()
	}
	ms.sem.Release(1)
}

// RecordOutcome updates the per-server success/failure counters RPC
// exposes via get_connection_stats.
func (p *Pool) RecordOutcome(serverID string, success bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ms := range p.servers {
		if ms.server.ID == serverID {
			if success {
				atomic.AddInt64(&ms.server.SuccessArticles, 1)
			} else {
				atomic.AddInt64(&ms.server.FailedArticles, 1)
			}
			return
		}
	}
}

// Servers returns a snapshot of every configured server's runtime state.
func (p *Pool) Servers() []*domain.Server {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*domain.Server, len(p.servers))
	for i, ms := range p.servers {
		out[i] = ms.server
	}
	return out
}

// CloseIdle disconnects every cached idle connection across all servers,
// used on shutdown and config reload.
func (p *Pool) CloseIdle() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ms := range p.servers {
		ms.mu.Lock()
		for _, c := range ms.idle {
			c.Disconnect()
		}
		ms.idle = nil
		ms.mu.Unlock()
	}
}

func (ms *managedServer) acquireConnection(connectTimeout time.Duration) (*Connection, error) {
	ms.mu.Lock()
	if n := len(ms.idle); n > 0 {
		c := ms.idle[n-1]
		ms.idle = ms.idle[:n-1]
		ms.mu.Unlock()
		if c.Connected() {
			return c, nil
		}
	} else {
		ms.mu.Unlock()
	}

	c := NewConnection(ms.server)
	if err := c.Dial(connectTimeout); err != nil {
		return nil, err
	}
	return c, nil
}

// IsNotFound reports whether err is a permanent group/article NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConnectError reports whether err is a transient ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}
