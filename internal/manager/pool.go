package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool bounds the number of concurrently leased sessions. Callers over the
// limit wait in arrival order.
type Pool struct {
	handle *Handle
	max    int
	log    *zerolog.Logger
	pub    EventPublisher

	mu       sync.Mutex
	sessions map[string]*Session
	waiters  *queue.Queue
	waiting  int

	leasesTotal atomic.Uint64
	exhausted   atomic.Uint64
	evictions   atomic.Uint64
	forced      atomic.Uint64
}

type leaseResult struct {
	s   *Session
	err error
}

// waiter is a queued Lease call. abandoned waiters stay in the queue and are
// skipped on hand-off.
type waiter struct {
	ch        chan leaseResult
	abandoned bool
}

func newPool(h *Handle, cfg ManagerConfig) *Pool {
	return &Pool{
		handle:   h,
		max:      cfg.MaxConcurrentSessions,
		log:      cfg.Logger,
		pub:      cfg.Publisher,
		sessions: make(map[string]*Session),
		waiters:  queue.New(),
	}
}

// Lease returns a new idle session. timeout 0 fails immediately when the pool
// is full; otherwise the call waits up to timeout for a slot.
func (p *Pool) Lease(ctx context.Context, timeout time.Duration) (*Session, error) {
	p.mu.Lock()
	if st := p.handle.State(); st != StateReady {
		p.mu.Unlock()
		return nil, runtimeNotReadyError{state: st}
	}
	if len(p.sessions) < p.max && p.waiting == 0 {
		s := p.newSessionLocked()
		p.mu.Unlock()
		return s, nil
	}
	if timeout <= 0 {
		p.mu.Unlock()
		p.exhausted.Add(1)
		return nil, poolExhaustedError{max: p.max}
	}
	w := &waiter{ch: make(chan leaseResult, 1)}
	p.waiters.Add(w)
	p.waiting++
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-w.ch:
		return r.s, r.err
	case <-timer.C:
		if r, ok := p.abandon(w); ok {
			return r.s, r.err
		}
		p.exhausted.Add(1)
		return nil, poolExhaustedError{max: p.max, waited: timeout}
	case <-ctx.Done():
		if r, ok := p.abandon(w); ok && r.s != nil {
			p.Release(r.s)
		}
		return nil, ctx.Err()
	}
}

// abandon withdraws w. If a result was handed over concurrently it is
// returned with ok set.
func (p *Pool) abandon(w *waiter) (leaseResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case r := <-w.ch:
		return r, true
	default:
	}
	w.abandoned = true
	p.waiting--
	return leaseResult{}, false
}

func (p *Pool) newSessionLocked() *Session {
	now := time.Now()
	s := &Session{
		id:       uuid.NewString(),
		pool:     p,
		created:  now,
		lastUsed: now,
		state:    SessionIdle,
	}
	p.sessions[s.id] = s
	p.leasesTotal.Add(1)
	return s
}

// handOffLocked grants free slots to the oldest live waiters.
func (p *Pool) handOffLocked() {
	for len(p.sessions) < p.max && p.waiters.Length() > 0 {
		w := p.waiters.Remove().(*waiter)
		if w.abandoned {
			continue
		}
		p.waiting--
		if st := p.handle.State(); st != StateReady {
			w.ch <- leaseResult{err: runtimeNotReadyError{state: st}}
			continue
		}
		w.ch <- leaseResult{s: p.newSessionLocked()}
	}
}

// Release closes s, stopping any running generation, and gives its slot to
// the next waiter. Releasing twice is a no-op.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessions[s.id] != s {
		return
	}
	delete(p.sessions, s.id)
	s.terminate(SessionClosed)
	p.handOffLocked()
}

// Get looks up a live session by id.
func (p *Pool) Get(id string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	return s, ok
}

// EvictOldestIdle releases the least recently used idle session.
func (p *Pool) EvictOldestIdle() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var victim *Session
	for _, s := range p.sessions {
		if s.State() != SessionIdle {
			continue
		}
		if victim == nil || s.LastUsed().Before(victim.LastUsed()) {
			victim = s
		}
	}
	if victim == nil {
		return "", false
	}
	delete(p.sessions, victim.id)
	victim.terminate(SessionClosed)
	p.evictions.Add(1)
	p.handOffLocked()
	p.pub.Publish(Event{Name: "session_evicted", Fields: map[string]any{"session": victim.id}})
	p.log.Info().Str("event", "session_evicted").Str("session", victim.id).Msg("evicted idle session")
	return victim.id, true
}

// rejectWaiters wakes every queued Lease with err.
func (p *Pool) rejectWaiters(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.waiters.Length() > 0 {
		w := p.waiters.Remove().(*waiter)
		if w.abandoned {
			continue
		}
		w.ch <- leaseResult{err: err}
	}
	p.waiting = 0
}

// cancelGenerating force-cancels every running generation.
func (p *Pool) cancelGenerating() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sessions {
		if s.terminate(SessionCancelled) {
			n++
		}
	}
	p.forced.Add(uint64(n))
	return n
}

// closeAll releases every session without handing slots off.
func (p *Pool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.sessions {
		s.terminate(SessionClosed)
		delete(p.sessions, id)
	}
}

// Active is the number of leased sessions.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Pool) Generating() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sessions {
		if s.State() == SessionGenerating {
			n++
		}
	}
	return n
}

// Waiters is the number of Lease calls currently queued.
func (p *Pool) Waiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

func (p *Pool) Max() int { return p.max }

// Sessions returns a snapshot of the live sessions.
func (p *Pool) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	return out
}
