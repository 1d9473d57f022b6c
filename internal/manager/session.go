package manager

import (
	"sync"
	"time"

	"modelrt/internal/native"
)

// Session is a leased slot against the loaded runtime. At most one generation
// runs on a session at a time.
type Session struct {
	id      string
	pool    *Pool
	created time.Time

	mu       sync.Mutex
	state    SessionState
	tokens   []native.Token
	lastUsed time.Time
	stream   *TokenStream
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tokens returns a copy of the tokens produced by the current or last
// generation.
func (s *Session) Tokens() []native.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]native.Token, len(s.tokens))
	copy(out, s.tokens)
	return out
}

func (s *Session) Created() time.Time { return s.created }

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// terminate moves the session to state to and force-stops a running stream.
// A closed session stays closed. It reports whether a generation was running.
func (s *Session) terminate(to SessionState) bool {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return false
	}
	running := s.state == SessionGenerating
	st := s.stream
	s.state = to
	s.mu.Unlock()
	if running && st != nil {
		st.forceStop()
	}
	return running
}

func (s *Session) appendToken(t native.Token) {
	s.mu.Lock()
	s.tokens = append(s.tokens, t)
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// finishStream detaches st and settles the session state after a generation.
func (s *Session) finishStream(st *TokenStream, reason FinishReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == st {
		s.stream = nil
	}
	s.lastUsed = time.Now()
	if s.state != SessionGenerating {
		return
	}
	switch reason {
	case FinishCancelled, FinishError:
		s.state = SessionCancelled
	default:
		s.state = SessionIdle
	}
}
