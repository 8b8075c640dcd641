package campaign

import (
	"sync"
	"time"
)

// CallSession tracks the bot side of one live call. Sessions are transient:
// created when a call is placed, dropped when it ends. The SID → contact
// mapping is established at placement time so concurrent calls cannot
// corrupt each other's routing.
type CallSession struct {
	SID       string
	Number    string
	StartedAt time.Time

	mu         sync.Mutex
	turns      int
	emptyTurns int
}

// RecordTurn registers a completed dialog turn and resets the consecutive
// empty-input counter.
func (s *CallSession) RecordTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	s.emptyTurns = 0
}

// RecordEmptyTurn registers a gather that produced no transcript and
// returns the number of consecutive empty turns so far.
func (s *CallSession) RecordEmptyTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyTurns++
	return s.emptyTurns
}

// Turns reports the number of completed dialog turns on the call.
func (s *CallSession) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// SessionRegistry maps provider call SIDs to live call sessions.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*CallSession)}
}

func (r *SessionRegistry) Register(sid, number string) *CallSession {
	session := &CallSession{
		SID:       sid,
		Number:    number,
		StartedAt: time.Now(),
	}
	r.mu.Lock()
	r.sessions[sid] = session
	r.mu.Unlock()
	return session
}

func (r *SessionRegistry) Get(sid string) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sid]
	return session, ok
}

// EndByNumber removes any session belonging to the contact number.
func (r *SessionRegistry) EndByNumber(number string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sid, session := range r.sessions {
		if session.Number == number {
			delete(r.sessions, sid)
		}
	}
}

// End removes the session and returns the contact number it belonged to.
func (r *SessionRegistry) End(sid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	delete(r.sessions, sid)
	return session.Number, true
}
