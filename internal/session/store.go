package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type entry struct {
	holder   *Holder
	lastSeen time.Time
}

// Store owns one Holder per session id. Sessions idle longer than the TTL
// are dropped by Sweep, taking their case note with them.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewStore creates an empty session store.
func NewStore(ttl time.Duration, log zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// Acquire returns the holder for id, creating a fresh session when id is
// empty, malformed, unknown or expired. The returned id is the one the
// caller should use from now on.
func (s *Store) Acquire(id string) (string, *Holder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, err := uuid.Parse(id); err == nil {
		if e, ok := s.sessions[id]; ok {
			if !s.expired(e, now) {
				e.lastSeen = now
				return id, e.holder
			}
			if !e.holder.InFlight() {
				delete(s.sessions, id)
			}
		}
	}

	id = uuid.NewString()
	e := &entry{holder: NewHolder(), lastSeen: now}
	s.sessions[id] = e
	s.log.Debug().Str("session", id).Msg("session created")
	return id, e.holder
}

// End destroys a session. Unknown ids are ignored.
func (s *Store) End(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		s.log.Debug().Str("session", id).Msg("session ended")
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// InFlight returns the number of sessions with a submission running.
func (s *Store) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.sessions {
		if e.holder.InFlight() {
			n++
		}
	}
	return n
}

// Sweep drops expired sessions and returns how many were removed. A session
// with a submission in flight is never dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.sessions {
		if s.expired(e, now) && !e.holder.InFlight() {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl
}

// StartSweeper runs Sweep every interval until StopSweeper is called.
func (s *Store) StartSweeper(interval time.Duration) {
	if interval <= 0 || s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.log.Info().Int("removed", n).Msg("expired sessions swept")
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit.
func (s *Store) StopSweeper() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
}
