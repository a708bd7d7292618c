package session

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/turbogenius/internal/observability"
	"github.com/rs/zerolog/log"
)

// DefaultSystemPrompt seeds new sessions when no prompt is configured
const DefaultSystemPrompt = "You are a helpful, concise assistant."

// StoreConfig holds store configuration
type StoreConfig struct {
	SystemPrompt string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store owns every session of the process. Sessions are created, looked up
// and removed only through it.
type Store struct {
	systemPrompt string
	now          func() time.Time
	nextID       atomic.Int64

	mu       sync.RWMutex
	sessions map[ID]*Session
}

// NewStore creates an empty store
func NewStore(cfg StoreConfig) *Store {
	observability.EnsureRegistered()

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{
		systemPrompt: cfg.SystemPrompt,
		now:          cfg.Now,
		sessions:     make(map[ID]*Session),
	}
}

// Create allocates a new identity and registers a fresh session for it
func (st *Store) Create() *Session {
	id := ID(st.nextID.Add(1))
	sess := newSession(id, st.systemPrompt, st.now)

	st.mu.Lock()
	st.sessions[id] = sess
	count := len(st.sessions)
	st.mu.Unlock()

	observability.RecordSessionCreated()
	observability.SetActiveSessions(count)
	log.Debug().Stringer("session_id", id).Msg("Session created")

	return sess
}

// Get returns the session with the given identity or ErrNotFound
func (st *Store) Get(id ID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// BeginStream looks up the session and moves it into StateGenerating while
// holding the store lock, so ExpireIdle cannot remove it in between. It
// fails with ErrNotFound or ErrBusy.
func (st *Store) BeginStream(id ID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := sess.BeginStream(); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns id and title of every session, ordered by id
func (st *Store) List() []Summary {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		sessions = append(sessions, sess)
	}
	st.mu.RUnlock()

	summaries := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sess.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// Remove deletes the session if present. Removing an unknown id is not an
// error. Callers that track a "current" session must clear it themselves.
func (st *Store) Remove(id ID) {
	st.mu.Lock()
	_, existed := st.sessions[id]
	delete(st.sessions, id)
	count := len(st.sessions)
	st.mu.Unlock()

	if existed {
		observability.SetActiveSessions(count)
		log.Debug().Stringer("session_id", id).Msg("Session removed")
	}
}

// Len returns the number of sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// ExpireIdle removes sessions that are not generating and have been
// inactive for at least ttl. It returns the removed identities.
func (st *Store) ExpireIdle(ttl time.Duration) []ID {
	if ttl <= 0 {
		return nil
	}
	cutoff := st.now().Add(-ttl)

	st.mu.Lock()
	var expired []ID
	for id, sess := range st.sessions {
		if sess.idleBefore(cutoff) {
			expired = append(expired, id)
			delete(st.sessions, id)
		}
	}
	count := len(st.sessions)
	st.mu.Unlock()

	if len(expired) > 0 {
		sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
		observability.RecordSessionsExpired(len(expired))
		observability.SetActiveSessions(count)
	}
	return expired
}
