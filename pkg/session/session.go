package session

import (
	"errors"
	"sync"
	"time"
)

// DefaultTitle is the title of a session until a generated one replaces it
const DefaultTitle = "New session"

var (
	// ErrNotFound indicates an unknown session identity.
	ErrNotFound = errors.New("session not found")

	// ErrBusy indicates a response stream is already running for the session.
	ErrBusy = errors.New("session is busy generating")
)

// State is the generation state of a session
type State int

const (
	StateIdle State = iota
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID       ID        `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Summary identifies a session in listings
type Summary struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

// Session is one conversation: identity, transcript and title.
// All methods are safe for concurrent use.
type Session struct {
	id        ID
	createdAt time.Time

	mu         sync.RWMutex
	messages   []Message
	title      string
	state      State
	lastActive time.Time
	now        func() time.Time
}

// New creates a session seeded with the system message
func New(id ID, systemPrompt string) *Session {
	return newSession(id, systemPrompt, time.Now)
}

func newSession(id ID, systemPrompt string, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:         id,
		createdAt:  created,
		messages:   []Message{SystemMessage(systemPrompt)},
		title:      DefaultTitle,
		state:      StateIdle,
		lastActive: created,
		now:        now,
	}
}

// ID returns the session identity
func (s *Session) ID() ID {
	return s.id
}

// CreatedAt returns the creation time
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// AddUserMessage appends a user message
func (s *Session) AddUserMessage(text string) {
	s.append(UserMessage(text))
}

// AddAssistantMessage appends an assistant message
func (s *Session) AddAssistantMessage(text string) {
	s.append(AssistantMessage(text))
}

func (s *Session) append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	s.lastActive = s.now()
}

// Messages returns a copy of the transcript, system message first
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages including the system message
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// TruncateMessages drops the oldest pair of non-system messages, or the
// oldest single one when only one is left. It returns false when only the
// system message remains and nothing was removed.
func (s *Session) TruncateMessages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := len(s.messages) - 1
	if history <= 0 {
		return false
	}

	drop := min(2, history)
	kept := make([]Message, 0, len(s.messages)-drop)
	kept = append(kept, s.messages[0])
	kept = append(kept, s.messages[1+drop:]...)
	s.messages = kept
	return true
}

// Title returns the current title
func (s *Session) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.title
}

// SetTitle replaces the title unconditionally
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// SetTitleIfDefault stores title only while the session still carries
// DefaultTitle. It returns the title in effect afterwards and whether it
// was changed by this call.
func (s *Session) SetTitleIfDefault(title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.title != DefaultTitle {
		return s.title, false
	}
	s.title = title
	return s.title, true
}

// HasDefaultTitle reports whether the title was never replaced
func (s *Session) HasDefaultTitle() bool {
	return s.Title() == DefaultTitle
}

// BeginStream moves the session into StateGenerating.
// It fails with ErrBusy when a stream is already running.
func (s *Session) BeginStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateGenerating {
		return ErrBusy
	}
	s.state = StateGenerating
	s.lastActive = s.now()
	return nil
}

// EndStream returns the session to StateIdle
func (s *Session) EndStream() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.lastActive = s.now()
}

// State returns the generation state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActive returns the time of the last mutation or stream transition
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// idleBefore reports whether the session is idle and untouched since cutoff
func (s *Session) idleBefore(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateIdle && s.lastActive.Before(cutoff)
}

// Snapshot returns a copy of the identity, title and transcript
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{
		ID:       s.id,
		Title:    s.title,
		Messages: messages,
	}
}

// Summary returns the identity and title
func (s *Session) Summary() Summary {
	return Summary{ID: s.id, Title: s.Title()}
}
