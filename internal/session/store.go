// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrLastSession is returned when deleting the only remaining session.
	ErrLastSession = errors.New("cannot delete the last session")
)

// =============================================================================
// TYPES
// =============================================================================

// Session is a copy of one conversation's state.
type Session struct {
	ID        string
	Title     string
	Messages  []model.Message
	Preview   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Meta summarizes a session for lists and sidebars.
type Meta struct {
	ID           string
	Title        string
	Preview      string
	MessageCount int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot is a point-in-time copy of a session's transcript.
type Snapshot struct {
	Timestamp time.Time
	SessionID string
	Title     string
	Messages  []model.Message
}

// EventKind identifies a store change.
type EventKind int

const (
	EventCreated EventKind = iota
	EventSwitched
	EventAppended
	EventCleared
	EventDeleted
	EventRenamed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventSwitched:
		return "switched"
	case EventAppended:
		return "appended"
	case EventCleared:
		return "cleared"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes a change. Observers re-read the store for details.
type Event struct {
	Kind      EventKind
	SessionID string
	Message   *model.Message // set for EventAppended
}

// Options configures a Store.
type Options struct {
	// DefaultTitle names the session that exists at startup.
	DefaultTitle string

	// PreviewLength is the number of characters kept in a preview.
	PreviewLength int

	// Placeholder is the preview of a session with no messages.
	Placeholder string
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		DefaultTitle:  "Current Chat",
		PreviewLength: 30,
		Placeholder:   "No messages yet",
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store maps session IDs to transcripts and tracks the active session.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	opts     Options
	sessions map[string]*Session
	active   string
	counter  int

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// NewStore creates a store holding one empty default session, which is
// active.
func NewStore(opts Options) *Store {
	defaults := DefaultOptions()
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = defaults.DefaultTitle
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = defaults.PreviewLength
	}
	if opts.Placeholder == "" {
		opts.Placeholder = defaults.Placeholder
	}

	s := &Store{
		opts:      opts,
		sessions:  make(map[string]*Session),
		observers: make(map[int]func(Event)),
	}
	s.active = s.newSessionLocked(opts.DefaultTitle).ID
	return s
}

// Subscribe registers fn for change events and returns a function that
// removes it. Events are delivered synchronously, outside the store lock,
// on the goroutine that made the change.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(ev Event) {
	s.obsMu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// newSessionLocked allocates the next session. Caller holds s.mu.
func (s *Store) newSessionLocked(title string) *Session {
	s.counter++
	now := time.Now()
	if title == "" {
		title = fmt.Sprintf("Chat %d", s.counter)
	}
	sess := &Session{
		ID:        fmt.Sprintf("session-%d", s.counter),
		Title:     title,
		Preview:   s.opts.Placeholder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sess.ID] = sess
	return sess
}

// Create allocates a new empty session and returns its ID. The active
// session does not change.
func (s *Store) Create() string {
	s.mu.Lock()
	id := s.newSessionLocked("").ID
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, SessionID: id})
	return id
}

// CreateAndSwitch creates a session and makes it active.
func (s *Store) CreateAndSwitch() string {
	id := s.Create()
	// The session was just created, so the switch cannot fail.
	_ = s.SwitchTo(id)
	return id
}

// SwitchTo makes id the active session. Switching to the active session is
// a no-op and emits no event.
func (s *Store) SwitchTo(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.active == id {
		s.mu.Unlock()
		return nil
	}
	s.active = id
	s.mu.Unlock()

	s.notify(Event{Kind: EventSwitched, SessionID: id})
	return nil
}

// ActiveID returns the active session ID.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Active returns a copy of the active session.
func (s *Store) Active() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.sessions[s.active])
}

// Get returns a copy of the session with the given ID.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return copySession(sess), true
}

// Has reports whether a session with the given ID exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Messages returns a copy of a session's messages.
func (s *Store) Messages(id string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]model.Message(nil), sess.Messages...)
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns session summaries, oldest first.
func (s *Store) List() []Meta {
	s.mu.RLock()
	metas := make([]Meta, 0, len(s.sessions))
	for _, sess := range s.sessions {
		metas = append(metas, Meta{
			ID:           sess.ID,
			Title:        sess.Title,
			Preview:      sess.Preview,
			MessageCount: len(sess.Messages),
			Active:       sess.ID == s.active,
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(metas, func(i, j int) bool {
		return sessionNumber(metas[i].ID) < sessionNumber(metas[j].ID)
	})
	return metas
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds a message with the given role and content to the active
// session and returns it.
func (s *Store) Append(role model.Role, content string) model.Message {
	return s.AppendMessage(model.NewMessage(role, content))
}

// AppendError adds an error-flagged assistant message to the active session.
func (s *Store) AppendError(content string) model.Message {
	return s.AppendMessage(model.NewErrorMessage(content))
}

// AppendMessage adds a prepared message to the active session.
func (s *Store) AppendMessage(msg model.Message) model.Message {
	s.mu.Lock()
	id := s.active
	s.appendLocked(s.sessions[id], msg)
	s.mu.Unlock()

	s.notify(Event{Kind: EventAppended, SessionID: id, Message: &msg})
	return msg
}

// AppendTo adds a prepared message to a specific session, active or not.
func (s *Store) AppendTo(id string, msg model.Message) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.appendLocked(sess, msg)
	s.mu.Unlock()

	s.notify(Event{Kind: EventAppended, SessionID: id, Message: &msg})
	return nil
}

func (s *Store) appendLocked(sess *Session, msg model.Message) {
	sess.Messages = append(sess.Messages, msg)
	sess.Preview = s.preview(msg.Content)
	sess.UpdatedAt = time.Now()
}

// preview is the first PreviewLength characters of content followed by an
// ellipsis, on a single line.
func (s *Store) preview(content string) string {
	return util.PrefixRunes(util.SingleLine(content), s.opts.PreviewLength) + "..."
}

// Clear removes all messages from a session and resets its preview. The
// session itself remains.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Messages = nil
	sess.Preview = s.opts.Placeholder
	sess.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.notify(Event{Kind: EventCleared, SessionID: id})
	return nil
}

// Rename sets a session's title. A blank title is rejected.
func (s *Store) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("session title cannot be empty")
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Title = title
	sess.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.notify(Event{Kind: EventRenamed, SessionID: id})
	return nil
}

// Delete removes a session. The last session cannot be deleted. Deleting the
// active session activates the most recently created remaining one.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if len(s.sessions) == 1 {
		s.mu.Unlock()
		return ErrLastSession
	}
	delete(s.sessions, id)

	switched := ""
	if s.active == id {
		newest, best := "", -1
		for sid := range s.sessions {
			if n := sessionNumber(sid); n > best {
				newest, best = sid, n
			}
		}
		s.active = newest
		switched = newest
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventDeleted, SessionID: id})
	if switched != "" {
		s.notify(Event{Kind: EventSwitched, SessionID: switched})
	}
	return nil
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// Export returns a snapshot of a session's transcript.
func (s *Store) Export(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return Snapshot{
		Timestamp: time.Now(),
		SessionID: sess.ID,
		Title:     sess.Title,
		Messages:  append([]model.Message(nil), sess.Messages...),
	}, nil
}

// Import creates a new session holding the snapshot's messages, in order,
// and returns its ID. The active session does not change.
func (s *Store) Import(snap Snapshot) string {
	s.mu.Lock()
	title := strings.TrimSpace(snap.Title)
	if title != "" {
		title = "Imported: " + title
	}
	sess := s.newSessionLocked(title)
	for _, msg := range snap.Messages {
		if msg.ID == "" {
			msg = rebuild(msg)
		}
		s.appendLocked(sess, msg)
	}
	id := sess.ID
	s.mu.Unlock()

	s.notify(Event{Kind: EventCreated, SessionID: id})
	return id
}

// rebuild fills in identity fields for messages that came from a file.
func rebuild(msg model.Message) model.Message {
	fresh := model.NewMessage(msg.Role, msg.Content)
	fresh.IsError = msg.IsError
	if !msg.Timestamp.IsZero() {
		fresh.Timestamp = msg.Timestamp
	}
	return fresh
}

// =============================================================================
// HELPERS
// =============================================================================

func copySession(sess *Session) Session {
	if sess == nil {
		return Session{}
	}
	cp := *sess
	cp.Messages = append([]model.Message(nil), sess.Messages...)
	return cp
}

// sessionNumber extracts N from "session-N" for ordering.
func sessionNumber(id string) int {
	var n int
	if _, err := fmt.Sscanf(id, "session-%d", &n); err != nil {
		return -1
	}
	return n
}
