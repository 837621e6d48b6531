// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molihua12345/KubeAgent/internal/model"
)

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestNewStore_HasDefaultSession(t *testing.T) {
	s := NewStore(DefaultOptions())

	require.Equal(t, 1, s.Len())
	active := s.Active()
	assert.Equal(t, "session-1", active.ID)
	assert.Equal(t, "Current Chat", active.Title)
	assert.Equal(t, "No messages yet", active.Preview)
	assert.Empty(t, active.Messages)
}

func TestCreate_DistinctIDsNoSwitch(t *testing.T) {
	s := NewStore(DefaultOptions())

	a := s.Create()
	b := s.Create()

	assert.NotEqual(t, a, b)
	assert.Equal(t, "session-1", s.ActiveID(), "Create must not switch")

	sess, ok := s.Get(b)
	require.True(t, ok)
	assert.Equal(t, "Chat 3", sess.Title)
	assert.Equal(t, "No messages yet", sess.Preview)
}

func TestSwitchTo(t *testing.T) {
	s := NewStore(DefaultOptions())
	id := s.Create()

	require.NoError(t, s.SwitchTo(id))
	assert.Equal(t, id, s.ActiveID())

	err := s.SwitchTo("session-99")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, id, s.ActiveID(), "failed switch keeps the active session")
}

func TestSwitchTo_SameIDEmitsNothing(t *testing.T) {
	s := NewStore(DefaultOptions())
	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, s.SwitchTo(s.ActiveID()))
	assert.Empty(t, events)
}

// =============================================================================
// APPEND / PREVIEW
// =============================================================================

func TestAppend_TargetsActiveAndUpdatesPreview(t *testing.T) {
	s := NewStore(DefaultOptions())

	msg := s.Append(model.RoleUser, "Why is my pod stuck in CrashLoopBackOff after upgrade?")
	assert.Equal(t, model.RoleUser, msg.Role)

	active := s.Active()
	require.Len(t, active.Messages, 1)
	assert.Equal(t, msg.ID, active.Messages[0].ID)
	assert.Equal(t, "Why is my pod stuck in CrashLo...", active.Preview)
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "hi", "hi..."},
		{"exactly thirty", strings.Repeat("a", 30), strings.Repeat("a", 30) + "..."},
		{"long", strings.Repeat("b", 45), strings.Repeat("b", 30) + "..."},
		{"multibyte", strings.Repeat("界", 40), strings.Repeat("界", 30) + "..."},
		{"newlines collapsed", "line one\nline two", "line one line two..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(DefaultOptions())
			s.Append(model.RoleAssistant, tt.content)
			assert.Equal(t, tt.want, s.Active().Preview)
		})
	}
}

func TestAppendError(t *testing.T) {
	s := NewStore(DefaultOptions())
	msg := s.AppendError("Error: backend unreachable")

	assert.True(t, msg.IsError)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.True(t, s.Active().Messages[0].IsError)
}

func TestAppendTo_InactiveSession(t *testing.T) {
	s := NewStore(DefaultOptions())
	other := s.Create()

	require.NoError(t, s.AppendTo(other, model.NewAssistantMessage("late reply")))

	assert.Empty(t, s.Active().Messages)
	assert.Equal(t, []string{"assistant:late reply"}, contents(s.Messages(other)))

	err := s.AppendTo("session-42", model.NewAssistantMessage("x"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionIsolation(t *testing.T) {
	s := NewStore(DefaultOptions())
	a := s.ActiveID()
	b := s.Create()
	s.Append(model.RoleUser, "in A")

	require.NoError(t, s.SwitchTo(b))
	s.Append(model.RoleUser, "in B")
	s.Append(model.RoleAssistant, "reply B")

	sa, _ := s.Get(a)
	sb, _ := s.Get(b)
	assert.Equal(t, []string{"user:in A"}, contents(sa.Messages))
	assert.Equal(t, "in A...", sa.Preview)
	assert.Equal(t, []string{"user:in B", "assistant:reply B"}, contents(sb.Messages))
}

func TestSwitchSafety_RoundTrip(t *testing.T) {
	s := NewStore(DefaultOptions())
	a := s.ActiveID()
	for i := 0; i < 5; i++ {
		s.Append(model.RoleUser, fmt.Sprintf("q%d", i))
		s.Append(model.RoleAssistant, fmt.Sprintf("a%d", i))
	}
	before := contents(s.Messages(a))

	b := s.Create()
	require.NoError(t, s.SwitchTo(b))
	require.NoError(t, s.SwitchTo(a))

	assert.Equal(t, before, contents(s.Active().Messages))
}

func TestScenario_NewSessionsAreIndependent(t *testing.T) {
	s := NewStore(DefaultOptions())
	first := s.Create()
	second := s.Create()
	require.NotEqual(t, first, second)

	require.NoError(t, s.SwitchTo(second))
	s.Append(model.RoleUser, "hello")
	require.NoError(t, s.SwitchTo(first))

	assert.Empty(t, s.Active().Messages)
}

func TestReturnedMessagesAreCopies(t *testing.T) {
	s := NewStore(DefaultOptions())
	s.Append(model.RoleUser, "original")

	msgs := s.Messages(s.ActiveID())
	msgs[0].Content = "tampered"

	assert.Equal(t, "original", s.Messages(s.ActiveID())[0].Content)
}

// =============================================================================
// CLEAR / DELETE
// =============================================================================

func TestClear(t *testing.T) {
	s := NewStore(DefaultOptions())
	s.Append(model.RoleUser, "hello")
	id := s.ActiveID()

	require.NoError(t, s.Clear(id))

	sess, ok := s.Get(id)
	require.True(t, ok, "clear must not delete the session")
	assert.Empty(t, sess.Messages)
	assert.Equal(t, "No messages yet", sess.Preview)

	assert.ErrorIs(t, s.Clear("nope"), ErrSessionNotFound)
}

func TestRename(t *testing.T) {
	s := NewStore(DefaultOptions())
	id := s.ActiveID()

	var got []Event
	unsub := s.Subscribe(func(ev Event) { got = append(got, ev) })
	defer unsub()

	require.NoError(t, s.Rename(id, "  prod outage  "))
	assert.Equal(t, "prod outage", s.Active().Title)
	assert.Equal(t, []Event{{Kind: EventRenamed, SessionID: id}}, got)

	assert.Error(t, s.Rename(id, "   "))
	assert.ErrorIs(t, s.Rename("nope", "x"), ErrSessionNotFound)
	assert.Equal(t, "renamed", EventRenamed.String())
}

func TestDelete(t *testing.T) {
	s := NewStore(DefaultOptions())
	first := s.ActiveID()

	assert.ErrorIs(t, s.Delete(first), ErrLastSession)

	second := s.Create()
	third := s.Create()
	require.NoError(t, s.SwitchTo(second))

	require.NoError(t, s.Delete(second))
	assert.False(t, s.Has(second))
	assert.Equal(t, third, s.ActiveID(), "newest remaining session becomes active")

	require.NoError(t, s.Delete(first))
	assert.Equal(t, third, s.ActiveID())
	assert.ErrorIs(t, s.Delete(first), ErrSessionNotFound)
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

func TestExportImport_RoundTrip(t *testing.T) {
	s := NewStore(DefaultOptions())
	s.Append(model.RoleUser, "scale deployment web to 3")
	s.Append(model.RoleAssistant, "Done. `web` now has **3** replicas.")
	s.AppendError("Error: timeout")

	snap, err := s.Export(s.ActiveID())
	require.NoError(t, err)
	assert.False(t, snap.Timestamp.IsZero())
	assert.Equal(t, "Current Chat", snap.Title)

	// Strip identity as a file round trip would.
	for i := range snap.Messages {
		snap.Messages[i].ID = ""
	}
	id := s.Import(snap)

	imported, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Imported: Current Chat", imported.Title)
	assert.Equal(t, contents(s.Messages("session-1")), contents(imported.Messages))
	assert.True(t, imported.Messages[2].IsError)
	assert.NotEmpty(t, imported.Messages[0].ID)
	assert.Equal(t, "session-1", s.ActiveID(), "import must not switch")
}

func TestExport_Unknown(t *testing.T) {
	_, err := NewStore(DefaultOptions()).Export("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

// =============================================================================
// LIST / EVENTS / CONCURRENCY
// =============================================================================

func TestList_OrderAndActive(t *testing.T) {
	s := NewStore(DefaultOptions())
	for i := 0; i < 11; i++ {
		s.Create()
	}
	require.NoError(t, s.SwitchTo("session-10"))

	metas := s.List()
	require.Len(t, metas, 12)
	for i, m := range metas {
		assert.Equal(t, fmt.Sprintf("session-%d", i+1), m.ID)
		assert.Equal(t, m.ID == "session-10", m.Active)
	}
}

func TestSubscribe_Events(t *testing.T) {
	s := NewStore(DefaultOptions())

	var kinds []EventKind
	unsubscribe := s.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	id := s.CreateAndSwitch()
	s.Append(model.RoleUser, "x")
	require.NoError(t, s.Clear(id))
	require.NoError(t, s.Delete(id))

	assert.Equal(t, []EventKind{EventCreated, EventSwitched, EventAppended, EventCleared, EventDeleted, EventSwitched}, kinds)

	unsubscribe()
	s.Append(model.RoleUser, "ignored")
	assert.Len(t, kinds, 6)
}

func TestSubscribe_ObserverMayReadStore(t *testing.T) {
	s := NewStore(DefaultOptions())
	var seen int
	s.Subscribe(func(ev Event) {
		// Observers run outside the lock, so reads must not deadlock.
		seen = len(s.Messages(ev.SessionID))
	})

	s.Append(model.RoleUser, "x")
	assert.Equal(t, 1, seen)
}

func TestStore_ConcurrentAppendAndRead(t *testing.T) {
	s := NewStore(DefaultOptions())
	other := s.Create()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			s.Append(model.RoleUser, fmt.Sprintf("m%d", i))
		}(i)
		go func() {
			defer wg.Done()
			_ = s.List()
			_ = s.Active()
		}()
		go func() {
			defer wg.Done()
			_ = s.AppendTo(other, model.NewAssistantMessage("bg"))
		}()
	}
	wg.Wait()

	assert.Len(t, s.Messages("session-1"), 20)
	assert.Len(t, s.Messages(other), 20)
}
