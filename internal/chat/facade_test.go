// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molihua12345/KubeAgent/internal/archive"
	"github.com/molihua12345/KubeAgent/internal/backend"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/export"
	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/stream"
)

// =============================================================================
// TEST BACKEND
// =============================================================================

type fakeServer struct {
	healthy atomic.Bool

	mu      sync.Mutex
	stream  http.HandlerFunc
	chat    http.HandlerFunc
	clear   http.HandlerFunc
	history string
	sent    []string
}

func newFakeServer(t *testing.T) (*fakeServer, *backend.Client) {
	t.Helper()
	fs := &fakeServer{history: `{"history":[]}`}
	fs.healthy.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc(backend.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		if !fs.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy","version":"1.0.0"}`)
	})
	mux.HandleFunc(backend.PathHistory, func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		body := fs.history
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
	mux.HandleFunc(backend.PathStream, func(w http.ResponseWriter, r *http.Request) {
		var req backend.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		fs.sent = append(fs.sent, req.Message)
		h := fs.stream
		fs.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	})
	mux.HandleFunc(backend.PathChat, func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		h := fs.chat
		fs.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	})
	mux.HandleFunc(backend.PathClear, func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		h := fs.clear
		fs.mu.Unlock()
		if h == nil {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"status":"success"}`)
			return
		}
		h(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := backend.NewClient(&backend.ClientConfig{
		BaseURL:      srv.URL,
		Timeout:      2 * time.Second,
		ProbeTimeout: time.Second,
	})
	return fs, client
}

func (fs *fakeServer) setStream(h http.HandlerFunc) {
	fs.mu.Lock()
	fs.stream = h
	fs.mu.Unlock()
}

// sseChunks writes each chunk and flushes between them.
func sseChunks(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			flusher.Flush()
		}
	}
}

func newOnlineFacade(t *testing.T, opts Options) (*Facade, *fakeServer) {
	t.Helper()
	fs, client := newFakeServer(t)
	opts.Backend = client
	f := New(opts)
	require.NoError(t, f.Bootstrap(context.Background()))
	require.True(t, f.Online())
	return f, fs
}

type recordingSink struct {
	mu     sync.Mutex
	raw    []string
	finals []model.Message
	docs   []format.Document
}

func (s *recordingSink) Raw(delta string) {
	s.mu.Lock()
	s.raw = append(s.raw, delta)
	s.mu.Unlock()
}

func (s *recordingSink) Final(msg model.Message, doc format.Document) {
	s.mu.Lock()
	s.finals = append(s.finals, msg)
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
}

// =============================================================================
// SEND
// =============================================================================

func TestSendStreamsReply(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks(
		`data: {"content":"Hel`,
		"lo\"}\n",
		"data: [DONE]\n",
	))

	sink := &recordingSink{}
	require.NoError(t, f.Send(context.Background(), "  hi  ", sink))

	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.False(t, msgs[1].IsError)

	assert.Equal(t, []string{"Hello"}, sink.raw)
	require.Len(t, sink.finals, 1)
	assert.Equal(t, "Hello", sink.finals[0].Content)
	assert.False(t, f.Busy())
}

func TestSendBackendDoneFlag(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks(
		"data: {\"content\": \"Pods: \", \"done\": false}\n\n",
		"data: {\"content\": \"3\", \"done\": false}\n\n",
		"data: {\"content\": \"\", \"done\": true}\n\n",
	))

	require.NoError(t, f.Send(context.Background(), "count pods", nil))
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, "Pods: 3", msgs[1].Content)
}

func TestSendBackendErrorPayload(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks(
		"data: {\"content\": \"执行出错: boom\", \"done\": true, \"error\": true}\n\n",
	))

	require.NoError(t, f.Send(context.Background(), "break", nil))
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
	assert.Equal(t, "执行出错: boom", msgs[1].Content)
}

func TestSendImplicitDoneOnEOF(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks(`data: {"content":"partial"}`))

	require.NoError(t, f.Send(context.Background(), "q", nil))
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial", msgs[1].Content)
}

func TestSendEmptyReplyStillCommits(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks("data: [DONE]\n"))

	require.NoError(t, f.Send(context.Background(), "q", nil))
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, "", msgs[1].Content)
}

func TestSendBlankIsNoop(t *testing.T) {
	f, _ := newOnlineFacade(t, Options{})
	require.NoError(t, f.Send(context.Background(), " \n\t", nil))
	assert.Empty(t, f.Store().Messages(f.Store().ActiveID()))
}

func TestSendOfflineGuard(t *testing.T) {
	_, client := newFakeServer(t)
	f := New(Options{Backend: client})

	err := f.Send(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrOffline)
	assert.True(t, IsGuard(err))
	assert.Empty(t, f.Store().Messages(f.Store().ActiveID()))
}

func TestSendBusyGuard(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	release := make(chan struct{})
	started := make(chan struct{})
	fs.setStream(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"a\"}\n")
		w.(http.Flusher).Flush()
		close(started)
		<-release
		fmt.Fprint(w, "data: [DONE]\n")
	})

	errc := make(chan error, 1)
	go func() { errc <- f.Send(context.Background(), "first", nil) }()
	<-started

	assert.True(t, f.Busy())
	assert.ErrorIs(t, f.Send(context.Background(), "second", nil), ErrBusy)
	assert.ErrorIs(t, f.Clear(context.Background()), ErrBusy)

	close(release)
	require.NoError(t, <-errc)
	assert.False(t, f.Busy())
	assert.Len(t, f.Store().Messages(f.Store().ActiveID()), 2)
}

func TestSendRejectionRecordsError(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent crashed", http.StatusInternalServerError)
	})

	sink := &recordingSink{}
	err := f.Send(context.Background(), "hi", sink)
	require.Error(t, err)
	assert.True(t, backend.IsRejection(err))

	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
	assert.Contains(t, msgs[1].Content, "Error: send message")
	require.Len(t, sink.finals, 1)
	assert.True(t, f.Online(), "a rejection must not mark the backend down")
}

func TestSendSyncFallback(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{SyncFallback: true})
	fs.mu.Lock()
	fs.chat = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"**3** pods"}`)
	}
	fs.mu.Unlock()

	sink := &recordingSink{}
	require.NoError(t, f.Send(context.Background(), "count", sink))

	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, "**3** pods", msgs[1].Content)
	assert.Equal(t, []string{"**3** pods"}, sink.raw)
	require.Len(t, sink.docs, 1)
	assert.Equal(t, "3 pods", format.RenderPlain(sink.docs[0]))
}

func TestSendWithoutFallbackRecordsError(t *testing.T) {
	f, _ := newOnlineFacade(t, Options{SyncFallback: false})

	err := f.Send(context.Background(), "count", nil)
	require.Error(t, err)
	assert.True(t, backend.IsStreamUnsupported(err))
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
}

func TestSendTransportFailureMidStream(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"half a rep\"}\n")
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	})

	err := f.Send(context.Background(), "q", nil)
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "half a rep"))

	// Depending on the transport the broken body reads as EOF or as an
	// error; either way exactly one reply is committed.
	if err != nil {
		assert.True(t, msgs[1].IsError)
		assert.False(t, f.Online())
	}
}

func TestFailingProbeDuringStreamStillFinalizes(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	midway := make(chan struct{})
	resume := make(chan struct{})
	fs.setStream(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"still \"}\n")
		w.(http.Flusher).Flush()
		close(midway)
		<-resume
		fmt.Fprint(w, "data: {\"content\":\"here\"}\n\ndata: [DONE]\n")
	})

	errc := make(chan error, 1)
	go func() { errc <- f.Send(context.Background(), "q", nil) }()

	<-midway
	fs.healthy.Store(false)
	assert.Equal(t, connectivity.Down, f.Monitor().ProbeNow(context.Background()))
	close(resume)

	require.NoError(t, <-errc)
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, "still here", msgs[1].Content)
}

func TestMidStreamSwitch(t *testing.T) {
	tests := []struct {
		name       string
		pin        bool
		wantOrigin int
		wantOther  int
	}{
		{"completion-time target", false, 1, 1},
		{"pinned to origin", true, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fs := newOnlineFacade(t, Options{PinToOrigin: tt.pin})
			midway := make(chan struct{})
			resume := make(chan struct{})
			fs.setStream(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"content\":\"a\"}\n")
				w.(http.Flusher).Flush()
				close(midway)
				<-resume
				fmt.Fprint(w, "data: [DONE]\n")
			})

			origin := f.Store().ActiveID()
			errc := make(chan error, 1)
			go func() { errc <- f.Send(context.Background(), "q", nil) }()

			<-midway
			other, err := f.NewSession()
			require.NoError(t, err)
			close(resume)
			require.NoError(t, <-errc)

			assert.Len(t, f.Store().Messages(origin), tt.wantOrigin)
			assert.Len(t, f.Store().Messages(other), tt.wantOther)
		})
	}
}

// =============================================================================
// SESSION ACTIONS
// =============================================================================

func TestClear(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks("data: {\"content\":\"x\"}\n", "data: [DONE]\n"))
	require.NoError(t, f.Send(context.Background(), "q", nil))

	require.NoError(t, f.Clear(context.Background()))
	assert.Empty(t, f.Store().Messages(f.Store().ActiveID()))
	assert.Equal(t, "No messages yet", f.Store().Active().Preview)
}

func TestClearHoldsBusyFlag(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks("data: {\"content\":\"x\"}\n", "data: [DONE]\n"))

	release := make(chan struct{})
	started := make(chan struct{})
	fs.mu.Lock()
	fs.clear = func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success"}`)
	}
	fs.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- f.Clear(context.Background()) }()
	<-started

	assert.True(t, f.Busy())
	assert.ErrorIs(t, f.Send(context.Background(), "hello", nil), ErrBusy)
	assert.ErrorIs(t, f.Clear(context.Background()), ErrBusy)

	close(release)
	require.NoError(t, <-errc)
	assert.False(t, f.Busy())

	// The send was refused, so nothing was recorded and later sends work.
	assert.Empty(t, f.Store().Messages(f.Store().ActiveID()))
	require.NoError(t, f.Send(context.Background(), "hello", nil))
	assert.Len(t, f.Store().Messages(f.Store().ActiveID()), 2)
}

func TestClearRejectedKeepsState(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks("data: {\"content\":\"x\"}\n", "data: [DONE]\n"))
	require.NoError(t, f.Send(context.Background(), "q", nil))

	fs.mu.Lock()
	fs.clear = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "locked", http.StatusConflict)
	}
	fs.mu.Unlock()

	err := f.Clear(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsRejection(err))

	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 3)
	assert.Equal(t, "q", msgs[0].Content)
	assert.Equal(t, "x", msgs[1].Content)
	assert.True(t, msgs[2].IsError)
	assert.Contains(t, msgs[2].Content, "clear conversation")
}

func TestClearOffline(t *testing.T) {
	_, client := newFakeServer(t)
	f := New(Options{Backend: client})
	assert.ErrorIs(t, f.Clear(context.Background()), ErrOffline)
}

func TestNewSessionRequiresConnectivity(t *testing.T) {
	_, client := newFakeServer(t)
	f := New(Options{Backend: client})

	_, err := f.NewSession()
	assert.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 1, f.Store().Len())

	f.Monitor().ProbeNow(context.Background())
	id, err := f.NewSession()
	require.NoError(t, err)
	assert.Equal(t, id, f.Store().ActiveID())
	assert.Equal(t, 2, f.Store().Len())
}

func TestSessionIsolationScenario(t *testing.T) {
	f, fs := newOnlineFacade(t, Options{})
	fs.setStream(sseChunks("data: {\"content\":\"ok\"}\n", "data: [DONE]\n"))

	first := f.Store().Create()
	second := f.Store().Create()
	require.NotEqual(t, first, second)

	require.NoError(t, f.SwitchTo(second))
	require.NoError(t, f.Send(context.Background(), "hello", nil))
	require.NoError(t, f.SwitchTo(first))

	assert.Empty(t, f.Store().Messages(first))
	assert.Len(t, f.Store().Messages(second), 2)
}

// =============================================================================
// STARTUP
// =============================================================================

func TestBootstrapReplaysHistory(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.history = `{"history":[{"content":"old q","is_user":true},{"content":"old a","is_user":false}]}`

	f := New(Options{Backend: client})
	require.NoError(t, f.Bootstrap(context.Background()))

	assert.True(t, f.Online())
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "old a", msgs[1].Content)
}

func TestBootstrapBackendDown(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.healthy.Store(false)
	fs.history = `not json`

	f := New(Options{Backend: client})
	require.NoError(t, f.Bootstrap(context.Background()))
	assert.False(t, f.Online())
	assert.Empty(t, f.Store().Messages(f.Store().ActiveID()))
}

func TestStartRunsMonitor(t *testing.T) {
	fs, client := newFakeServer(t)
	f := New(Options{
		Backend:        client,
		MonitorOptions: connectivity.Options{Interval: 10 * time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Start(ctx))
	require.True(t, f.Online())

	fs.healthy.Store(false)
	assert.Eventually(t, func() bool { return !f.Online() }, 2*time.Second, 5*time.Millisecond)
}

func TestAskProbesFirst(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.setStream(sseChunks("data: {\"content\":\"pong\"}\n", "data: [DONE]\n"))
	f := New(Options{Backend: client})

	require.NoError(t, f.Ask(context.Background(), "ping", nil))
	msgs := f.Store().Messages(f.Store().ActiveID())
	require.Len(t, msgs, 2)
	assert.Equal(t, "pong", msgs[1].Content)

	fs.healthy.Store(false)
	err := f.Ask(context.Background(), "ping", nil)
	assert.True(t, errors.Is(err, ErrOffline))
}

func TestAskSync(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.chat = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"response":"sync reply"}`)
	}
	f := New(Options{Backend: client})

	msg, err := f.AskSync(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "sync reply", msg.Content)
	assert.Len(t, f.Store().Messages(f.Store().ActiveID()), 2)
}

// =============================================================================
// EXPORT / ARCHIVE
// =============================================================================

func TestExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	arc, err := archive.Open(filepath.Join(dir, "archive.db"), archive.Options{})
	require.NoError(t, err)
	defer arc.Close()

	f, fs := newOnlineFacade(t, Options{Archive: arc})
	fs.setStream(sseChunks("data: {\"content\":\"- a\\n- b\"}\n", "data: [DONE]\n"))
	require.NoError(t, f.Send(context.Background(), "list", nil))
	origin := f.Store().ActiveID()

	path, err := f.ExportToFile(context.Background(), origin, export.FormatJSON, dir)
	require.NoError(t, err)

	id, err := f.Import(path)
	require.NoError(t, err)
	assert.NotEqual(t, origin, id)
	assert.Equal(t, origin, f.Store().ActiveID())

	want := f.Store().Messages(origin)
	got := f.Store().Messages(id)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Role, got[i].Role)
		assert.Equal(t, want[i].Content, got[i].Content)
	}

	entries, err := arc.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	restored, err := f.RestoreArchived(context.Background(), entries[0].ID)
	require.NoError(t, err)
	assert.Len(t, f.Store().Messages(restored), 2)
}

func TestExportFormats(t *testing.T) {
	f, _ := newOnlineFacade(t, Options{})
	f.Store().Append(model.RoleUser, "hello")

	for _, fm := range []export.Format{export.FormatJSON, export.FormatMarkdown, export.FormatHTML} {
		out, err := f.Export(f.Store().ActiveID(), fm)
		require.NoError(t, err, fm)
		assert.Contains(t, string(out), "hello", fm)
	}

	_, err := f.Export("session-99", export.FormatJSON)
	assert.Error(t, err)
}

func TestArchiveDisabled(t *testing.T) {
	f, _ := newOnlineFacade(t, Options{})
	_, err := f.ArchiveSession(context.Background(), f.Store().ActiveID())
	assert.ErrorIs(t, err, ErrNoArchive)
	_, err = f.RestoreArchived(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoArchive)
}

var _ stream.Sink = (*recordingSink)(nil)
