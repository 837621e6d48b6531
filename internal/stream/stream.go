// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream owns the in-progress assistant reply of one exchange.
//
// A Session buffers deltas, mirrors them to a live display sink, and
// finalizes exactly once into a formatted message committed to the session
// store. Both completion signals (the decoder's Done and the end of the
// transport) and transport failures converge on the same Open to Closed
// transition, so whichever arrives first wins and the rest are no-ops.
package stream

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/sse"
)

// =============================================================================
// INTERFACES
// =============================================================================

// Sink displays a reply while it streams and once it is final.
type Sink interface {
	// Raw receives each delta as literal text, in order.
	Raw(delta string)

	// Final receives the committed message and its formatted document.
	// It is called exactly once.
	Final(msg model.Message, doc format.Document)
}

// Committer is the part of the session store a stream writes to.
type Committer interface {
	ActiveID() string
	Has(id string) bool
	AppendTo(id string, msg model.Message) error
	AppendMessage(msg model.Message) model.Message
}

// NopSink discards all output.
type NopSink struct{}

func (NopSink) Raw(string)                           {}
func (NopSink) Final(model.Message, format.Document) {}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnRaw   func(delta string)
	OnFinal func(msg model.Message, doc format.Document)
}

func (f SinkFuncs) Raw(delta string) {
	if f.OnRaw != nil {
		f.OnRaw(delta)
	}
}

func (f SinkFuncs) Final(msg model.Message, doc format.Document) {
	if f.OnFinal != nil {
		f.OnFinal(msg, doc)
	}
}

// =============================================================================
// SESSION
// =============================================================================

// State is the lifecycle state of a stream session.
type State int32

const (
	StateOpen State = iota
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Options configures a stream session.
type Options struct {
	Store Committer
	Sink  Sink

	// OriginID is the session that was active when the message was sent.
	OriginID string

	// PinToOrigin commits to OriginID instead of the session active at
	// completion time. Falls back to the active session if OriginID is gone.
	PinToOrigin bool

	// ExchangeID labels log lines for this exchange.
	ExchangeID string

	Logger *zap.Logger
}

// Session accumulates one streamed reply.
type Session struct {
	opts  Options
	log   *zap.Logger
	state atomic.Int32

	mu      sync.Mutex // guards buf, isError, stats
	buf     strings.Builder
	isError bool
	stats   *model.Statistics

	done   chan struct{}
	result model.Message
	target string
}

// New creates an open stream session.
func New(opts Options) *Session {
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.OriginID == "" && opts.Store != nil {
		opts.OriginID = opts.Store.ActiveID()
	}

	s := &Session{
		opts:  opts,
		log:   logger.With(zap.String("exchange_id", opts.ExchangeID), zap.String("origin_session", opts.OriginID)),
		stats: model.NewStatistics(),
		done:  make(chan struct{}),
	}
	s.state.Store(int32(StateOpen))
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Text returns the text buffered so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Done is closed once the session has finalized.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the committed message and the session it was committed
// to. It is only meaningful after Done is closed.
func (s *Session) Result() (model.Message, string) {
	<-s.done
	return s.result, s.target
}

// OnDelta appends text to the buffer and shows it raw. Deltas after
// finalization are dropped.
func (s *Session) OnDelta(text string, isError bool) {
	s.mu.Lock()
	if s.State() != StateOpen {
		s.mu.Unlock()
		return
	}
	s.buf.WriteString(text)
	s.stats.RecordDelta(len(text))
	if isError {
		s.isError = true
	}
	s.mu.Unlock()

	s.opts.Sink.Raw(text)
}

// OnDone finalizes the reply. It reports whether this call performed the
// finalization; later calls return false and change nothing.
func (s *Session) OnDone() bool {
	return s.finalize("")
}

// Fail finalizes the reply with whatever was received plus an error notice,
// flagged as an error. Like OnDone it acts at most once.
func (s *Session) Fail(err error) bool {
	notice := "Error: stream interrupted"
	if err != nil {
		notice = "Error: " + err.Error()
	}
	return s.finalize(notice)
}

// Handle routes a decoded event.
func (s *Session) Handle(ev sse.Event) {
	switch ev.Kind {
	case sse.KindDelta:
		s.OnDelta(ev.Text, ev.IsError)
	case sse.KindDone:
		s.OnDone()
	case sse.KindMalformed:
		s.mu.Lock()
		s.stats.RecordMalformed()
		s.mu.Unlock()
		s.log.Warn("skipping malformed stream event", zap.Error(ev.Err))
	}
}

// Consume decodes body until it completes and finalizes the session. A read
// error finalizes through Fail and is returned. The session is always
// closed when Consume returns.
func (s *Session) Consume(ctx context.Context, body io.Reader) error {
	r := sse.NewReader(body)
	err := r.Process(ctx, s.Handle)
	if err != nil {
		s.Fail(err)
		return err
	}
	// Covers a Done the decoder already delivered; otherwise this is the
	// transport-end completion.
	s.OnDone()
	return nil
}

func (s *Session) finalize(errNotice string) bool {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return false
	}

	// Any OnDelta that saw Open holds mu until its write lands.
	s.mu.Lock()
	content := s.buf.String()
	isError := s.isError
	s.stats.Finalize()
	stats := *s.stats
	s.mu.Unlock()

	if errNotice != "" {
		isError = true
		if strings.TrimSpace(content) == "" {
			content = errNotice
		} else {
			content = content + "\n\n" + errNotice
		}
	}

	msg := model.NewAssistantMessage(content)
	msg.IsError = isError
	msg.Stats = &stats

	s.target = s.commit(msg)
	s.result = msg

	s.log.Info("stream finalized",
		zap.String("session_id", s.target),
		zap.Int("bytes", stats.Bytes),
		zap.Int("deltas", stats.Deltas),
		zap.Int("malformed", stats.Malformed),
		zap.Bool("error", isError),
		zap.Duration("duration", stats.TotalDuration),
	)

	s.opts.Sink.Final(msg, format.Format(content))
	close(s.done)
	return true
}

// commit appends msg to the target session and returns its ID.
func (s *Session) commit(msg model.Message) string {
	store := s.opts.Store
	if store == nil {
		return ""
	}

	if s.opts.PinToOrigin && s.opts.OriginID != "" && store.Has(s.opts.OriginID) {
		if err := store.AppendTo(s.opts.OriginID, msg); err == nil {
			return s.opts.OriginID
		}
		s.log.Warn("origin session vanished, committing to active session")
	}

	active := store.ActiveID()
	if err := store.AppendTo(active, msg); err != nil {
		store.AppendMessage(msg)
	}
	return active
}
