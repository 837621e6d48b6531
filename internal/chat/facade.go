// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/molihua12345/KubeAgent/internal/archive"
	"github.com/molihua12345/KubeAgent/internal/backend"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/export"
	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/session"
	"github.com/molihua12345/KubeAgent/internal/stream"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the server surface the facade uses. *backend.Client
// implements it.
type Backend interface {
	Probe(ctx context.Context) error
	History(ctx context.Context) ([]backend.HistoryEntry, error)
	Clear(ctx context.Context) error
	Chat(ctx context.Context, message string) (string, error)
	ChatStream(ctx context.Context, message string) (io.ReadCloser, error)
}

// Options configures a Facade.
type Options struct {
	Backend Backend
	Store   *session.Store

	// Monitor is created from Backend.Probe when nil.
	Monitor        *connectivity.Monitor
	MonitorOptions connectivity.Options

	// Archive receives a copy of every file export when set.
	Archive *archive.Archive

	// Export holds defaults for ExportToFile.
	Export *export.Options

	// PinToOrigin commits replies to the session they were sent from.
	PinToOrigin bool

	// SyncFallback retries on /api/chat when the stream endpoint is missing.
	SyncFallback bool

	Logger *zap.Logger
}

// =============================================================================
// FACADE
// =============================================================================

// Facade coordinates one user's chat. It is safe for concurrent use.
type Facade struct {
	backend Backend
	store   *session.Store
	monitor *connectivity.Monitor
	archive *archive.Archive
	export  export.Options
	opts    Options
	log     *zap.Logger

	busy      atomic.Bool
	exchanges atomic.Uint64
}

// New creates a facade. A nil Store gets a fresh default store.
func New(opts Options) *Facade {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = session.NewStore(session.DefaultOptions())
	}
	if opts.Monitor == nil {
		mo := opts.MonitorOptions
		if mo.Logger == nil {
			mo.Logger = opts.Logger
		}
		opts.Monitor = connectivity.NewMonitor(opts.Backend.Probe, mo)
	}
	exportOpts := export.DefaultOptions()
	if opts.Export != nil {
		exportOpts = opts.Export
	}

	return &Facade{
		backend: opts.Backend,
		store:   opts.Store,
		monitor: opts.Monitor,
		archive: opts.Archive,
		export:  *exportOpts,
		opts:    opts,
		log:     opts.Logger.Named("chat"),
	}
}

// Store returns the session store.
func (f *Facade) Store() *session.Store { return f.store }

// Monitor returns the connectivity monitor.
func (f *Facade) Monitor() *connectivity.Monitor { return f.monitor }

// Busy reports whether an exchange is in flight.
func (f *Facade) Busy() bool { return f.busy.Load() }

// Online reports whether the backend is known to be up.
func (f *Facade) Online() bool { return f.monitor.IsUp() }

// =============================================================================
// STARTUP
// =============================================================================

// Bootstrap runs the startup probe and the history replay concurrently.
// A history failure is logged and otherwise ignored.
func (f *Facade) Bootstrap(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		f.monitor.ProbeNow(gctx)
		return nil
	})
	g.Go(func() error {
		n, err := f.LoadHistory(gctx)
		if err != nil {
			f.log.Warn("history replay failed", zap.Error(err))
			return nil
		}
		f.log.Debug("history replayed", zap.Int("messages", n))
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Start runs Bootstrap and then the periodic monitor in the background
// until ctx is done.
func (f *Facade) Start(ctx context.Context) error {
	if err := f.Bootstrap(ctx); err != nil {
		return err
	}
	go f.monitor.RunAfterInitial(ctx)
	return nil
}

// LoadHistory replays the backend's history into the active session and
// returns the number of messages added.
func (f *Facade) LoadHistory(ctx context.Context) (int, error) {
	entries, err := f.backend.History(ctx)
	if err != nil {
		return 0, err
	}

	target := f.store.ActiveID()
	for _, e := range entries {
		msg := model.NewMessage(model.RoleFromIsUser(e.IsUser), e.Content)
		if err := f.store.AppendTo(target, msg); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// =============================================================================
// EXCHANGES
// =============================================================================

// Send records text as a user message and streams the reply into sink and
// the store. Blank text is a no-op. ErrOffline and ErrBusy are returned
// without touching the store; any other error has already been recorded
// as an error-flagged assistant message.
func (f *Facade) Send(ctx context.Context, text string, sink stream.Sink) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !f.monitor.IsUp() {
		return ErrOffline
	}
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.busy.Store(false)

	return f.exchange(ctx, text, sink)
}

// Ask probes the backend once and then sends text. It is meant for one-shot
// use where no monitor loop is running.
func (f *Facade) Ask(ctx context.Context, text string, sink stream.Sink) error {
	if f.monitor.ProbeNow(ctx) != connectivity.Up {
		if err := f.monitor.LastError(); err != nil {
			return fmt.Errorf("%w: %v", ErrOffline, err)
		}
		return ErrOffline
	}
	return f.Send(ctx, text, sink)
}

// AskSync sends text to the non-streaming endpoint and records both sides.
func (f *Facade) AskSync(ctx context.Context, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, nil
	}
	if !f.busy.CompareAndSwap(false, true) {
		return model.Message{}, ErrBusy
	}
	defer f.busy.Store(false)

	f.store.Append(model.RoleUser, text)
	reply, err := f.backend.Chat(ctx, text)
	if err != nil {
		return f.recordFailure("send message", err, f.store.ActiveID(), nil), err
	}
	return f.store.Append(model.RoleAssistant, reply), nil
}

func (f *Facade) exchange(ctx context.Context, text string, sink stream.Sink) error {
	if sink == nil {
		sink = stream.NopSink{}
	}

	f.store.Append(model.RoleUser, text)
	origin := f.store.ActiveID()
	exchangeID := fmt.Sprintf("ex-%d", f.exchanges.Add(1))
	log := f.log.With(zap.String("exchange_id", exchangeID), zap.String("session_id", origin))

	newStream := func() *stream.Session {
		return stream.New(stream.Options{
			Store:       f.store,
			Sink:        sink,
			OriginID:    origin,
			PinToOrigin: f.opts.PinToOrigin,
			ExchangeID:  exchangeID,
			Logger:      f.log,
		})
	}

	body, err := f.backend.ChatStream(ctx, text)
	if err != nil && f.opts.SyncFallback && backend.IsStreamUnsupported(err) {
		log.Info("stream endpoint unavailable, using sync endpoint")
		reply, syncErr := f.backend.Chat(ctx, text)
		if syncErr == nil {
			s := newStream()
			s.OnDelta(reply, false)
			s.OnDone()
			return nil
		}
		err = syncErr
	}
	if err != nil {
		log.Warn("send failed before streaming", zap.Error(err))
		f.recordFailure("send message", err, origin, sink)
		return err
	}
	defer body.Close()

	s := newStream()
	if err := s.Consume(ctx, body); err != nil {
		log.Warn("stream interrupted", zap.Error(err))
		if ctx.Err() == nil {
			f.monitor.ForceDown(err)
		}
		return err
	}
	return nil
}

// recordFailure appends an error-flagged reply for a request that never
// produced a stream, and forces the monitor down for transport failures.
func (f *Facade) recordFailure(action string, err error, origin string, sink stream.Sink) model.Message {
	if marksDown(err) {
		f.monitor.ForceDown(err)
	}

	msg := model.NewErrorMessage(errorNotice(action, err))
	target := f.store.ActiveID()
	if f.opts.PinToOrigin && f.store.Has(origin) {
		target = origin
	}
	if appendErr := f.store.AppendTo(target, msg); appendErr != nil {
		msg = f.store.AppendMessage(msg)
	}
	if sink != nil {
		sink.Final(msg, format.Literal(msg.Content))
	}
	return msg
}

// =============================================================================
// SESSION ACTIONS
// =============================================================================

// Clear asks the backend to forget the conversation and then empties the
// active session. On failure local state is untouched apart from an
// appended error message.
func (f *Facade) Clear(ctx context.Context) error {
	if !f.monitor.IsUp() {
		return ErrOffline
	}
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.busy.Store(false)

	active := f.store.ActiveID()
	if err := f.backend.Clear(ctx); err != nil {
		f.log.Warn("clear rejected", zap.String("session_id", active), zap.Error(err))
		f.recordFailure("clear conversation", err, active, nil)
		return err
	}
	return f.store.Clear(active)
}

// NewSession creates a session and makes it active. Like sending, it is
// only available while the backend is up.
func (f *Facade) NewSession() (string, error) {
	if !f.monitor.IsUp() {
		return "", ErrOffline
	}
	return f.store.CreateAndSwitch(), nil
}

// SwitchTo makes id the active session.
func (f *Facade) SwitchTo(id string) error {
	return f.store.SwitchTo(id)
}

// DeleteSession removes a session.
func (f *Facade) DeleteSession(id string) error {
	return f.store.Delete(id)
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// Export renders a session in the given format.
func (f *Facade) Export(id string, fmtName export.Format) ([]byte, error) {
	snap, err := f.store.Export(id)
	if err != nil {
		return nil, err
	}
	exp, err := export.New(fmtName, &f.export)
	if err != nil {
		return nil, err
	}
	return exp.Export(snap)
}

// ExportToFile writes a session to dir (the configured output directory
// when empty) and returns the file path. With an archive configured the
// snapshot is archived as well; an archive failure is logged only.
func (f *Facade) ExportToFile(ctx context.Context, id string, fmtName export.Format, dir string) (string, error) {
	snap, err := f.store.Export(id)
	if err != nil {
		return "", err
	}
	opts := f.export
	if dir != "" {
		opts.OutputDir = dir
	}
	exp, err := export.New(fmtName, &opts)
	if err != nil {
		return "", err
	}
	path, err := export.ExportToFile(snap, exp, &opts)
	if err != nil {
		return "", err
	}

	if f.archive != nil {
		if _, err := f.archive.Save(ctx, snap); err != nil {
			f.log.Warn("archive save failed", zap.Error(err))
		}
	}
	f.log.Info("session exported", zap.String("session_id", id), zap.String("path", path))
	return path, nil
}

// Import loads a JSON export into a new session and returns its ID. The
// active session does not change.
func (f *Facade) Import(path string) (string, error) {
	snap, err := export.ReadFile(path)
	if err != nil {
		return "", err
	}
	return f.store.Import(snap), nil
}

// ArchiveSession saves a session snapshot to the archive.
func (f *Facade) ArchiveSession(ctx context.Context, id string) (int64, error) {
	if f.archive == nil {
		return 0, ErrNoArchive
	}
	snap, err := f.store.Export(id)
	if err != nil {
		return 0, err
	}
	return f.archive.Save(ctx, snap)
}

// RestoreArchived imports an archive entry into a new session.
func (f *Facade) RestoreArchived(ctx context.Context, entryID int64) (string, error) {
	if f.archive == nil {
		return "", ErrNoArchive
	}
	snap, err := f.archive.Load(ctx, entryID)
	if err != nil {
		return "", err
	}
	return f.store.Import(snap), nil
}
