// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line-oriented chat with input history.
//
// Commands (a leading "/" is accepted too):
//
//	help              Show commands
//	exit, quit        Leave the chat
//	clear             Clear the conversation on the backend and locally
//	history           Show the current chat
//	sessions          List chats
//	new               Start a new chat
//	switch N          Switch to chat N from the sessions list
//	export [FORMAT]   Export the current chat (json, md or html)
//	archive           Save the current chat to the local archive
//	restore ID        Open an archived chat as a new session
//
// Anything else is sent to KubeWizard. Ctrl+C while a reply streams keeps
// what arrived so far and exits; at the prompt, pressing it twice in a row
// exits.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/molihua12345/KubeAgent/internal/chat"
	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/connectivity"
	"github.com/molihua12345/KubeAgent/internal/export"
	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
	"github.com/molihua12345/KubeAgent/internal/stream"
)

const replHistoryFile = "repl_history"

func newREPLCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat line by line in the current terminal",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.ErrOrStderr(), opts, logToStderr)
			if err != nil {
				return err
			}
			defer a.Close()
			return runREPL(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

// =============================================================================
// LINE INPUT
// =============================================================================

// lineInput wraps liner with a persistent history file.
type lineInput struct {
	line        *liner.State
	historyFile string
}

func newLineInput() *lineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &lineInput{line: line, historyFile: filepath.Join(dir, replHistoryFile)}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

// read prompts for one line and records non-blank input in the history.
func (in *lineInput) read(prompt string) (string, error) {
	text, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		in.line.AppendHistory(text)
	}
	return text, nil
}

// Close saves the history (0600) and restores the terminal.
func (in *lineInput) Close() {
	if err := os.MkdirAll(filepath.Dir(in.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl executes one input line at a time against the façade.
type repl struct {
	ctx    context.Context
	facade *chat.Facade
	out    *printer
	log    *zap.Logger

	stop context.CancelFunc // ends the REPL

	mu     sync.Mutex
	cancel context.CancelFunc // exchange in flight
}

func newREPL(ctx context.Context, a *app, w io.Writer) *repl {
	ctx, stop := context.WithCancel(ctx)
	return &repl{
		ctx:    ctx,
		stop:   stop,
		facade: a.facade,
		out:    newPrinter(w),
		log:    a.log.Named("repl"),
	}
}

// runREPL reads lines until exit, EOF or a second Ctrl+C.
func runREPL(ctx context.Context, a *app, w io.Writer) error {
	r := newREPL(ctx, a, w)
	defer r.stop()
	ctx = r.ctx

	if err := a.facade.Start(ctx); err != nil {
		return err
	}
	r.banner()

	in := newLineInput()
	defer in.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-sigs:
				if r.interrupt() {
					r.out.warn("Interrupted; exiting.")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	aborted := false
	for {
		line, err := in.read(r.prompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			if aborted {
				fmt.Fprintln(w)
				return nil
			}
			aborted = true
			r.out.info("Press Ctrl+C again to exit.")
			continue
		}
		if err != nil {
			// EOF (Ctrl+D) or a closed terminal.
			fmt.Fprintln(w)
			return nil
		}
		aborted = false

		quit, err := r.handle(line)
		if err != nil && ctx.Err() == nil {
			r.out.warn("%v", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) banner() {
	r.out.info("KubeWizard chat. Type 'help' for commands.")
	if !r.facade.Online() {
		r.out.warn("Backend is offline; messages can be sent once it is reachable.")
	}
	if n := len(r.facade.Store().Active().Messages); n > 0 {
		r.out.info("Loaded %d messages from the backend history.", n)
	}
}

func (r *repl) prompt() string {
	title := r.facade.Store().Active().Title
	if r.out.color {
		return promptStyle.Render(title+" > ") + " "
	}
	return title + " > "
}

// interrupt handles Ctrl+C outside the prompt. With an exchange in flight
// the exchange ends with the text received so far and the REPL stops;
// otherwise it does nothing and reports false.
func (r *repl) interrupt() bool {
	if !r.endExchange() {
		return false
	}
	r.stop()
	return true
}

// endExchange cancels the exchange in flight, if any.
func (r *repl) endExchange() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// handle executes one line. It returns true when the REPL should exit.
func (r *repl) handle(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return false, nil
	}
	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		return true, nil
	case "help":
		r.help()
	case "clear":
		return false, r.clear()
	case "history":
		r.out.transcript(r.facade.Store().Messages(r.facade.Store().ActiveID()))
	case "sessions":
		r.sessions()
	case "new":
		return false, r.newSession()
	case "switch":
		if len(fields) != 2 {
			return false, NewUsageError("usage: switch N")
		}
		return false, r.switchTo(fields[1])
	case "export":
		name := ""
		if len(fields) > 1 {
			name = fields[1]
		}
		return false, r.export(name)
	case "archive":
		return false, r.archive()
	case "restore":
		if len(fields) != 2 {
			return false, NewUsageError("usage: restore ID")
		}
		return false, r.restore(fields[1])
	default:
		return false, r.send(line)
	}
	return false, nil
}

func (r *repl) help() {
	cmds := [][2]string{
		{"help", "Show this help"},
		{"exit, quit", "Leave the chat"},
		{"clear", "Clear the conversation"},
		{"history", "Show the current chat"},
		{"sessions", "List chats"},
		{"new", "Start a new chat"},
		{"switch N", "Switch to chat N"},
		{"export [FORMAT]", "Export the current chat (json, md, html)"},
		{"archive", "Save the current chat to the archive"},
		{"restore ID", "Open an archived chat as a new session"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out.w, "  %-18s %s\n", c[0], c[1])
	}
}

// send streams a reply for text. An offline monitor is re-probed once
// before giving up.
func (r *repl) send(text string) error {
	ctx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer r.endExchange()

	started := false
	sink := stream.SinkFuncs{
		OnRaw: func(delta string) {
			if !started {
				fmt.Fprintln(r.out.w, r.out.label(model.RoleAssistant))
				started = true
			}
			fmt.Fprint(r.out.w, delta)
		},
		OnFinal: func(msg model.Message, _ format.Document) {
			if !started {
				fmt.Fprintln(r.out.w, r.out.label(model.RoleAssistant))
			}
			if msg.IsError {
				if started {
					fmt.Fprintln(r.out.w)
				}
				fmt.Fprintln(r.out.w, r.out.style(msg.Content, ErrorStyle.Render))
				return
			}
			fmt.Fprintln(r.out.w)
		},
	}

	err := r.facade.Send(ctx, text, sink)
	if errors.Is(err, chat.ErrOffline) && r.facade.Monitor().ProbeNow(ctx) == connectivity.Up {
		err = r.facade.Send(ctx, text, sink)
	}
	switch {
	case err == nil:
		return nil
	case chat.IsGuard(err):
		return err
	default:
		// Already shown as an error message.
		r.log.Debug("exchange failed", zap.Error(err))
		return nil
	}
}

func (r *repl) clear() error {
	if err := r.facade.Clear(r.ctx); err != nil {
		if chat.IsGuard(err) {
			return err
		}
		msgs := r.facade.Store().Messages(r.facade.Store().ActiveID())
		if n := len(msgs); n > 0 && msgs[n-1].IsError {
			r.out.message(msgs[n-1])
		}
		return nil
	}
	r.out.success("Conversation cleared.")
	return nil
}

func (r *repl) sessions() {
	for i, meta := range r.facade.Store().List() {
		marker := " "
		if meta.Active {
			marker = "*"
		}
		fmt.Fprintf(r.out.w, "%s %2d  %-20s %3d msgs  %s\n",
			marker, i+1, meta.Title, meta.MessageCount, r.out.style(meta.Preview, DimStyle.Render))
	}
}

func (r *repl) newSession() error {
	if _, err := r.facade.NewSession(); err != nil {
		return fmt.Errorf("cannot start a new chat: %w", err)
	}
	r.out.success("Started %s.", r.facade.Store().Active().Title)
	return nil
}

func (r *repl) switchTo(arg string) error {
	list := r.facade.Store().List()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(list) {
		return NewUsageError("no chat %q; 'sessions' lists 1 to %d", arg, len(list))
	}
	if err := r.facade.SwitchTo(list[n-1].ID); err != nil {
		return err
	}
	active := r.facade.Store().Active()
	r.out.info("Switched to %s (%d messages).", active.Title, len(active.Messages))
	return nil
}

func (r *repl) export(name string) error {
	if name == "" {
		name = string(export.FormatJSON)
	}
	fmtName, err := export.ParseFormat(name)
	if err != nil {
		return err
	}
	path, err := r.facade.ExportToFile(r.ctx, r.facade.Store().ActiveID(), fmtName, "")
	if err != nil {
		return err
	}
	r.out.success("Exported to %s", path)
	return nil
}

func (r *repl) archive() error {
	store := r.facade.Store()
	id, err := r.facade.ArchiveSession(r.ctx, store.ActiveID())
	if err != nil {
		return err
	}
	r.out.success("Archived %s as entry %d.", store.Active().Title, id)
	return nil
}

func (r *repl) restore(arg string) error {
	entryID, err := parseEntryID(arg)
	if err != nil {
		return err
	}
	id, err := r.facade.RestoreArchived(r.ctx, entryID)
	if err != nil {
		return err
	}
	sess, _ := r.facade.Store().Get(id)
	r.out.success("Restored entry %d as %s; 'sessions' lists it.", entryID, sess.Title)
	return nil
}
