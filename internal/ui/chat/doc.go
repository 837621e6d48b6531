// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive terminal interface for KubeWizard.

The package is a Bubble Tea front end over the chat facade. It owns no
conversation state of its own: every repaint re-reads the session store,
and store events are fed back into the update loop so that changes made
from any goroutine (a finished stream, a history replay, a switch) show up
on screen.

# Key Components

## Model (model.go)

The Model struct holds the widgets (text input, transcript viewport,
spinner) and the view state that is not part of a session: which sidebar
row is selected, the current notice, the partial text of the reply being
streamed.

## Update Loop (update.go)

Commands that talk to the facade run off the UI goroutine and report back
with messages: bootstrap, send, clear, export and connectivity probes.

## View Rendering (view.go)

Header with backend status, the session sidebar, the transcript and the
input line. Assistant replies are rendered through the built-in formatter
or glamour, depending on configuration.

## Streaming (streaming.go)

StreamingBuffer batches deltas from the stream goroutine and the model
drains it on a ~30fps tick so the transcript does not repaint per token.

# Key Bindings

  - Enter: send
  - Esc: close the help panel
  - Ctrl+N: new session
  - Ctrl+L: clear the conversation
  - Tab / Shift+Tab: select a session, Ctrl+O to open it, Ctrl+X to delete it
  - Ctrl+E: export the active session
  - Ctrl+R: probe the backend now
  - Ctrl+C: quit
*/
package chat
