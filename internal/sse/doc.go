// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the backend's server-sent event stream into deltas.
//
// The wire format is line oriented. Each event of interest is a line of the
// form
//
//	data: {"content": "...", "done": false, "error": false}
//
// and the stream may end with the sentinel line "data: [DONE]". Lines that
// do not start with "data:" (comments, event names, blank separators) are
// ignored.
//
// # Key Types
//
//   - Decoder: incremental byte-to-event decoder; safe across arbitrary
//     chunk boundaries, including inside multi-byte characters
//   - Reader: drives a Decoder from an io.Reader such as a response body
//   - Event: Delta, Done or Malformed
//
// # Usage
//
//	r := sse.NewReader(resp.Body)
//	err := r.Process(ctx, func(ev sse.Event) {
//		switch ev.Kind {
//		case sse.KindDelta:
//			buf.WriteString(ev.Text)
//		case sse.KindDone:
//			finalize()
//		}
//	})
//
// A Decoder emits exactly one Done per stream: either the sentinel, a
// payload with "done": true, or the implicit Done produced by Close when the
// transport ends without one.
package sse
