// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DoneSentinel terminates a stream.
	DoneSentinel = "[DONE]"

	// MaxLineSize bounds a single buffered line. Longer lines are reported
	// as malformed and dropped.
	MaxLineSize = 64 * 1024
)

var dataPrefix = []byte("data:")

// ErrLineTooLong is wrapped by the MalformedEventError for oversized lines.
var ErrLineTooLong = errors.New("event line exceeds maximum size")

// =============================================================================
// EVENTS
// =============================================================================

// Kind identifies the type of a decoded event.
type Kind int

const (
	// KindDelta carries an incremental fragment of response text.
	KindDelta Kind = iota
	// KindDone marks the end of the response.
	KindDone
	// KindMalformed reports a data line whose payload could not be parsed.
	KindMalformed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one decoded stream event.
type Event struct {
	Kind Kind

	// Text is the delta content (KindDelta).
	Text string

	// IsError is set when the backend flagged the delta as an error report.
	IsError bool

	// Implicit is set on a Done synthesized at end of transport.
	Implicit bool

	// Err describes a malformed line (KindMalformed). It is always a
	// *MalformedEventError.
	Err error
}

// Delta returns a delta event.
func Delta(text string) Event { return Event{Kind: KindDelta, Text: text} }

// Done returns an explicit done event.
func Done() Event { return Event{Kind: KindDone} }

// MalformedEventError reports a data line that failed to parse. The decoder
// skips the line and keeps going.
type MalformedEventError struct {
	Line string
	Err  error
}

func (e *MalformedEventError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return fmt.Sprintf("malformed event %q: %v", line, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// payload is the JSON body of a data line.
type payload struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   bool   `json:"error"`
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns raw stream bytes into events. It is not safe for concurrent
// use; one decoder serves one response.
type Decoder struct {
	buf       []byte
	done      bool
	discard   bool // dropping the rest of an oversized line
	maxLine   int
	malformed int
}

// NewDecoder creates a decoder with the default line limit.
func NewDecoder() *Decoder {
	return &Decoder{maxLine: MaxLineSize}
}

// Exhausted reports whether Done has been emitted.
func (d *Decoder) Exhausted() bool {
	return d.done
}

// MalformedCount returns how many malformed lines were skipped.
func (d *Decoder) MalformedCount() int {
	return d.malformed
}

// Feed consumes a chunk and returns the events completed by it. The trailing
// partial line is kept for the next call. After Done, Feed returns nil.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}

	var events []Event
	for len(chunk) > 0 && !d.done {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.buffer(chunk, &events)
			break
		}

		d.buffer(chunk[:i], &events)
		chunk = chunk[i+1:]

		if d.discard {
			d.discard = false
			d.buf = d.buf[:0]
			continue
		}
		line := d.buf
		d.buf = d.buf[:0]
		events = d.line(line, events)
	}
	if d.done {
		d.buf = nil
	}
	return events
}

// Close signals end of transport. A trailing unterminated line is decoded as
// if it were complete. If no Done was seen, exactly one implicit Done is
// returned. Calls after Done return nil.
func (d *Decoder) Close() []Event {
	if d.done {
		return nil
	}

	var events []Event
	if len(d.buf) > 0 && !d.discard {
		events = d.line(d.buf, events)
	}
	d.buf = nil
	d.discard = false

	if !d.done {
		d.done = true
		events = append(events, Event{Kind: KindDone, Implicit: true})
	}
	return events
}

// buffer appends part of a line, enforcing the line limit.
func (d *Decoder) buffer(part []byte, events *[]Event) {
	if d.discard {
		return
	}
	if len(d.buf)+len(part) > d.maxLine {
		d.malformed++
		preview := append(d.buf, part...)
		if len(preview) > 80 {
			preview = preview[:80]
		}
		*events = append(*events, Event{
			Kind: KindMalformed,
			Err:  &MalformedEventError{Line: string(preview), Err: ErrLineTooLong},
		})
		d.buf = d.buf[:0]
		d.discard = true
		return
	}
	d.buf = append(d.buf, part...)
}

// line decodes one complete line and appends the resulting events.
func (d *Decoder) line(raw []byte, events []Event) []Event {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	if !bytes.HasPrefix(raw, dataPrefix) {
		return events
	}

	data := raw[len(dataPrefix):]
	if len(data) > 0 && data[0] == ' ' {
		data = data[1:]
	}
	data = bytes.TrimSpace(data)

	if string(data) == DoneSentinel {
		d.done = true
		return append(events, Done())
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		d.malformed++
		return append(events, Event{
			Kind: KindMalformed,
			Err:  &MalformedEventError{Line: string(raw), Err: err},
		})
	}

	if p.Content != "" {
		events = append(events, Event{Kind: KindDelta, Text: p.Content, IsError: p.Error})
	}
	if p.Done {
		d.done = true
		events = append(events, Done())
	}
	return events
}
