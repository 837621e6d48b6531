// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultReadSize is the chunk size used when reading from the transport.
const DefaultReadSize = 4096

// Reader drives a Decoder from an io.Reader.
type Reader struct {
	src      io.Reader
	dec      *Decoder
	readSize int
	bytes    int64
}

// NewReader wraps r. The input is passed through a UTF-8 decoder that drops
// a leading byte order mark and replaces invalid sequences with U+FFFD, so
// every Delta is valid UTF-8.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		src:      transform.NewReader(r, unicode.UTF8BOM.NewDecoder()),
		dec:      NewDecoder(),
		readSize: DefaultReadSize,
	}
}

// Decoder returns the underlying decoder.
func (r *Reader) Decoder() *Decoder {
	return r.dec
}

// BytesRead returns the number of decoded bytes consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.bytes
}

// Process reads until the stream completes and calls fn for each event in
// order. On a clean end of input fn always sees exactly one Done as its last
// event. Process returns as soon as Done is decoded without reading further.
//
// A read error is returned after the events decoded so far were delivered;
// no Done is synthesized in that case. Context cancellation is checked
// between reads.
func (r *Reader) Process(ctx context.Context, fn func(Event)) error {
	buf := make([]byte, r.readSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.src.Read(buf)
		if n > 0 {
			r.bytes += int64(n)
			for _, ev := range r.dec.Feed(buf[:n]) {
				fn(ev)
			}
			if r.dec.Exhausted() {
				return nil
			}
		}

		if errors.Is(err, io.EOF) {
			for _, ev := range r.dec.Close() {
				fn(ev)
			}
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}
