// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/molihua12345/KubeAgent/internal/format"
	"github.com/molihua12345/KubeAgent/internal/model"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer batches stream deltas for rendering. Deltas accumulate
// until either the batch size is reached or enough time has passed since
// the last flush.
//
// Write is called from the stream goroutine and Flush from the Bubble Tea
// loop, so all operations take the mutex.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	deltaCount int
	lastFlush  time.Time

	batchSize  int
	maxFPS     int
	minFlushMs time.Duration
}

const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
)

// NewStreamingBuffer creates a buffer that flushes every 15 deltas or at
// most 30 times a second.
func NewStreamingBuffer() *StreamingBuffer {
	return NewStreamingBufferWithConfig(defaultBatchSize, defaultMaxFPS)
}

// NewStreamingBufferWithConfig creates a buffer with custom thresholds.
// Out-of-range values fall back to the defaults.
func NewStreamingBufferWithConfig(batchSize, maxFPS int) *StreamingBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &StreamingBuffer{
		batchSize:  batchSize,
		maxFPS:     maxFPS,
		minFlushMs: time.Duration(1000/maxFPS) * time.Millisecond,
		lastFlush:  time.Now(),
	}
}

// Write adds a delta to the buffer.
func (sb *StreamingBuffer) Write(delta string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buffer.WriteString(delta)
	sb.deltaCount++
}

// Flush returns the buffered text if a size or time threshold was reached.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if !sb.shouldFlushLocked() {
		return "", false
	}
	return sb.takeLocked(), true
}

// ForceFlush returns all buffered text regardless of thresholds.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.takeLocked(), true
}

func (sb *StreamingBuffer) shouldFlushLocked() bool {
	if sb.buffer.Len() == 0 {
		return false
	}
	if sb.deltaCount >= sb.batchSize {
		return true
	}
	return time.Since(sb.lastFlush) >= sb.minFlushMs
}

func (sb *StreamingBuffer) takeLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
	return content
}

// Reset drops buffered text. Used when a reply is cancelled or a new one
// starts.
func (sb *StreamingBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buffer.Reset()
	sb.deltaCount = 0
	sb.lastFlush = time.Now()
}

// Pending returns the number of deltas waiting to be flushed.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.deltaCount
}

// GetConfig returns the buffer thresholds.
func (sb *StreamingBuffer) GetConfig() (batchSize, maxFPS int, minFlushMs time.Duration) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.batchSize, sb.maxFPS, sb.minFlushMs
}

// =============================================================================
// STREAM SINK
// =============================================================================

// bufferSink adapts a StreamingBuffer to stream.Sink. The final message is
// not needed here: the store already holds it when Send returns.
type bufferSink struct {
	buf *StreamingBuffer
}

func (s bufferSink) Raw(delta string) {
	s.buf.Write(delta)
}

func (s bufferSink) Final(model.Message, format.Document) {}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickCmd schedules the next buffer drain at ~30fps.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
