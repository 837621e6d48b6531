// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r io.Reader) ([]Event, error) {
	t.Helper()
	var events []Event
	err := NewReader(r).Process(context.Background(), func(ev Event) {
		events = append(events, ev)
	})
	return events, err
}

func TestReader_ImplicitDoneOnEOF(t *testing.T) {
	events, err := collect(t, strings.NewReader("data: {\"content\":\"a\"}\ndata: {\"content\":\"b\"}\n"))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "a", events[0].Text)
	assert.Equal(t, "b", events[1].Text)
	assert.Equal(t, KindDone, events[2].Kind)
	assert.True(t, events[2].Implicit)
}

func TestReader_StopsAtSentinel(t *testing.T) {
	// The error after the sentinel must never be reached.
	body := io.MultiReader(
		strings.NewReader("data: {\"content\":\"x\"}\ndata: [DONE]\n"),
		iotest.ErrReader(errors.New("should not read")),
	)

	events, err := collect(t, body)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, KindDone, events[1].Kind)
	assert.False(t, events[1].Implicit)
}

func TestReader_OneByteReads(t *testing.T) {
	input := "data: {\"content\":\"héllo \"}\ndata: {\"content\":\"日本\"}\ndata: [DONE]\n"

	events, err := collect(t, iotest.OneByteReader(strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "héllo ", events[0].Text)
	assert.Equal(t, "日本", events[1].Text)
}

func TestReader_StripsBOMAndRepairsUTF8(t *testing.T) {
	input := "\xef\xbb\xbfdata: {\"content\":\"ok\xff\"}\n"

	events, err := collect(t, strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, utf8.ValidString(events[0].Text))
	assert.Equal(t, "ok�", events[0].Text)
}

func TestReader_TransportErrorAfterPartialData(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(
		strings.NewReader("data: {\"content\":\"partial\"}\n"),
		iotest.ErrReader(boom),
	)

	events, err := collect(t, body)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	require.Len(t, events, 1, "no implicit Done on a transport error")
	assert.Equal(t, "partial", events[0].Text)
}

func TestReader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewReader(strings.NewReader("data: [DONE]\n")).Process(ctx, func(Event) {
		t.Error("no events expected after cancellation")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
