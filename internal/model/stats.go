// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// Statistics holds timing and volume for one streamed reply.
type Statistics struct {
	StartTime      time.Time `json:"start_time"`
	FirstDeltaTime time.Time `json:"first_delta_time,omitempty"`
	EndTime        time.Time `json:"end_time"`

	Deltas    int `json:"deltas"`
	Bytes     int `json:"bytes"`
	Malformed int `json:"malformed,omitempty"`

	// Derived on Finalize.
	TTFT          time.Duration `json:"ttft_ns"`
	TotalDuration time.Duration `json:"total_duration_ns"`
}

// NewStatistics creates Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordDelta counts one delta of n bytes.
func (s *Statistics) RecordDelta(n int) {
	if s.FirstDeltaTime.IsZero() {
		s.FirstDeltaTime = time.Now()
		s.TTFT = s.FirstDeltaTime.Sub(s.StartTime)
	}
	s.Deltas++
	s.Bytes += n
}

// RecordMalformed counts one skipped event line.
func (s *Statistics) RecordMalformed() {
	s.Malformed++
}

// Finalize stamps the end time and computes the total duration.
func (s *Statistics) Finalize() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// String formats the statistics for a status line, e.g.
// "2.5s | 42 chunks | first token 230ms".
func (s *Statistics) String() string {
	if s == nil || s.TotalDuration == 0 {
		return ""
	}
	out := fmt.Sprintf("%.1fs | %d chunks", s.TotalDuration.Seconds(), s.Deltas)
	if s.TTFT > 0 {
		out += fmt.Sprintf(" | first token %dms", s.TTFT.Milliseconds())
	}
	return out
}
