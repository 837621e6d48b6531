// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProbe returns results from a fixed script, repeating the last.
type scriptedProbe struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (p *scriptedProbe) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	return p.results[i]
}

func (p *scriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var errDown = errors.New("connection refused")

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unknown, "unknown"},
		{Up, "up"},
		{Down, "down"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestProbeNowTransitions(t *testing.T) {
	probe := &scriptedProbe{results: []error{nil, nil, errDown, errDown, nil}}
	mon := NewMonitor(probe.Probe, Options{})

	type change struct{ prev, next State }
	var changes []change
	mon.OnChange(func(prev, next State) {
		changes = append(changes, change{prev, next})
	})

	want := []State{Up, Up, Down, Down, Up}
	for i, w := range want {
		if got := mon.ProbeNow(context.Background()); got != w {
			t.Fatalf("probe %d: state = %v, want %v", i, got, w)
		}
	}

	wantChanges := []change{{Unknown, Up}, {Up, Down}, {Down, Up}}
	if len(changes) != len(wantChanges) {
		t.Fatalf("got %d transitions, want %d: %v", len(changes), len(wantChanges), changes)
	}
	for i := range wantChanges {
		if changes[i] != wantChanges[i] {
			t.Errorf("transition %d = %v, want %v", i, changes[i], wantChanges[i])
		}
	}
}

func TestProbeNowRecordsError(t *testing.T) {
	probe := &scriptedProbe{results: []error{errDown}}
	mon := NewMonitor(probe.Probe, Options{})

	mon.ProbeNow(context.Background())
	if !errors.Is(mon.LastError(), errDown) {
		t.Errorf("LastError() = %v, want %v", mon.LastError(), errDown)
	}
	if mon.LastProbe().IsZero() {
		t.Error("LastProbe() not recorded")
	}
}

func TestProbeTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	mon := NewMonitor(slow, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	if got := mon.ProbeNow(context.Background()); got != Down {
		t.Fatalf("state = %v, want down", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("probe took %v, timeout not applied", elapsed)
	}
}

func TestForceDown(t *testing.T) {
	probe := &scriptedProbe{results: []error{nil}}
	mon := NewMonitor(probe.Probe, Options{})
	mon.ProbeNow(context.Background())

	var downs atomic.Int32
	mon.OnChange(func(prev, next State) {
		if next == Down {
			downs.Add(1)
		}
	})

	reason := errors.New("stream reset")
	mon.ForceDown(reason)
	mon.ForceDown(reason)

	if mon.IsUp() {
		t.Fatal("monitor still up after ForceDown")
	}
	if downs.Load() != 1 {
		t.Errorf("observed %d down transitions, want 1", downs.Load())
	}
	if mon.ProbeNow(context.Background()) != Up {
		t.Error("successful probe did not restore Up")
	}
}

func TestRunProbesPeriodically(t *testing.T) {
	probe := &scriptedProbe{results: []error{nil}}
	mon := NewMonitor(probe.Probe, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for probe.Calls() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d probes ran", probe.Calls())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
	if !mon.IsUp() {
		t.Error("monitor not up after successful probes")
	}
}

func TestSetInterval(t *testing.T) {
	probe := &scriptedProbe{results: []error{nil}}
	mon := NewMonitor(probe.Probe, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.RunAfterInitial(ctx)
		close(done)
	}()

	mon.SetInterval(10 * time.Millisecond)
	if mon.Interval() != 10*time.Millisecond {
		t.Errorf("Interval() = %v", mon.Interval())
	}

	deadline := time.After(2 * time.Second)
	for probe.Calls() < 1 {
		select {
		case <-deadline:
			t.Fatal("new interval was not applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestProbeCmd(t *testing.T) {
	probe := &scriptedProbe{results: []error{errDown}}
	mon := NewMonitor(probe.Probe, Options{})

	msg := mon.ProbeCmd(context.Background())()
	sm, ok := msg.(StateMsg)
	if !ok {
		t.Fatalf("ProbeCmd returned %T, want StateMsg", msg)
	}
	if sm.State != Down || !errors.Is(sm.Err, errDown) {
		t.Errorf("StateMsg = %+v", sm)
	}
}
