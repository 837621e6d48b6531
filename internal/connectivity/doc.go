// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package connectivity tracks whether the chat backend is reachable.
//
// A Monitor runs a probe once at startup and then on a fixed interval.
// Observers are told only about transitions between Up and Down. A failed
// probe never retries immediately; the next tick is the retry.
//
// Usage:
//
//	mon := connectivity.NewMonitor(client.Probe, connectivity.Options{
//	    Interval: 30 * time.Second,
//	})
//	mon.OnChange(func(prev, next connectivity.State) { ... })
//	go mon.Run(ctx)
//
// Down-transitions do not touch in-flight streams; callers decide what a
// state means for their own work.
package connectivity
