// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the
// streaming engine's periodic flush loop and batch timestamps.
//
// Production code holds a [Clock] and never calls time.Now or
// time.NewTicker directly. [Real] wraps the time package; [Fake]
// returns a clock that only moves when the test calls Advance:
//
//	fake := clock.Fake(time.Unix(0, 0))
//	stream := engine.NewBuilder(...).WithClock(fake).Build()
//	fake.WaitForTickers(1)          // flush loop has started
//	fake.Advance(time.Second)       // deterministically fire one tick
package clock
