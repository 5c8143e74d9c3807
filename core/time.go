// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"
)

// NewTime creates a new time service
func NewTime(cfg TimeConfiguration) *Time {
	var interval time.Duration
	if cfg.FramesPerSecond <= 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / time.Duration(cfg.FramesPerSecond)
	}

	poll := time.Duration(cfg.EventPollDelay) * time.Millisecond
	if poll <= 0 {
		poll = time.Millisecond
	}

	t := &Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: cfg.EventPollDelay,
		eventTicker:    time.NewTicker(poll),
		now:            time.Now,
	}
	t.last = t.now()
	return t
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker

	now    func() time.Time
	last   time.Time
	frames uint64
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Tick marks the start of a frame and returns the time since the last one.
func (t *Time) Tick() time.Duration {
	now := t.now()
	delta := now.Sub(t.last)
	t.last = now
	t.frames++
	return delta
}

// Frames is the number of ticks so far.
func (t *Time) Frames() uint64 {
	return t.frames
}

// Stop releases the tickers.
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}
