/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package pacing runs one-shot deferred callbacks that only fire for the
// latest request.
//
// Each request takes a Token from Begin. Callbacks scheduled with an older
// token are dropped when their timer fires, so a slow result can never
// overwrite a newer one.
package pacing

import (
	"sync"
	"time"
)

// Token identifies one request. Zero is never current.
type Token uint64

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules on the runtime timer.
type RealClock struct{}

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Pacer struct {
	clock Clock

	mu      sync.Mutex
	current Token
	pending map[Timer]struct{}
}

// New returns a Pacer on clock, or on RealClock when clock is nil.
func New(clock Clock) *Pacer {
	if clock == nil {
		clock = RealClock{}
	}

	return &Pacer{
		clock:   clock,
		pending: make(map[Timer]struct{}),
	}
}

// Begin starts a new request and makes every earlier token stale.
func (p *Pacer) Begin() Token {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++

	return p.current
}

// Invalidate makes the current token stale without starting a new request.
func (p *Pacer) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
}

// Current reports whether tok belongs to the latest request.
func (p *Pacer) Current(tok Token) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return tok != 0 && tok == p.current
}

// After runs fn once d has elapsed, unless tok has gone stale by then.
func (p *Pacer) After(tok Token, d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		timer Timer
		ready = make(chan struct{})
	)

	timer = p.clock.AfterFunc(d, func() {
		<-ready

		p.mu.Lock()
		delete(p.pending, timer)
		live := tok != 0 && tok == p.current
		p.mu.Unlock()

		if live {
			fn()
		}
	})

	p.pending[timer] = struct{}{}
	close(ready)
}

// Stop cancels every pending callback and invalidates the current token.
func (p *Pacer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++

	for timer := range p.pending {
		timer.Stop()
		delete(p.pending, timer)
	}
}

// Pending reports how many callbacks have not fired or been stopped.
func (p *Pacer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.pending)
}
