// Package roundwindow tracks the current round and the rounds still
// retained, and hands out a context per round that is cancelled once the
// round leaves the window.
package roundwindow

import (
	"context"
	"sync"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// RoundWindow is safe for concurrent use.
type RoundWindow struct {
	lock     sync.RWMutex
	parent   context.Context
	current  externalapi.Round
	bottom   externalapi.Round
	contexts map[externalapi.Round]roundContext
}

type roundContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a RoundWindow spanning bottom to current, with contexts derived
// from parent.
func New(parent context.Context, bottom, current externalapi.Round) *RoundWindow {
	return &RoundWindow{
		parent:   parent,
		current:  current,
		bottom:   bottom,
		contexts: make(map[externalapi.Round]roundContext),
	}
}

// Current returns the current round.
func (rw *RoundWindow) Current() externalapi.Round {
	rw.lock.RLock()
	defer rw.lock.RUnlock()

	return rw.current
}

// Bottom returns the lowest retained round.
func (rw *RoundWindow) Bottom() externalapi.Round {
	rw.lock.RLock()
	defer rw.lock.RUnlock()

	return rw.bottom
}

// Contains returns whether round is retained.
func (rw *RoundWindow) Contains(round externalapi.Round) bool {
	return round >= rw.Bottom()
}

// Context returns the context of round, or false if round is below the
// window.
func (rw *RoundWindow) Context(round externalapi.Round) (context.Context, bool) {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	if round < rw.bottom {
		return nil, false
	}
	roundCtx, ok := rw.contexts[round]
	if !ok {
		ctx, cancel := context.WithCancel(rw.parent)
		roundCtx = roundContext{ctx: ctx, cancel: cancel}
		rw.contexts[round] = roundCtx
	}
	return roundCtx.ctx, true
}

// Advance moves the window to current and bottom and cancels the
// contexts of the rounds that left it. Neither bound ever moves back.
func (rw *RoundWindow) Advance(bottom, current externalapi.Round) {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	if current > rw.current {
		rw.current = current
	}
	if bottom <= rw.bottom {
		return
	}
	rw.bottom = bottom
	for round, roundCtx := range rw.contexts {
		if round < bottom {
			roundCtx.cancel()
			delete(rw.contexts, round)
		}
	}
}

// Close cancels the contexts of all rounds.
func (rw *RoundWindow) Close() {
	rw.lock.Lock()
	defer rw.lock.Unlock()

	for round, roundCtx := range rw.contexts {
		roundCtx.cancel()
		delete(rw.contexts, round)
	}
}
