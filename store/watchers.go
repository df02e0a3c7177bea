package store

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/on-the-ground/reactive_ive_go/stream"
)

// watcher is one listener of a node: either an external observer or a
// downstream derived query.
type watcher struct {
	active   atomic.Bool
	onChange func()
	onDone   func()
	onError  func(error)
}

// watchers is an ordered listener list. Entries released while a wave is in
// progress are skipped for the rest of that wave.
type watchers struct {
	mu   sync.Mutex
	list []*watcher
}

func (ws *watchers) add(w *watcher, onEmpty func()) (sub stream.Subscription, first bool) {
	w.active.Store(true)
	ws.mu.Lock()
	ws.list = append(ws.list, w)
	first = len(ws.list) == 1
	ws.mu.Unlock()

	return stream.NewSubscription(func() {
		w.active.Store(false)
		ws.mu.Lock()
		ws.list = slices.DeleteFunc(ws.list, func(x *watcher) bool { return x == w })
		empty := len(ws.list) == 0
		ws.mu.Unlock()
		if empty && onEmpty != nil {
			onEmpty()
		}
	}), first
}

func (ws *watchers) empty() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.list) == 0
}

func (ws *watchers) snapshot() []*watcher {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return slices.Clone(ws.list)
}

func (ws *watchers) drain() []*watcher {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	list := ws.list
	ws.list = nil
	for _, w := range list {
		w.active.Store(false)
	}
	return list
}

func (ws *watchers) fire() {
	for _, w := range ws.snapshot() {
		if w.active.Load() && w.onChange != nil {
			w.onChange()
		}
	}
}

func (ws *watchers) complete() {
	for _, w := range ws.drain() {
		if w.onDone != nil {
			w.onDone()
		}
	}
}

func (ws *watchers) fail(err error) {
	for _, w := range ws.drain() {
		if w.onError != nil {
			w.onError(err)
		}
	}
}

// versionGate delivers each version to one observer at most once and never
// delivers a version older than one already claimed.
type versionGate struct {
	mu   sync.Mutex
	last uint64
}

func (g *versionGate) claim(ver uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ver <= g.last {
		return false
	}
	g.last = ver
	return true
}
