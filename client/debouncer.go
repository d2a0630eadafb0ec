package client

import (
	"sort"
	"sync"
	"time"
)

// debouncer coalesces change keys and flushes them at most once per window.
type debouncer struct {
	window time.Duration
	flush  func(keys []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, flush func(keys []string)) *debouncer {
	return &debouncer{
		window:  window,
		flush:   flush,
		pending: make(map[string]struct{}),
	}
}

func (d *debouncer) mark(keys ...string) {
	if len(keys) == 0 {
		return
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	for _, k := range keys {
		d.pending[k] = struct{}{}
	}
	if d.window <= 0 {
		batch := d.takeLocked()
		d.mu.Unlock()
		d.flush(batch)
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.fire)
	}
	d.mu.Unlock()
}

func (d *debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	batch := d.takeLocked()
	d.mu.Unlock()

	if len(batch) > 0 {
		d.flush(batch)
	}
}

func (d *debouncer) takeLocked() []string {
	batch := make([]string, 0, len(d.pending))
	for k := range d.pending {
		batch = append(batch, k)
	}
	d.pending = make(map[string]struct{})
	sort.Strings(batch)
	return batch
}

// stop drops anything pending; later marks are ignored.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]struct{})
}
