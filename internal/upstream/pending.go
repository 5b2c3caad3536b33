package upstream

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Future is the eventual reply to a correlated request. It resolves exactly
// once.
type Future struct {
	id   uint64
	done chan struct{}
	once sync.Once

	result json.RawMessage
	err    error
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := newFuture(0)
	f.resolve(nil, err)
	return f
}

// ID returns the request id, or 0 for a request that was never sent.
func (f *Future) ID() uint64 { return f.id }

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the reply arrives, the request fails, or ctx ends.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve reports whether this call was the one that settled the future.
func (f *Future) resolve(result json.RawMessage, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

type pendingRequest struct {
	future   *Future
	timer    *time.Timer
	deadline time.Time
}

// pendingSet holds outstanding correlated requests. Ids grow monotonically,
// so the oldest entry is the lowest live id.
type pendingSet struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*pendingRequest
	order   []uint64
}

func newPendingSet() *pendingSet {
	return &pendingSet{entries: make(map[uint64]*pendingRequest)}
}

// add registers a new request that fails with ErrRequestTimeout after timeout.
func (p *pendingSet) add(timeout time.Duration) *Future {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	id := p.next
	f := newFuture(id)
	req := &pendingRequest{future: f, deadline: time.Now().Add(timeout)}
	req.timer = time.AfterFunc(timeout, func() {
		p.fail(id, ErrRequestTimeout)
	})
	p.entries[id] = req
	p.order = append(p.order, id)
	return f
}

// completeOldest resolves the oldest outstanding request with data. It
// reports false when nothing is pending.
func (p *pendingSet) completeOldest(data json.RawMessage) bool {
	p.mu.Lock()
	var req *pendingRequest
	for len(p.order) > 0 {
		id := p.order[0]
		p.order = p.order[1:]
		if r, ok := p.entries[id]; ok {
			delete(p.entries, id)
			req = r
			break
		}
	}
	p.mu.Unlock()

	if req == nil {
		return false
	}
	req.timer.Stop()
	req.future.resolve(data, nil)
	return true
}

// fail removes id and fails its future. Removing an id that is already gone
// is a no-op.
func (p *pendingSet) fail(id uint64, err error) bool {
	p.mu.Lock()
	req, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
		p.compact()
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	req.timer.Stop()
	return req.future.resolve(nil, err)
}

// failAll fails every outstanding request.
func (p *pendingSet) failAll(err error) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[uint64]*pendingRequest)
	p.order = nil
	p.mu.Unlock()

	for _, req := range entries {
		req.timer.Stop()
		req.future.resolve(nil, err)
	}
}

// compact drops ids that left the map without passing through
// completeOldest. Caller holds mu.
func (p *pendingSet) compact() {
	if len(p.order) <= 2*len(p.entries)+16 {
		return
	}
	live := p.order[:0]
	for _, id := range p.order {
		if _, ok := p.entries[id]; ok {
			live = append(live, id)
		}
	}
	p.order = live
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
