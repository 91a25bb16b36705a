package comm

import (
	"context"
	"sync"
)

// route identifies one FIFO queue
type route struct {
	dest, source, tag int
}

type message struct {
	id   uint64
	data []byte
	done chan struct{}
}

// postOffice holds every in-flight message of a world plus the barrier state.
// Waiters block on the changed channel, which is closed and replaced whenever
// the state moves.
type postOffice struct {
	size int

	mu         sync.Mutex
	queues     map[route][]*message
	inFlight   map[uint64]*message
	nextID     uint64
	changed    chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	arrived    int
	generation uint64
}

func newPostOffice(size int) *postOffice {
	return &postOffice{
		size:     size,
		queues:   make(map[route][]*message),
		inFlight: make(map[uint64]*message),
		changed:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// notify wakes every waiter. Caller holds mu.
func (p *postOffice) notify() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *postOffice) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *postOffice) checkRoute(r route) error {
	if err := checkRank(r.dest, p.size); err != nil {
		return err
	}
	return checkRank(r.source, p.size)
}

// post queues a copy of data and returns the message
func (p *postOffice) post(r route, data []byte) (*message, error) {
	if err := p.checkRoute(r); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed() {
		return nil, ErrClosed
	}

	p.nextID++
	m := &message{
		id:   p.nextID,
		data: append([]byte(nil), data...),
		done: make(chan struct{}),
	}
	p.queues[r] = append(p.queues[r], m)
	p.inFlight[m.id] = m
	p.notify()
	return m, nil
}

// peek blocks until the queue for r is non-empty and returns its head without removing it
func (p *postOffice) peek(ctx context.Context, r route) (*message, error) {
	if err := p.checkRoute(r); err != nil {
		return nil, err
	}

	for {
		p.mu.Lock()
		if q := p.queues[r]; len(q) > 0 {
			m := q[0]
			p.mu.Unlock()
			return m, nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-p.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// take blocks until the queue for r is non-empty, removes its head and marks it delivered
func (p *postOffice) take(ctx context.Context, r route) (*message, error) {
	if err := p.checkRoute(r); err != nil {
		return nil, err
	}

	for {
		p.mu.Lock()
		if q := p.queues[r]; len(q) > 0 {
			m := q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(p.queues, r)
			} else {
				p.queues[r] = q[1:]
			}
			delete(p.inFlight, m.id)
			close(m.done)
			p.notify()
			p.mu.Unlock()
			return m, nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-p.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// awaitDelivery blocks until message id has been taken. Unknown ids below
// the next id have already been delivered.
func (p *postOffice) awaitDelivery(ctx context.Context, id uint64) (bool, error) {
	p.mu.Lock()
	m, ok := p.inFlight[id]
	known := id > 0 && id <= p.nextID
	p.mu.Unlock()

	if !known {
		return false, nil
	}
	if !ok {
		return true, nil
	}
	return true, p.awaitMessage(ctx, m)
}

func (p *postOffice) awaitMessage(ctx context.Context, m *message) error {
	select {
	case <-m.done:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// barrier blocks until size callers have arrived in the current generation
func (p *postOffice) barrier(ctx context.Context) error {
	p.mu.Lock()
	if p.isClosed() {
		p.mu.Unlock()
		return ErrClosed
	}
	gen := p.generation
	p.arrived++
	if p.arrived == p.size {
		p.arrived = 0
		p.generation++
		p.notify()
		p.mu.Unlock()
		return nil
	}

	for {
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-p.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}

		p.mu.Lock()
		if p.generation != gen {
			p.mu.Unlock()
			return nil
		}
	}
}

// pending returns the number of queued, undelivered messages
func (p *postOffice) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func (p *postOffice) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}
