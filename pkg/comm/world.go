package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// World is an in-process set of ranks sharing one post office. Each rank is
// expected to be driven by its own goroutine.
type World struct {
	po *postOffice
}

// NewWorld creates a world with size ranks
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("world size must be at least 1, got %d", size)
	}
	return &World{po: newPostOffice(size)}, nil
}

// Size returns the number of ranks
func (w *World) Size() int {
	return w.po.size
}

// Comm returns the communicator of rank
func (w *World) Comm(rank int) (Communicator, error) {
	if err := checkRank(rank, w.po.size); err != nil {
		return nil, err
	}
	return &localComm{rank: rank, po: w.po}, nil
}

// Run drives fn once per rank, each in its own goroutine, and returns the
// first error. A failing rank closes the world so blocked peers return ErrClosed
// instead of hanging.
func (w *World) Run(fn func(c Communicator) error) error {
	var g errgroup.Group
	for rank := 0; rank < w.po.size; rank++ {
		c := &localComm{rank: rank, po: w.po}
		g.Go(func() error {
			if err := fn(c); err != nil {
				w.Close()
				return fmt.Errorf("rank %d: %w", c.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Pending returns the number of sent but not yet received messages
func (w *World) Pending() int {
	return w.po.pending()
}

// Close unblocks every waiting operation with ErrClosed
func (w *World) Close() {
	w.po.close()
}

type localComm struct {
	rank int
	po   *postOffice
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.po.size }

func (c *localComm) Barrier() error {
	return c.po.barrier(context.Background())
}

func (c *localComm) GatherInt(value int64, root int) ([]int64, error) {
	return gatherInt(c, value, root)
}

func (c *localComm) SendAsync(data []byte, dest, tag int) Request {
	m, err := c.po.post(route{dest: dest, source: c.rank, tag: tag}, data)
	if err != nil {
		return failedRequest{err: err}
	}
	return &localRequest{m: m, po: c.po}
}

func (c *localComm) Probe(source, tag int) (int, error) {
	m, err := c.po.peek(context.Background(), route{dest: c.rank, source: source, tag: tag})
	if err != nil {
		return 0, err
	}
	return len(m.data), nil
}

func (c *localComm) Recv(buf []byte, source, tag int) (int, error) {
	r := route{dest: c.rank, source: source, tag: tag}
	m, err := c.po.peek(context.Background(), r)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(m.data) {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrTruncated, len(buf), len(m.data))
	}

	m, err = c.po.take(context.Background(), r)
	if err != nil {
		return 0, err
	}
	return copy(buf, m.data), nil
}

type localRequest struct {
	m  *message
	po *postOffice
}

func (r *localRequest) Wait() error {
	return r.po.awaitMessage(context.Background(), r.m)
}
