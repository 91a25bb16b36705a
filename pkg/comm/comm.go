// Package comm provides the message-passing substrate the event collection
// runs on: barrier, gather of scalars, asynchronous point-to-point sends,
// size probes and receives between a fixed set of ranks.
package comm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// TagGather is reserved for GatherInt. User tags must be non-negative.
const TagGather = -1

var (
	ErrClosed      = errors.New("communicator closed")
	ErrInvalidRank = errors.New("invalid rank")
	ErrTruncated   = errors.New("receive buffer too small")
)

// Request is an outstanding asynchronous send
type Request interface {
	// Wait blocks until the destination has received the message
	Wait() error
}

// Communicator is one rank's view of the world.
//
// Messages from one source to one destination carrying the same tag are
// delivered in the order they were sent.
type Communicator interface {
	Rank() int
	Size() int

	// Barrier blocks until every rank has entered it
	Barrier() error

	// GatherInt collects one value per rank at root, ordered by rank.
	// Non-root ranks get a nil slice.
	GatherInt(value int64, root int) ([]int64, error)

	// SendAsync queues data for dest and returns without waiting for the receiver
	SendAsync(data []byte, dest, tag int) Request

	// Probe blocks until a message from source with tag is available and
	// returns its length in bytes
	Probe(source, tag int) (int, error)

	// Recv blocks until a message from source with tag is available and
	// copies it into buf
	Recv(buf []byte, source, tag int) (int, error)
}

// WaitAll waits for every request and combines their errors
func WaitAll(reqs []Request) error {
	var err error
	for _, r := range reqs {
		err = multierr.Append(err, r.Wait())
	}
	return err
}

// gatherInt implements GatherInt on top of point-to-point messages
func gatherInt(c Communicator, value int64, root int) ([]int64, error) {
	if err := checkRank(root, c.Size()); err != nil {
		return nil, err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	req := c.SendAsync(buf, root, TagGather)

	var values []int64
	if c.Rank() == root {
		values = make([]int64, c.Size())
		in := make([]byte, 8)
		for src := 0; src < c.Size(); src++ {
			n, err := c.Recv(in, src, TagGather)
			if err != nil {
				return nil, fmt.Errorf("gather from rank %d: %w", src, err)
			}
			if n != 8 {
				return nil, fmt.Errorf("gather from rank %d: unexpected %d bytes", src, n)
			}
			values[src] = int64(binary.BigEndian.Uint64(in))
		}
	}

	if err := req.Wait(); err != nil {
		return nil, fmt.Errorf("gather send: %w", err)
	}
	return values, nil
}

func checkRank(rank, size int) error {
	if rank < 0 || rank >= size {
		return fmt.Errorf("%w: %d (size %d)", ErrInvalidRank, rank, size)
	}
	return nil
}

// failedRequest is a request that failed before it was queued
type failedRequest struct{ err error }

func (r failedRequest) Wait() error { return r.err }
