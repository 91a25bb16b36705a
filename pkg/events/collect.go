package events

import (
	"fmt"

	"github.com/psantana5/eventtimings/pkg/comm"
)

// Collect ships every statistic of local to the coordinator and returns the
// merged result there. Other ranks get nil. It must be called by all ranks.
//
// Each rank announces its event count with one gather, then sends a header
// and a payload record per event. The coordinator receives ranks in order,
// probing each payload for its size before receiving it. Every rank waits for
// its own sends to be received before returning, so nothing from this
// collection is left in flight once all ranks return.
//
// Errors are not retried; a failed collection invalidates the run.
func Collect(c comm.Communicator, local *Aggregator, coordinator int) (*GlobalEvents, error) {
	if err := checkRank(coordinator, c.Size()); err != nil {
		return nil, fmt.Errorf("collect: coordinator: %w", err)
	}

	names := local.Names()
	headers := make([]header, len(names))
	for i, name := range names {
		h, err := newHeader(i, local.Get(name))
		if err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
		headers[i] = h
	}

	counts, err := c.GatherInt(int64(len(names)), coordinator)
	if err != nil {
		return nil, fmt.Errorf("collect: event count gather: %w", err)
	}

	reqs := make([]comm.Request, 0, 2*len(names))
	for i, name := range names {
		stat := local.Get(name)
		reqs = append(reqs,
			c.SendAsync(encodeHeader(headers[i]), coordinator, TagHeader),
			c.SendAsync(encodePayload(headers[i].seq, stat.Data, stat.Transitions), coordinator, TagPayload),
		)
	}

	var global *GlobalEvents
	if c.Rank() == coordinator {
		global, err = receiveAll(c, counts)
		if err != nil {
			return nil, fmt.Errorf("collect: %w", err)
		}
	}

	if err := comm.WaitAll(reqs); err != nil {
		return nil, fmt.Errorf("collect: drain: %w", err)
	}
	return global, nil
}

// receiveAll runs the coordinator's receive loop over the announced counts
func receiveAll(c comm.Communicator, counts []int64) (*GlobalEvents, error) {
	global := newGlobalEvents(c.Size())
	hbuf := make([]byte, headerSize)

	for src, count := range counts {
		for i := int64(0); i < count; i++ {
			n, err := c.Recv(hbuf, src, TagHeader)
			if err != nil {
				return nil, fmt.Errorf("header %d from rank %d: %w", i, src, err)
			}
			h, err := decodeHeader(hbuf[:n])
			if err != nil {
				return nil, fmt.Errorf("header %d from rank %d: %w", i, src, err)
			}
			if int(h.rank) != src || int64(h.seq) != i {
				return nil, fmt.Errorf("%w: rank %d sent header rank=%d seq=%d, expected seq %d",
					ErrProtocol, src, h.rank, h.seq, i)
			}

			size, err := c.Probe(src, TagPayload)
			if err != nil {
				return nil, fmt.Errorf("payload probe %d from rank %d: %w", i, src, err)
			}
			pbuf := make([]byte, size)
			n, err = c.Recv(pbuf, src, TagPayload)
			if err != nil {
				return nil, fmt.Errorf("payload %d from rank %d: %w", i, src, err)
			}

			tags, transitions, err := decodePayload(h, pbuf[:n])
			if err != nil {
				return nil, fmt.Errorf("payload %d (%s) from rank %d: %w", i, h.name, src, err)
			}
			global.add(h.statistic(tags, transitions))
		}
	}
	return global, nil
}
