package events

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/psantana5/eventtimings/pkg/models"
)

// Wire format, version 1, big-endian. Every event travels as a fixed-size
// header record followed by a payload record carrying its tags and
// transitions. Both start with magic, version, kind and the event's sequence
// number in the sender's send order.
const (
	wireMagic   uint16 = 0x4554 // "ET"
	wireVersion uint8  = 1

	kindHeader  uint8 = 1
	kindPayload uint8 = 2

	// MaxNameLength bounds event names on the wire
	MaxNameLength = 255

	prefixSize     = 8
	headerSize     = prefixSize + 4 + 2 + MaxNameLength + 4*8 + 4 + 4
	tagSize        = 8
	transitionSize = 1 + 8
)

// Message tags used by the collection
const (
	TagHeader  = 1
	TagPayload = 2
)

var (
	// ErrNameTooLong is returned when an event name exceeds MaxNameLength bytes
	ErrNameTooLong = errors.New("event name too long")
	// ErrProtocol is returned for a malformed or mismatched wire record
	ErrProtocol = errors.New("collection protocol violation")
)

// header is the fixed-size summary of one event
type header struct {
	seq      uint32
	rank     int32
	name     string
	count    int64
	totalMs  int64
	minMs    int64
	maxMs    int64
	dataLen  uint32
	transLen uint32
}

func newHeader(seq int, stat *models.EventStatistic) (header, error) {
	if len(stat.Name) > MaxNameLength {
		return header{}, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrNameTooLong, stat.Name, len(stat.Name), MaxNameLength)
	}
	return header{
		seq:      uint32(seq),
		rank:     int32(stat.Rank),
		name:     stat.Name,
		count:    stat.Count,
		totalMs:  stat.TotalMs(),
		minMs:    stat.MinMs(),
		maxMs:    stat.MaxMs(),
		dataLen:  uint32(len(stat.Data)),
		transLen: uint32(len(stat.Transitions)),
	}, nil
}

// payloadSize returns the byte length of the payload record h announces
func (h header) payloadSize() int {
	return prefixSize + int(h.dataLen)*tagSize + int(h.transLen)*transitionSize
}

func putPrefix(buf []byte, kind uint8, seq uint32) {
	binary.BigEndian.PutUint16(buf[0:], wireMagic)
	buf[2] = wireVersion
	buf[3] = kind
	binary.BigEndian.PutUint32(buf[4:], seq)
}

func readPrefix(buf []byte, kind uint8) (uint32, error) {
	if len(buf) < prefixSize {
		return 0, fmt.Errorf("%w: record of %d bytes", ErrProtocol, len(buf))
	}
	if m := binary.BigEndian.Uint16(buf[0:]); m != wireMagic {
		return 0, fmt.Errorf("%w: bad magic %#04x", ErrProtocol, m)
	}
	if v := buf[2]; v != wireVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrProtocol, v)
	}
	if k := buf[3]; k != kind {
		return 0, fmt.Errorf("%w: record kind %d, expected %d", ErrProtocol, k, kind)
	}
	return binary.BigEndian.Uint32(buf[4:]), nil
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	putPrefix(buf, kindHeader, h.seq)
	binary.BigEndian.PutUint32(buf[8:], uint32(h.rank))
	binary.BigEndian.PutUint16(buf[12:], uint16(len(h.name)))
	copy(buf[14:14+MaxNameLength], h.name)

	off := 14 + MaxNameLength
	for _, v := range []int64{h.count, h.totalMs, h.minMs, h.maxMs} {
		binary.BigEndian.PutUint64(buf[off:], uint64(v))
		off += 8
	}
	binary.BigEndian.PutUint32(buf[off:], h.dataLen)
	binary.BigEndian.PutUint32(buf[off+4:], h.transLen)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) != headerSize {
		return header{}, fmt.Errorf("%w: header of %d bytes, expected %d", ErrProtocol, len(buf), headerSize)
	}
	seq, err := readPrefix(buf, kindHeader)
	if err != nil {
		return header{}, err
	}

	nameLen := int(binary.BigEndian.Uint16(buf[12:]))
	if nameLen > MaxNameLength {
		return header{}, fmt.Errorf("%w: name length %d", ErrProtocol, nameLen)
	}

	off := 14 + MaxNameLength
	h := header{
		seq:  seq,
		rank: int32(binary.BigEndian.Uint32(buf[8:])),
		name: string(buf[14 : 14+nameLen]),
	}
	for _, v := range []*int64{&h.count, &h.totalMs, &h.minMs, &h.maxMs} {
		*v = int64(binary.BigEndian.Uint64(buf[off:]))
		off += 8
	}
	h.dataLen = binary.BigEndian.Uint32(buf[off:])
	h.transLen = binary.BigEndian.Uint32(buf[off+4:])
	return h, nil
}

func encodePayload(seq uint32, tags []int64, transitions []models.Transition) []byte {
	buf := make([]byte, prefixSize+len(tags)*tagSize+len(transitions)*transitionSize)
	putPrefix(buf, kindPayload, seq)

	off := prefixSize
	for _, tag := range tags {
		binary.BigEndian.PutUint64(buf[off:], uint64(tag))
		off += tagSize
	}
	for _, tr := range transitions {
		buf[off] = uint8(tr.State)
		binary.BigEndian.PutUint64(buf[off+1:], uint64(tr.At.UnixNano()))
		off += transitionSize
	}
	return buf
}

// decodePayload splits a payload record back into tags and transitions using
// the lengths h announced
func decodePayload(h header, buf []byte) ([]int64, []models.Transition, error) {
	seq, err := readPrefix(buf, kindPayload)
	if err != nil {
		return nil, nil, err
	}
	if seq != h.seq {
		return nil, nil, fmt.Errorf("%w: payload seq %d does not match header seq %d", ErrProtocol, seq, h.seq)
	}
	if len(buf) != h.payloadSize() {
		return nil, nil, fmt.Errorf("%w: payload of %d bytes, header announces %d", ErrProtocol, len(buf), h.payloadSize())
	}

	off := prefixSize
	var tags []int64
	if h.dataLen > 0 {
		tags = make([]int64, h.dataLen)
		for i := range tags {
			tags[i] = int64(binary.BigEndian.Uint64(buf[off:]))
			off += tagSize
		}
	}

	var transitions []models.Transition
	if h.transLen > 0 {
		transitions = make([]models.Transition, h.transLen)
		for i := range transitions {
			state := models.TimerState(buf[off])
			if !state.Valid() {
				return nil, nil, fmt.Errorf("%w: unknown timer state %d", ErrProtocol, buf[off])
			}
			transitions[i] = models.Transition{
				State: state,
				At:    time.Unix(0, int64(binary.BigEndian.Uint64(buf[off+1:]))),
			}
			off += transitionSize
		}
	}
	return tags, transitions, nil
}

// statistic rebuilds the per-rank statistic from a decoded header and payload
func (h header) statistic(tags []int64, transitions []models.Transition) *models.EventStatistic {
	return &models.EventStatistic{
		Name:        h.name,
		Rank:        int(h.rank),
		Count:       h.count,
		Total:       time.Duration(h.totalMs) * time.Millisecond,
		Min:         time.Duration(h.minMs) * time.Millisecond,
		Max:         time.Duration(h.maxMs) * time.Millisecond,
		Data:        tags,
		Transitions: transitions,
	}
}
