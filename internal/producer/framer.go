// Package producer implements the producer side of the channel:
// splitting compressed blocks into ordered fragments (the Framer,
// spec.md §4.C) and the parallel-compression fan-out that feeds it
// (spec.md §4.E).
package producer

import (
	"context"

	"github.com/nikiet/shmxfer/internal/shm"
)

// Framer transmits compressed blocks as fragment sequences over a
// Channel, and emits the empty-file marker and end-of-stream sentinel.
type Framer struct {
	ch *shm.Channel
}

// NewFramer wraps a producer-role Channel.
func NewFramer(ch *shm.Channel) *Framer {
	return &Framer{ch: ch}
}

// SendBlock transmits one compressed block as a sequence of
// MaxPayload-bounded fragments, waiting for the consumer to
// acknowledge each one before sending the next (spec.md §4.C step 3).
// blocks must be sent in strictly increasing blockID order by the
// caller; SendBlock itself does not track ordering across calls.
func (f *Framer) SendBlock(ctx context.Context, blockID uint32, compressed []byte) error {
	off := 0
	seq := uint32(0)
	for {
		end := off + shm.MaxPayload
		if end > len(compressed) {
			end = len(compressed)
		}
		last := end >= len(compressed)
		frag := shm.Fragment{
			BlockID:      blockID,
			FragmentSeq:  seq,
			LastFragment: last,
			Payload:      compressed[off:end],
		}
		if err := f.ch.Send(ctx, frag); err != nil {
			return err
		}
		off = end
		seq++
		if last {
			return nil
		}
	}
}

// SendEmptyMarker sends the unique empty-file frame (block_id=0,
// fragment_seq=0, last_fragment=1, payload_len=0), used in place of
// any data blocks when the input file has size 0 (spec.md §3
// invariant 5, §4.F).
func (f *Framer) SendEmptyMarker(ctx context.Context) error {
	return f.ch.Send(ctx, shm.Fragment{BlockID: 0, FragmentSeq: 0, LastFragment: true, Payload: nil})
}

// SendSentinel sends the end-of-stream frame. It must be the last
// frame the producer sends (spec.md §3 invariant 4, §4.F).
func (f *Framer) SendSentinel(ctx context.Context) error {
	return f.ch.Send(ctx, shm.Fragment{BlockID: shm.SentinelBlockID, FragmentSeq: 0, LastFragment: true, Payload: nil})
}
