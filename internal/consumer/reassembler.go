// Package consumer implements the consumer side of the channel:
// reassembling fragments into compressed blocks (spec.md §4.D) and
// the parallel-decompression fan-in with in-order commit that follows
// (spec.md §4.E).
package consumer

import (
	"context"

	"github.com/nikiet/shmxfer/internal/shm"
)

// completedBlock is a fully reassembled compressed block, or the
// end-of-stream signal.
type completedBlock struct {
	blockID  uint32
	data     []byte
	sentinel bool
}

// Reassembler turns the fragment stream back into compressed blocks.
// It owns the assembly table described in spec.md §3 and is only ever
// touched by the single goroutine that calls Next.
type Reassembler struct {
	ch       *shm.Channel
	assembly map[uint32][]byte
}

// NewReassembler wraps a consumer-role Channel.
func NewReassembler(ch *shm.Channel) *Reassembler {
	return &Reassembler{ch: ch, assembly: make(map[uint32][]byte)}
}

// Next blocks until either a block has finished reassembling or the
// end-of-stream sentinel arrives, per the per-frame algorithm in
// spec.md §4.D.
func (r *Reassembler) Next(ctx context.Context) (completedBlock, error) {
	for {
		f, err := r.ch.Receive(ctx)
		if err != nil {
			return completedBlock{}, err
		}

		if f.BlockID == shm.SentinelBlockID {
			return completedBlock{sentinel: true}, nil
		}

		if f.BlockID == 0 && f.LastFragment && len(f.Payload) == 0 && r.assembly[0] == nil {
			// Empty-file marker: install an empty assembled buffer for
			// block 0 rather than treating it as a normal fragment.
			r.assembly[0] = []byte{}
		} else {
			r.assembly[f.BlockID] = append(r.assembly[f.BlockID], f.Payload...)
		}

		if f.LastFragment {
			data := r.assembly[f.BlockID]
			if data == nil {
				data = []byte{}
			}
			delete(r.assembly, f.BlockID)
			return completedBlock{blockID: f.BlockID, data: data}, nil
		}
	}
}
