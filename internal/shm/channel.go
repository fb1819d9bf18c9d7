package shm

import (
	"context"
	"fmt"
	"time"
)

// Fragment is a single slot exchange: up to MaxPayload bytes of one
// compressed block, tagged with its position in the block.
type Fragment struct {
	BlockID      uint32
	FragmentSeq  uint32
	LastFragment bool
	Payload      []byte // length <= MaxPayload
}

// Role selects the backoff strategy used while waiting on the slot.
// The asymmetry (producer yields only, consumer sleeps briefly)
// is the reference design's behavior, preserved deliberately rather
// than unified.
type Role int

const (
	RoleProducer Role = iota
	RoleConsumer
)

// consumerPollInterval is the short fixed interval the consumer sleeps
// for while the slot is empty, avoiding pathological CPU use.
const consumerPollInterval = time.Millisecond

// Channel is the producer/consumer view of a Region: it adds the
// waiting loops described in spec.md §4.C/§4.D on top of Region's bare
// lock/unlock and field accessors.
type Channel struct {
	region *Region
	role   Role
}

// NewChannel wraps a Region for use by the given role.
func NewChannel(region *Region, role Role) *Channel {
	return &Channel{region: region, role: role}
}

func (c *Channel) backoff() {
	if c.role == RoleConsumer {
		time.Sleep(consumerPollInterval)
		return
	}
	// RoleProducer: yield without sleeping (spec.md §4.C, §5).
	yieldOnly()
}

// Send waits for the slot to be free, writes the fragment, and marks
// it available. It blocks until either the write completes or ctx is
// done.
func (c *Channel) Send(ctx context.Context, f Fragment) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("shm: fragment payload %d exceeds MaxPayload %d", len(f.Payload), MaxPayload)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		free := false
		c.region.WithLock(func() {
			if c.region.messageAvailable() == 0 {
				c.region.setBlockID(f.BlockID)
				c.region.setFragmentSeq(f.FragmentSeq)
				c.region.setLastFragment(f.LastFragment)
				c.region.setPayloadLen(uint32(len(f.Payload)))
				copy(c.region.payload(), f.Payload)
				c.region.setMessageAvailable(1)
				free = true
			}
		})
		if free {
			return nil
		}
		c.backoff()
	}
}

// Receive waits for a fragment to be available, copies it out, clears
// the slot, and returns it. It blocks until either a fragment arrives
// or ctx is done.
func (c *Channel) Receive(ctx context.Context) (Fragment, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Fragment{}, err
		}
		var f Fragment
		got := false
		var protoErr error
		c.region.WithLock(func() {
			if c.region.messageAvailable() != 1 {
				return
			}
			n := c.region.payloadLen()
			if n > MaxPayload {
				// Protocol violation: logged and aborted per spec.md §7,
				// not panicked — this must stay an ordinary error the
				// caller (ultimately main) can report and exit on.
				protoErr = fmt.Errorf("shm: payload_len %d exceeds MaxPayload %d", n, MaxPayload)
				c.region.setMessageAvailable(0)
				return
			}
			f.BlockID = c.region.blockID()
			f.FragmentSeq = c.region.fragmentSeq()
			f.LastFragment = c.region.lastFragment()
			f.Payload = append([]byte(nil), c.region.payload()[:n]...)
			c.region.setMessageAvailable(0)
			got = true
		})
		if protoErr != nil {
			return Fragment{}, protoErr
		}
		if got {
			return f, nil
		}
		c.backoff()
	}
}
