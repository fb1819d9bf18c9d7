package producer

import (
	"context"
	"testing"
	"time"

	"github.com/nikiet/shmxfer/internal/shm"
)

// drainFragments runs a consumer-role receive loop in the background
// and returns the channel of fragments it collects, stopping once it
// has received want fragments.
func drainFragments(t *testing.T, ch *shm.Channel, want int) <-chan shm.Fragment {
	t.Helper()
	out := make(chan shm.Fragment, want)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := 0; i < want; i++ {
			f, err := ch.Receive(ctx)
			if err != nil {
				t.Errorf("Receive: %v", err)
				return
			}
			out <- f
		}
	}()
	return out
}

func TestFramerSendBlockFragmentSequencing(t *testing.T) {
	region := shm.NewLoopbackRegion()
	prodCh := shm.NewChannel(region, shm.RoleProducer)
	consCh := shm.NewChannel(region, shm.RoleConsumer)

	compressed := make([]byte, shm.MaxPayload*3+37)
	for i := range compressed {
		compressed[i] = byte(i)
	}
	wantFragments := 4 // 3 full + 1 partial

	received := drainFragments(t, consCh, wantFragments)

	framer := NewFramer(prodCh)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := framer.SendBlock(ctx, 9, compressed); err != nil {
		t.Fatalf("SendBlock: %v", err)
	}

	var reassembled []byte
	for i := 0; i < wantFragments; i++ {
		f := <-received
		if f.BlockID != 9 {
			t.Fatalf("fragment %d: blockID = %d, want 9", i, f.BlockID)
		}
		if int(f.FragmentSeq) != i {
			t.Fatalf("fragment %d: fragment_seq = %d, want %d", i, f.FragmentSeq, i)
		}
		if len(f.Payload) > shm.MaxPayload {
			t.Fatalf("fragment %d: payload len %d exceeds MaxPayload", i, len(f.Payload))
		}
		isLast := i == wantFragments-1
		if f.LastFragment != isLast {
			t.Fatalf("fragment %d: last_fragment = %v, want %v", i, f.LastFragment, isLast)
		}
		reassembled = append(reassembled, f.Payload...)
	}

	if string(reassembled) != string(compressed) {
		t.Fatalf("reassembled fragments do not match original compressed block")
	}
}

func TestFramerEmptyMarkerAndSentinel(t *testing.T) {
	region := shm.NewLoopbackRegion()
	prodCh := shm.NewChannel(region, shm.RoleProducer)
	consCh := shm.NewChannel(region, shm.RoleConsumer)

	received := drainFragments(t, consCh, 2)
	framer := NewFramer(prodCh)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := framer.SendEmptyMarker(ctx); err != nil {
		t.Fatalf("SendEmptyMarker: %v", err)
	}
	if err := framer.SendSentinel(ctx); err != nil {
		t.Fatalf("SendSentinel: %v", err)
	}

	marker := <-received
	if marker.BlockID != 0 || !marker.LastFragment || len(marker.Payload) != 0 {
		t.Fatalf("bad empty-file marker: %+v", marker)
	}
	sentinel := <-received
	if sentinel.BlockID != shm.SentinelBlockID || !sentinel.LastFragment {
		t.Fatalf("bad sentinel: %+v", sentinel)
	}
}
