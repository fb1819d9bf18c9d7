package producer

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nikiet/shmxfer/internal/codec"
	"github.com/nikiet/shmxfer/internal/shm"
)

// Pipeline drives the full producer side: it fans out per-block
// compression across a bounded worker pool (spec.md §4.E) and hands
// results to a Framer in strict block_id order.
type Pipeline struct {
	framer  *Framer
	workers int64
}

// NewPipeline builds a producer pipeline. workers <= 0 defaults to
// the host's hardware parallelism, per spec.md §4.E.
func NewPipeline(ch *shm.Channel, workers int) *Pipeline {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{framer: NewFramer(ch), workers: int64(workers)}
}

// Run streams input across the channel: it splits input into
// UNCOMPRESSED_BLOCK_SIZE blocks, compresses them in parallel, frames
// each in block_id order, and finally sends the end-of-stream
// sentinel. An empty input sends the empty-file marker instead of any
// data blocks (spec.md §4.F).
func (p *Pipeline) Run(ctx context.Context, input []byte) error {
	blocks := splitBlocks(input)

	if len(blocks) == 0 {
		if err := p.framer.SendEmptyMarker(ctx); err != nil {
			return fmt.Errorf("producer: send empty marker: %w", err)
		}
	} else {
		if err := p.compressAndFrame(ctx, blocks); err != nil {
			return err
		}
	}

	if err := p.framer.SendSentinel(ctx); err != nil {
		return fmt.Errorf("producer: send sentinel: %w", err)
	}
	return nil
}

func splitBlocks(input []byte) [][]byte {
	if len(input) == 0 {
		return nil
	}
	n := (len(input) + shm.BlockSize - 1) / shm.BlockSize
	blocks := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * shm.BlockSize
		end := start + shm.BlockSize
		if end > len(input) {
			end = len(input)
		}
		blocks[i] = input[start:end]
	}
	return blocks
}

// compressAndFrame launches one compression task per block, bounded
// by the worker semaphore, then frames them in ascending block_id
// order — compression may finish out of order, framing never does
// (spec.md §4.C, §4.E).
func (p *Pipeline) compressAndFrame(ctx context.Context, blocks [][]byte) error {
	results := make([]chan []byte, len(blocks))
	for i := range results {
		results[i] = make(chan []byte, 1)
	}

	sem := semaphore.NewWeighted(p.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, block := range blocks {
		i, block := i, block
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			results[i] <- codec.Compress(block)
			return nil
		})
	}

	var totalCompressed, totalOriginal int
	for i, block := range blocks {
		totalOriginal += len(block)
		select {
		case compressed := <-results[i]:
			totalCompressed += len(compressed)
			if err := p.framer.SendBlock(ctx, uint32(i), compressed); err != nil {
				return fmt.Errorf("producer: send block %d: %w", i, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("producer: compression worker: %w", err)
	}
	if totalOriginal > 0 {
		log.Printf("producer: sent %d blocks, %d -> %d bytes", len(blocks), totalOriginal, totalCompressed)
	}
	return nil
}
