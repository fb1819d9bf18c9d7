package consumer

import (
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/nikiet/shmxfer/internal/codec"
	"github.com/nikiet/shmxfer/internal/shm"
)

// pendingTask is a decompression in flight for one block.
type pendingTask struct {
	result chan decompressResult
}

type decompressResult struct {
	data []byte
	err  error
}

// Pipeline drives the full consumer side: it reassembles fragments,
// fans out decompression across a bounded worker pool, and commits
// finished blocks to the output in strict block_id order (spec.md
// §4.E).
type Pipeline struct {
	reassembler *Reassembler
	sem         *semaphore.Weighted

	// SkipOnDecompressFailure controls the Open Question of spec.md
	// §9: when a block's decompression fails (or yields empty output
	// for non-empty input), the default is to abort rather than
	// silently skip and corrupt the output.
	SkipOnDecompressFailure bool
}

// NewPipeline builds a consumer pipeline. workers <= 0 defaults to
// the host's hardware parallelism.
func NewPipeline(ch *shm.Channel, workers int) *Pipeline {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		reassembler: NewReassembler(ch),
		sem:         semaphore.NewWeighted(int64(workers)),
	}
}

// Run receives fragments until the end-of-stream sentinel, writing
// decompressed blocks to out in strict block_id order starting at 0.
func (p *Pipeline) Run(ctx context.Context, out io.Writer) error {
	tasks := make(map[uint32]pendingTask)
	nextExpected := uint32(0)
	blocksWritten := 0

	commit := func() error {
		for {
			task, ok := tasks[nextExpected]
			if !ok {
				return nil
			}
			select {
			case res := <-task.result:
				delete(tasks, nextExpected)
				if res.err != nil {
					if !p.SkipOnDecompressFailure {
						return fmt.Errorf("consumer: decompress block %d: %w", nextExpected, res.err)
					}
					log.Printf("consumer: skipping block %d after decompress failure: %v", nextExpected, res.err)
				} else {
					// res.data may legitimately be empty (the
					// empty-file marker's block 0): a zero-length
					// Write is a no-op but the block still counts.
					if _, err := out.Write(res.data); err != nil {
						return fmt.Errorf("consumer: write block %d: %w", nextExpected, err)
					}
					if f, ok := out.(interface{ Sync() error }); ok {
						_ = f.Sync()
					}
				}
				blocksWritten++
				nextExpected++
			default:
				return nil
			}
		}
	}

	for {
		block, err := p.reassembler.Next(ctx)
		if err != nil {
			return fmt.Errorf("consumer: receive: %w", err)
		}
		if block.sentinel {
			break
		}
		t := pendingTask{result: make(chan decompressResult, 1)}
		tasks[block.blockID] = t
		go p.decompress(ctx, block.data, t.result)

		if err := commit(); err != nil {
			return err
		}
	}

	// Drain remaining tasks in ascending block_id order (spec.md §4.E).
	remaining := make([]uint32, 0, len(tasks))
	for id := range tasks {
		remaining = append(remaining, id)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })
	for _, id := range remaining {
		res := <-tasks[id].result
		if res.err != nil {
			if !p.SkipOnDecompressFailure {
				return fmt.Errorf("consumer: decompress block %d: %w", id, res.err)
			}
			log.Printf("consumer: skipping block %d after decompress failure: %v", id, res.err)
			continue
		}
		if _, err := out.Write(res.data); err != nil {
			return fmt.Errorf("consumer: write block %d: %w", id, err)
		}
		blocksWritten++
	}

	log.Printf("consumer: committed %d blocks", blocksWritten)
	return nil
}

func (p *Pipeline) decompress(ctx context.Context, compressed []byte, result chan<- decompressResult) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		result <- decompressResult{err: err}
		return
	}
	defer p.sem.Release(1)

	if len(compressed) == 0 {
		result <- decompressResult{data: []byte{}}
		return
	}
	data, err := codec.Decompress(compressed)
	if err == nil && len(data) == 0 {
		// Empty output for non-empty compressed input: the source's
		// ambiguous "intentional tolerance or latent bug" case
		// (spec.md §9). Treated uniformly with a real decode error so
		// SkipOnDecompressFailure governs both.
		err = fmt.Errorf("decompression yielded empty output for %d-byte input", len(compressed))
	}
	if err != nil {
		result <- decompressResult{err: err}
		return
	}
	result <- decompressResult{data: data}
}
