// Command consumer attaches to the shared-memory channel described by
// spec.md, reassembles and decompresses blocks in order, and writes
// the result to an output file. It owns teardown: once the producer's
// end-of-stream sentinel arrives, the consumer unlinks the shared
// memory object.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikiet/shmxfer/internal/config"
	"github.com/nikiet/shmxfer/internal/consumer"
	"github.com/nikiet/shmxfer/internal/shm"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: consumer <output-file-path>")
	}
	outputPath := os.Args[1]

	cfg, err := config.Load("config.toml")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	region, err := shm.Open(cfg.ShmName)
	if err != nil {
		log.Fatalf("shm: %v", err)
	}
	log.Printf("consumer: shared region /dev/shm/%s (%d bytes)", cfg.ShmName, shm.RegionSize)

	out, err := os.Create(outputPath)
	if err != nil {
		region.Close()
		log.Fatalf("create %s: %v", outputPath, err)
	}

	ch := shm.NewChannel(region, shm.RoleConsumer)
	pipeline := consumer.NewPipeline(ch, cfg.Workers)
	pipeline.SkipOnDecompressFailure = cfg.SkipOnDecompressFailure

	log.Printf("consumer: writing to %s", outputPath)
	runErr := pipeline.Run(ctx, out)

	closeErr := out.Close()
	unlinkErr := region.Unlink()
	mmapErr := region.Close()

	if runErr != nil {
		log.Fatalf("consumer: %v", runErr)
	}
	if closeErr != nil {
		log.Fatalf("consumer: close %s: %v", outputPath, closeErr)
	}
	if unlinkErr != nil {
		log.Printf("consumer: unlink shm: %v", unlinkErr)
	}
	if mmapErr != nil {
		log.Printf("consumer: munmap: %v", mmapErr)
	}
	log.Printf("consumer: done")
}
