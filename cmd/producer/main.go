// Command producer reads an input file and streams it across the
// shared-memory channel described by spec.md, compressing each block
// in flight before handing it to the consumer.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikiet/shmxfer/internal/config"
	"github.com/nikiet/shmxfer/internal/producer"
	"github.com/nikiet/shmxfer/internal/shm"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: producer <input-file-path>")
	}
	inputPath := os.Args[1]

	cfg, err := config.Load("config.toml")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatalf("read %s: %v", inputPath, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	region, err := shm.Create(cfg.ShmName)
	if err != nil {
		log.Fatalf("shm: %v", err)
	}
	defer region.Close()
	log.Printf("producer: shared region /dev/shm/%s (%d bytes)", cfg.ShmName, shm.RegionSize)

	ch := shm.NewChannel(region, shm.RoleProducer)
	pipeline := producer.NewPipeline(ch, cfg.Workers)

	log.Printf("producer: sending %s (%d bytes)", inputPath, len(input))
	if err := pipeline.Run(ctx, input); err != nil {
		log.Fatalf("producer: %v", err)
	}
	log.Printf("producer: done")
}
