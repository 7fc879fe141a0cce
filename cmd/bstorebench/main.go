// Command bstorebench is a CLI for driving and benchmarking a bstore
// working folder.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	"github.com/bobg/bstore"
)

type maincmd struct {
	s *bstore.Store
}

func main() {
	folder := flag.String("folder", "", "working folder (created if absent)")
	threshold := flag.Int64("compression-threshold", 0, "compression threshold in bytes (0 disables the gate)")
	blockSize := flag.Int("block-size", 0, "staging ring block size in bytes (0 selects the default)")
	flag.Parse()

	if *folder == "" {
		log.Fatal("-folder is required")
	}

	s, err := bstore.Open(bstore.Config{
		WorkingFolder:        *folder,
		CompressionThreshold: *threshold,
		BlockSize:            *blockSize,
	})
	if err != nil {
		log.Fatalf("opening store at %s: %s", *folder, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("closing store: %s", err)
		}
	}()

	ctx := context.Background()
	if err := subcmd.Run(ctx, maincmd{s: s}, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"add":      {F: c.add},
		"get":      {F: c.get},
		"contains": {F: c.contains},
		"bench":    {F: c.bench},
	}
}
