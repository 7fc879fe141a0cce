package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/bstore"
)

// bench drives P concurrent producers, each adding N distinct keys of
// a given size, and reports elapsed time and throughput. It exercises
// the same concurrency path as the store's property tests, at a
// scale a caller controls from the command line.
func (c maincmd) bench(ctx context.Context, fs *flag.FlagSet, args []string) error {
	producers := fs.Int("producers", 8, "concurrent producer count")
	perProducer := fs.Int("per-producer", 1000, "keys added per producer")
	size := fs.Int("size", 4096, "bytes per stream")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	start := time.Now()

	var eg errgroup.Group
	for p := 0; p < *producers; p++ {
		p := p
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(int64(p) + 1))
			for i := 0; i < *perProducer; i++ {
				key := fmt.Sprintf("bench-%d-%d-%d", start.UnixNano(), p, i)
				data := make([]byte, *size)
				rng.Read(data)
				if err := c.s.Add(ctx, key, bstore.NewBytesSource(data), bstore.StreamInfo{}); err != nil {
					return errors.Wrapf(err, "adding %s", key)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	total := int64(*producers) * int64(*perProducer) * int64(*size)
	fmt.Printf("%d producers x %d keys x %d bytes = %d bytes in %s (%.1f MiB/s)\n",
		*producers, *perProducer, *size, total, elapsed, float64(total)/elapsed.Seconds()/(1<<20))
	return nil
}
