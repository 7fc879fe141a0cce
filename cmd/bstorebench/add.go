package main

import (
	"context"
	"flag"
	"io/ioutil"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/bstore"
)

func (c maincmd) add(ctx context.Context, fs *flag.FlagSet, args []string) error {
	key := fs.String("key", "", "key to add under")
	compress := fs.Bool("compress", false, "request compression")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *key == "" {
		return errors.New("-key is required")
	}

	data, err := ioutil.ReadAll(os.Stdin)
	if err != nil {
		return errors.Wrap(err, "reading stdin")
	}

	info := bstore.StreamInfo{Compressed: *compress}
	err = c.s.Add(ctx, *key, bstore.NewBytesSource(data), info)
	if err != nil {
		return errors.Wrapf(err, "adding key %s", *key)
	}

	log.Printf("added %s (%d bytes)", *key, len(data))
	return nil
}

func (c maincmd) contains(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing key")
	}
	key := fs.Arg(0)

	ok, err := c.s.Contains(key)
	if err != nil {
		return errors.Wrapf(err, "checking key %s", key)
	}
	log.Printf("%s: %v", key, ok)
	return nil
}
