package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/pkg/errors"
)

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("missing key")
	}
	key := fs.Arg(0)

	rs, err := c.s.Get(key)
	if err != nil {
		return errors.Wrapf(err, "getting key %s", key)
	}
	defer rs.Close()

	_, err = io.Copy(os.Stdout, rs)
	return errors.Wrap(err, "writing to stdout")
}
