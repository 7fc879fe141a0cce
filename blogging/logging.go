// Package blogging wraps a *bstore.Store, logging each call as it
// happens.
package blogging

import (
	"context"
	"log"

	"github.com/bobg/bstore"
)

// Store delegates every call to a nested *bstore.Store, logging the
// call and its outcome.
type Store struct {
	s *bstore.Store
}

// New wraps s with logging.
func New(s *bstore.Store) *Store {
	return &Store{s: s}
}

func (s *Store) Add(ctx context.Context, key string, data bstore.Source, info bstore.StreamInfo) error {
	err := s.s.Add(ctx, key, data, info)
	if err != nil {
		log.Printf("ERROR Add %s: %s", key, err)
	} else {
		log.Printf("Add %s", key)
	}
	return err
}

func (s *Store) Get(key string) (bstore.ReadStream, error) {
	rs, err := s.s.Get(key)
	if err != nil {
		log.Printf("ERROR Get %s: %s", key, err)
	} else {
		log.Printf("Get %s", key)
	}
	return rs, err
}

func (s *Store) Contains(key string) (bool, error) {
	ok, err := s.s.Contains(key)
	if err != nil {
		log.Printf("ERROR Contains %s: %s", key, err)
	} else {
		log.Printf("Contains %s: %v", key, ok)
	}
	return ok, err
}

func (s *Store) Close() error {
	err := s.s.Close()
	if err != nil {
		log.Printf("ERROR Close: %s", err)
	} else {
		log.Printf("Close")
	}
	return err
}
