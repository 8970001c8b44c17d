package main

import (
	"fmt"

	"go.uber.org/multierr"
)

type closer struct {
	name string
	fn   func() error
}

// closers releases resources in reverse registration order and reports every
// failure together.
type closers []closer

func (c *closers) add(name string, fn func() error) {
	*c = append(*c, closer{name: name, fn: fn})
}

func (c closers) closeAll() error {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if cerr := c[i].fn(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c[i].name, cerr))
		}
	}
	return err
}
