package conflict

import "github.com/agenthands/graphdiff/internal/core/model"

// coords are the logical coordinates a conflict's identity is derived from.
type coords struct {
	base  string
	diff  string
	node  string
	parts []string
}

func (c coords) with(parts ...string) coords {
	next := c
	next.parts = append(append([]string(nil), c.parts...), parts...)
	return next
}

func (c coords) id() string {
	return model.ConflictUUID(append([]string{c.base, c.diff, c.node}, c.parts...)...)
}
