// Package tagpool holds the set of search tags a single cover run may still
// use. A tag leaves the pool once a photo found with it has been validated,
// so no two photos of one cover share a tag.
package tagpool

import (
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
)

// ErrEmpty is returned when a tag is requested from an exhausted pool.
var ErrEmpty = errors.New("tag pool is empty")

// Pool is an owned, mutable set of tags. It is not safe for concurrent use;
// each run gets its own Pool.
type Pool struct {
	tags []string
}

// New builds a pool from a vocabulary. Entries are trimmed and duplicates
// dropped, keeping first-seen order.
func New(vocabulary []string) *Pool {
	p := &Pool{tags: make([]string, 0, len(vocabulary))}
	for _, t := range vocabulary {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(p.tags, t) {
			continue
		}
		p.tags = append(p.tags, t)
	}
	return p
}

// Pick returns a tag chosen uniformly at random. The pool is not modified.
func (p *Pool) Pick(rng *rand.Rand) (string, error) {
	if len(p.tags) == 0 {
		return "", ErrEmpty
	}
	return p.tags[rng.IntN(len(p.tags))], nil
}

// Remove deletes tag from the pool and reports whether it was present.
func (p *Pool) Remove(tag string) bool {
	i := slices.Index(p.tags, tag)
	if i < 0 {
		return false
	}
	p.tags = slices.Delete(p.tags, i, i+1)
	return true
}

func (p *Pool) Contains(tag string) bool { return slices.Contains(p.tags, tag) }

func (p *Pool) Len() int { return len(p.tags) }

// Tags returns a copy of the remaining tags.
func (p *Pool) Tags() []string { return slices.Clone(p.tags) }
