/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package outcome

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// RandomSource produces a uniformly random permutation of [0, n).
type RandomSource interface {
	Perm(n int) []int
}

// Source is a seeded, goroutine-safe RandomSource.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a reproducible source; equal seeds yield equal draws.
func NewSource(seed uint64) *Source {
	return &Source{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// NewRandomSource returns a source seeded from crypto/rand.
func NewRandomSource() (*Source, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}

	return NewSource(seed), nil
}

// NewSeed reads a seed from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return binary.LittleEndian.Uint64(b[:]), nil
}

// Perm returns nil on a nil Source, which draw reports as a bad permutation.
func (s *Source) Perm(n int) []int {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rng.Perm(n)
}

// FixedPerm always returns the same permutation. Missing indices are appended
// in ascending order, so FixedPerm(nil) is the identity.
type FixedPerm []int

func (f FixedPerm) Perm(n int) []int {
	out := make([]int, 0, n)
	seen := make([]bool, n)

	for _, idx := range f {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}

		seen[idx] = true
		out = append(out, idx)
	}

	for idx := range n {
		if !seen[idx] {
			out = append(out, idx)
		}
	}

	return out
}

// draw asks src for a permutation and checks it before anything indexes with it.
func draw(src RandomSource, n int) ([]int, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source", ErrBadPermutation)
	}

	perm := src.Perm(n)
	if len(perm) != n {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrBadPermutation, len(perm), n)
	}

	seen := make([]bool, n)
	for _, idx := range perm {
		if idx < 0 || idx >= n || seen[idx] {
			return nil, fmt.Errorf("%w: %v", ErrBadPermutation, perm)
		}

		seen[idx] = true
	}

	return perm, nil
}
