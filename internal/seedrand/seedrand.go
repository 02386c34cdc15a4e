// Package seedrand derives reproducible random sources from string seeds.
//
// Seeded environments (demos, fixtures, tests) pass a seed string and get the
// same selections and answer orders on every run; production uses Global.
package seedrand

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"sync"
)

// Source is what the selection engine draws from. *rand.Rand satisfies it.
type Source interface {
	Shuffle(n int, swap func(i, j int))
	IntN(n int) int
}

// New returns a generator whose sequence depends only on seed.
func New(seed string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	s1 := h.Sum64()
	_, _ = h.Write([]byte{0x9e, 0x37, 0x79, 0xb9})
	s2 := h.Sum64()
	return rand.New(rand.NewPCG(s1, s2))
}

// Derive builds a sub-seed, e.g. one per participant of a seeded session.
func Derive(seed string, parts ...string) string {
	if len(parts) == 0 {
		return seed
	}
	return seed + "/" + strings.Join(parts, "/")
}

type locked struct {
	mu sync.Mutex
	r  Source
}

// Locked makes r safe for concurrent use.
func Locked(r Source) Source {
	return &locked{r: r}
}

func (l *locked) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

func (l *locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

type global struct{}

func (global) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }
func (global) IntN(n int) int                     { return rand.IntN(n) }

// Global is the process-wide source; it is safe for concurrent use and unseeded.
func Global() Source { return global{} }

// codeAlphabet leaves out characters that are easy to misread (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Code returns an n character access code drawn from r.
func Code(r Source, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[r.IntN(len(codeAlphabet))]
	}
	return string(b)
}
