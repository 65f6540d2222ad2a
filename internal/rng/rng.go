// Package rng supplies seeds and per-element random values to the random
// kernels.
//
// Values are counter based: element i of a tensor generated with seed s is a
// pure function of (s, i). Kernels may therefore split the index range into
// batches in any way and still produce the same tensor.
package rng

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
)

// SeedSource turns an optional caller seed into a concrete one. A nil seed
// asks for a fresh seed.
type SeedSource func(seed *float32) uint64

// Seeds hands out seeds for one engine. Explicit seeds are reproducible;
// unseeded requests draw from a counter private to the engine.
type Seeds struct {
	base    uint64
	counter atomic.Uint64
}

// NewSeeds creates a seed counter starting from base.
func NewSeeds(base uint64) *Seeds {
	return &Seeds{base: base}
}

// Source returns the SeedSource backed by s.
func (s *Seeds) Source() SeedSource {
	return s.Seed
}

// Seed resolves seed. The same explicit seed always yields the same value.
func (s *Seeds) Seed(seed *float32) uint64 {
	if seed != nil {
		return mix(uint64(math.Float32bits(*seed)))
	}
	return mix(s.base + s.counter.Add(1))
}

// FixedSource ignores the caller seed and always returns seed.
func FixedSource(seed uint64) SeedSource {
	return func(*float32) uint64 { return seed }
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Uniform returns element i of the uniform stream seed in [low, high).
func Uniform(seed uint64, i int, low, high float32) float32 {
	g := rand.NewPCG(seed, uint64(i))
	return scaleUnit(unit(g.Uint64()), low, high)
}

// scaleUnit maps u in [0, 1) to [low, high). Rounding to float32 may land on
// high, so the result is clamped to the largest value below it.
func scaleUnit(u, low, high float32) float32 {
	v := float32(float64(low) + (float64(high)-float64(low))*float64(u))
	if top := math.Nextafter32(high, low); high > low && v > top {
		return top
	}
	return v
}

// Normal returns element i of the normal stream seed with the given mean and
// standard deviation, by the Box-Muller transform.
func Normal(seed uint64, i int, mean, scale float32) float32 {
	g := rand.NewPCG(seed, uint64(i))
	u1 := 1 - float64(unit(g.Uint64())) // (0, 1]
	u2 := float64(unit(g.Uint64()))
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + scale*float32(z)
}

// unit maps 24 random bits to [0, 1).
func unit(x uint64) float32 {
	return float32(x>>40) / (1 << 24)
}
