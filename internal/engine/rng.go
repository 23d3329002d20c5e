package engine

import "math/rand"

// splitmix64 is the SplitMix64 finalizer, used to derive well-separated
// stream keys from structured (seed, section, drop) inputs.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// dropSeed mixes the base seed with the section and drop indices so every
// drop consumes its own deterministic random sub-stream. A given
// (seed, section, drop) triple reproduces the same stream regardless of how
// sections are scheduled across workers.
func dropSeed(seed int64, section, drop int) int64 {
	h := splitmix64(uint64(seed))
	h = splitmix64(h ^ uint64(section))
	h = splitmix64(h ^ uint64(drop))
	return int64(h)
}

// DropRand returns the random source for one drop of one section.
func DropRand(seed int64, section, drop int) *rand.Rand {
	return rand.New(rand.NewSource(dropSeed(seed, section, drop)))
}
