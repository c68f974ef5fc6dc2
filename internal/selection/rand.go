package selection

import (
	"hash/fnv"
	"math/rand/v2"
)

// NewRand returns the per-request generator used for every shuffle of one
// selection. The same seed always yields the same sequence.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// SeedFor derives a stable, non-zero seed from a session id
func SeedFor(sessionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	seed := int64(h.Sum64() >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// shuffled returns a copy of cands sorted by id and then permuted by rng, so
// the result only depends on the set and the seed
func shuffled(cands []Candidate, rng *rand.Rand) []Candidate {
	out := append([]Candidate(nil), cands...)
	sortByID(out)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
