// Package entropy derives deterministic random streams from the run seed.
// Every stochastic choice in the simulation draws from a stream keyed by
// (seed, domain, keys...), so outcomes do not depend on goroutine scheduling
// and replaying a step with the same inputs yields the same result.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	mrand "math/rand"
)

// Domains used across the simulation. Distinct domains give independent streams.
const (
	DomainSpawn       = "spawn"
	DomainFunnel      = "funnel"
	DomainRules       = "rules"
	DomainNegotiation = "negotiation"
	DomainFeedback    = "feedback"
)

// Derive mixes the seed, domain and keys into a single 63-bit source seed.
func Derive(seed int64, domain string, keys ...int64) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	h.Write(buf[:])
	h.Write([]byte(domain))
	for _, k := range keys {
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
		h.Write(buf[:])
	}
	return int64(h.Sum64() >> 1)
}

// Stream returns a generator for (seed, domain, keys...). The generator is not
// safe for concurrent use; derive one per goroutine.
func Stream(seed int64, domain string, keys ...int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(Derive(seed, domain, keys...)))
}

// Float returns one deterministic value in [0, 1) for (seed, domain, keys...).
func Float(seed int64, domain string, keys ...int64) float64 {
	return Stream(seed, domain, keys...).Float64()
}

// RandomSeed returns a fresh seed from crypto/rand, used when the configured
// seed is zero.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}
