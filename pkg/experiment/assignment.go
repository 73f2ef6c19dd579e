package experiment

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"
)

// Assigner resolves which variant a unit of work belongs to. With a subject
// key the assignment is a pure function of (test ID, subject key), so a
// subject stays on the same variant for the whole test. Without a key it
// draws uniformly at random, which still converges to the configured weights.
type Assigner struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAssigner creates an assigner using the given random source for keyless
// draws. Injecting the source keeps assignment fully reproducible in tests.
func NewAssigner(src rand.Source) *Assigner {
	return &Assigner{rng: rand.New(src)}
}

// Select picks a variant ID for the subject. Variants are walked in their
// fixed creation order, accumulating traffic weight until the hashed (or
// drawn) value falls inside a variant's band. The last variant absorbs any
// residual probability mass from rounding, so every draw resolves.
func (a *Assigner) Select(testID string, variants []*Variant, subjectKey string) string {
	if len(variants) == 0 {
		return ""
	}

	var u float64
	if subjectKey != "" {
		u = hashFraction(testID, subjectKey)
	} else {
		a.mu.Lock()
		u = a.rng.Float64()
		a.mu.Unlock()
	}

	cumulative := 0.0
	for i, v := range variants {
		if i == len(variants)-1 {
			return v.ID
		}
		cumulative += v.TrafficPercent / 100.0
		if u < cumulative {
			return v.ID
		}
	}
	return variants[len(variants)-1].ID
}

// hashFraction maps (testID, subjectKey) deterministically into [0, 1).
func hashFraction(testID, subjectKey string) float64 {
	h := sha256.New()
	h.Write([]byte(testID))
	h.Write([]byte{':'})
	h.Write([]byte(subjectKey))
	sum := h.Sum(nil)

	// First 8 bytes as an unsigned integer, scaled into [0, 1).
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / (1 << 64)
}
