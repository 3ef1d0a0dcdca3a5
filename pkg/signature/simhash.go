package signature

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// FingerprintBits is the SimHash width and the maximal Hamming distance.
const FingerprintBits = 64

// SimHash is a 64-bit fingerprint of a token multiset.
type SimHash struct {
	Fingerprint uint64
	// Tokens is the number of token occurrences that voted.
	Tokens int
}

// Empty reports whether the fingerprint was built from no tokens.
func (s SimHash) Empty() bool {
	return s.Tokens == 0
}

// NewSimHash computes the fingerprint of whitespace tokens in normalized
// text. Every occurrence votes +1 or -1 on each bit according to the bit of
// its FNV-64a hash; a bit is set when its vote total is positive.
func NewSimHash(normalized string) SimHash {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return SimHash{}
	}

	var votes [FingerprintBits]int
	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		hash := h.Sum64()

		for i := 0; i < FingerprintBits; i++ {
			if hash&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < FingerprintBits; i++ {
		if votes[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}

	return SimHash{Fingerprint: fingerprint, Tokens: len(tokens)}
}

// Distance returns the Hamming distance between two fingerprints, or
// FingerprintBits when either side is empty.
func Distance(a, b SimHash) int {
	if a.Empty() || b.Empty() {
		return FingerprintBits
	}
	return bits.OnesCount64(a.Fingerprint ^ b.Fingerprint)
}

// DistanceSimilarity maps a Hamming distance onto [0,1].
func DistanceSimilarity(distance int) float64 {
	return 1 - float64(distance)/FingerprintBits
}
