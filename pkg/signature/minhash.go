package signature

import (
	"hash/fnv"
	"math"
	"math/bits"
	"math/rand"
	"strings"
)

const (
	// DefaultNumPerm is the default number of MinHash permutations.
	DefaultNumPerm = 128

	// DefaultSeed makes permutations reproducible across runs.
	DefaultSeed = 1

	mersennePrime = (1 << 61) - 1
	maxHash       = (1 << 32) - 1

	trigramMinWords = 10
	charShingleSize = 4
)

// MinHash is a fixed-width signature of per-permutation minimum hashes.
type MinHash struct {
	Values []uint64
	// Size is the number of distinct features hashed into Values.
	Size int
}

// Empty reports whether the signature was built from no features.
func (m MinHash) Empty() bool {
	return m.Size == 0
}

type permutation struct {
	a uint64
	b uint64
}

// MinHasher holds one set of permutations; signatures are only comparable
// when produced by the same MinHasher.
type MinHasher struct {
	perms []permutation
}

func NewMinHasher(numPerm int, seed int64) *MinHasher {
	if numPerm <= 0 {
		numPerm = DefaultNumPerm
	}

	rng := rand.New(rand.NewSource(seed))
	perms := make([]permutation, numPerm)
	for i := range perms {
		perms[i] = permutation{
			a: uint64(rng.Int63n(mersennePrime-1)) + 1,
			b: uint64(rng.Int63n(mersennePrime)),
		}
	}

	return &MinHasher{perms: perms}
}

// NumPerm returns the signature width.
func (mh *MinHasher) NumPerm() int {
	return len(mh.perms)
}

// Sign hashes every feature into a new signature.
func (mh *MinHasher) Sign(features []string) MinHash {
	values := make([]uint64, len(mh.perms))
	for i := range values {
		values[i] = math.MaxUint64
	}

	seen := make(map[string]struct{}, len(features))
	for _, feature := range features {
		if _, ok := seen[feature]; ok {
			continue
		}
		seen[feature] = struct{}{}

		h := baseHash(feature)
		for i, p := range mh.perms {
			if v := p.apply(h); v < values[i] {
				values[i] = v
			}
		}
	}

	return MinHash{Values: values, Size: len(seen)}
}

// SignText builds features from normalized text and signs them.
func (mh *MinHasher) SignText(normalized string) MinHash {
	return mh.Sign(Features(normalized))
}

// Jaccard estimates the Jaccard similarity of the two underlying feature
// sets as the fraction of agreeing permutation minima.
func Jaccard(a, b MinHash) float64 {
	if a.Empty() || b.Empty() || len(a.Values) != len(b.Values) || len(a.Values) == 0 {
		return 0
	}

	matches := 0
	for i := range a.Values {
		if a.Values[i] == b.Values[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a.Values))
}

// Features returns word unigrams, bigrams, trigrams (for texts longer than
// ten words) and 4-rune shingles of the space-free text.
func Features(normalized string) []string {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return nil
	}

	features := make([]string, 0, len(words)*3)
	features = append(features, words...)

	for i := 0; i+1 < len(words); i++ {
		features = append(features, words[i]+" "+words[i+1])
	}
	if len(words) > trigramMinWords {
		for i := 0; i+2 < len(words); i++ {
			features = append(features, words[i]+" "+words[i+1]+" "+words[i+2])
		}
	}

	runes := []rune(strings.Join(words, ""))
	for i := 0; i+charShingleSize <= len(runes); i++ {
		features = append(features, string(runes[i:i+charShingleSize]))
	}

	return features
}

func baseHash(feature string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(feature))
	return h.Sum64() & maxHash
}

// apply computes ((a*h + b) mod p) truncated to 32 bits.
func (p permutation) apply(h uint64) uint64 {
	hi, lo := bits.Mul64(p.a, h)
	lo, carry := bits.Add64(lo, p.b, 0)
	hi += carry
	return bits.Rem64(hi, lo, mersennePrime) & maxHash
}
