// Package sparse encodes text into BM25-style sparse term-frequency
// vectors. Indices are Murmur3-32 token hashes (seed 0) widened to
// uint64; values are raw term counts. IDF weighting is applied by the
// vector store at query time.
package sparse

import (
	"sort"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxIndices bounds the vector length; lowest-count terms are
	// discarded first, ties broken by earliest appearance.
	MaxIndices = 256

	// minTokenLength drops single-character tokens.
	minTokenLength = 2

	hashSeed = 0
)

// Vector is a pair of strictly index-ascending sequences of equal
// length. An empty vector is legal and means "no sparse stage".
type Vector struct {
	Indices []uint64 `json:"indices"`
	Values  []uint32 `json:"values"`
}

// IsEmpty reports whether the vector carries no terms.
func (v Vector) IsEmpty() bool {
	return len(v.Indices) == 0
}

// Len returns the number of distinct terms.
func (v Vector) Len() int {
	return len(v.Indices)
}

// Encoder converts text to sparse vectors. The zero value is not
// usable; construct with NewEncoder. Encoders are safe for concurrent
// use.
type Encoder struct {
	fold transform.Transformer
}

// NewEncoder creates a sparse encoder.
func NewEncoder() *Encoder {
	return &Encoder{
		fold: transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

// Encode produces the sparse vector for text. Deterministic for any
// input; returns an empty vector when no token survives tokenization.
func (e *Encoder) Encode(text string) Vector {
	tokens := e.Tokenize(text)
	if len(tokens) == 0 {
		return Vector{}
	}

	type termStat struct {
		count uint32
		first int
	}

	terms := make(map[uint64]*termStat, len(tokens))
	for pos, token := range tokens {
		h := uint64(murmur3.Sum32WithSeed([]byte(token), hashSeed))
		if stat, ok := terms[h]; ok {
			stat.count++
		} else {
			terms[h] = &termStat{count: 1, first: pos}
		}
	}

	indices := make([]uint64, 0, len(terms))
	for h := range terms {
		indices = append(indices, h)
	}

	if len(indices) > MaxIndices {
		// Keep the highest counts; earliest appearance wins ties.
		sort.Slice(indices, func(i, j int) bool {
			a, b := terms[indices[i]], terms[indices[j]]
			if a.count != b.count {
				return a.count > b.count
			}
			return a.first < b.first
		})
		indices = indices[:MaxIndices]
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]uint32, len(indices))
	for i, h := range indices {
		values[i] = terms[h].count
	}

	return Vector{Indices: indices, Values: values}
}

// Tokenize normalizes text to folded ASCII-lower form and splits it
// into maximal alphanumeric runs, dropping tokens shorter than two
// runes. Equivalent to Lucene's StandardAnalyzer for the corpus at
// hand.
func (e *Encoder) Tokenize(text string) []string {
	normalized := e.normalize(text)

	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() >= minTokenLength {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

func (e *Encoder) normalize(text string) string {
	folded, _, err := transform.String(e.fold, text)
	if err != nil {
		// Transform failures leave the input usable as-is.
		folded = text
	}
	return strings.ToLower(folded)
}
