package logits

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// ErrInvalidInput is returned for malformed distributions and sampler parameters.
var ErrInvalidInput = errors.New("invalid input")

// Kind identifies a sampling strategy.
type Kind int

const (
	// KindArgmax always picks the most probable token.
	KindArgmax Kind = iota
	// KindTopP draws from the nucleus of the distribution.
	KindTopP
)

func (k Kind) String() string {
	switch k {
	case KindArgmax:
		return "argmax"
	case KindTopP:
		return "top-p"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// pcgStream is the fixed PCG stream selector; only the seed varies between samplers.
const pcgStream = 0x9e3779b97f4a7c15

// Sampler turns a next-token distribution into a token id.
//
// The set of strategies is closed: a Sampler is either Argmax or TopP, and
// Sample dispatches on the kind. A TopP sampler owns its PRNG, so a Sampler
// must not be shared between generation sessions.
type Sampler struct {
	kind Kind
	topP *topP
}

type topP struct {
	threshold float64
	seed      uint64
	rng       *rand.Rand

	// scratch, reused between calls
	idx  []int
	prob []float64
}

// Argmax returns a deterministic sampler.
func Argmax() *Sampler {
	return &Sampler{kind: KindArgmax}
}

// NewTopP returns a nucleus sampler. threshold is the cumulative probability
// cutoff and must be in (0, 1].
func NewTopP(threshold float64, seed uint64) (*Sampler, error) {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: top-p threshold %v outside (0, 1]", ErrInvalidInput, threshold)
	}
	return &Sampler{
		kind: KindTopP,
		topP: &topP{
			threshold: threshold,
			seed:      seed,
			rng:       rand.New(rand.NewPCG(seed, pcgStream)),
		},
	}, nil
}

// Kind reports the sampling strategy.
func (s *Sampler) Kind() Kind { return s.kind }

// Threshold returns the top-p cutoff, or 0 for Argmax.
func (s *Sampler) Threshold() float64 {
	if s.topP == nil {
		return 0
	}
	return s.topP.threshold
}

// Seed returns the seed the PRNG was created with, or 0 for Argmax.
func (s *Sampler) Seed() uint64 {
	if s.topP == nil {
		return 0
	}
	return s.topP.seed
}

func (s *Sampler) String() string {
	if s.kind == KindTopP {
		return fmt.Sprintf("top-p(p=%g seed=%d)", s.topP.threshold, s.topP.seed)
	}
	return s.kind.String()
}

// Sample selects a token id from dist. For TopP the PRNG advances on every
// successful call.
func (s *Sampler) Sample(dist []float64) (int, error) {
	switch s.kind {
	case KindArgmax:
		return ArgmaxIndex(dist)
	case KindTopP:
		return s.topP.sample(dist)
	default:
		return 0, fmt.Errorf("%w: unknown sampler kind %v", ErrInvalidInput, s.kind)
	}
}

// ArgmaxIndex returns the index of the largest value. Ties resolve to the
// lowest index.
func ArgmaxIndex(x []float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: empty distribution", ErrInvalidInput)
	}
	best := 0
	for i, v := range x {
		if math.IsNaN(v) {
			return 0, fmt.Errorf("%w: NaN at index %d", ErrInvalidInput, i)
		}
		if v > x[best] {
			best = i
		}
	}
	return best, nil
}

// sample implements nucleus sampling:
//
//  1. Indices are stable-sorted by descending probability.
//  2. The candidate set is the shortest prefix whose cumulative probability
//     exceeds the threshold. It always holds at least one entry.
//  3. The prefix is renormalised to sum to one.
//  4. One index is drawn with the sampler's PRNG.
func (t *topP) sample(dist []float64) (int, error) {
	total, err := checkDistribution(dist)
	if err != nil {
		return 0, err
	}

	if cap(t.idx) < len(dist) {
		t.idx = make([]int, len(dist))
		t.prob = make([]float64, len(dist))
	}
	idx := t.idx[:len(dist)]
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(dist[b], dist[a])
	})

	cut := len(idx)
	if t.threshold < 1 {
		var cum float64
		for i, id := range idx {
			cum += dist[id] / total
			if cum > t.threshold {
				cut = i + 1
				break
			}
		}
	}

	prob := t.prob[:cut]
	var sum float64
	for i := range prob {
		prob[i] = dist[idx[i]]
		sum += prob[i]
	}
	inv := 1 / sum
	for i := range prob {
		prob[i] *= inv
	}

	r := t.rng.Float64()
	var c float64
	for i, p := range prob {
		c += p
		if r < c {
			return idx[i], nil
		}
	}
	// Rounding left r above the final cumulative sum; take the last nonzero candidate.
	for i := cut - 1; i > 0; i-- {
		if prob[i] > 0 {
			return idx[i], nil
		}
	}
	return idx[0], nil
}

// checkDistribution validates dist and returns its total mass.
func checkDistribution(dist []float64) (float64, error) {
	if len(dist) == 0 {
		return 0, fmt.Errorf("%w: empty distribution", ErrInvalidInput)
	}
	var total float64
	for i, p := range dist {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return 0, fmt.Errorf("%w: probability %v at index %d", ErrInvalidInput, p, i)
		}
		total += p
	}
	if total <= 0 || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: distribution has no mass", ErrInvalidInput)
	}
	return total, nil
}
