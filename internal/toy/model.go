package toy

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/cespare/xxhash/v2"
)

// DefaultHidden is the embedding width used when a caller does not pick one.
const DefaultHidden = 16

// matrix is a dense row-major [rows x cols] float32 matrix.
type matrix struct {
	rows, cols int
	data       []float32
}

func newMatrix(rows, cols int) matrix {
	return matrix{rows: rows, cols: cols, data: make([]float32, rows*cols)}
}

func (m matrix) row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

func (m matrix) fill(rng *rand.Rand, scale float32) {
	for i := range m.data {
		m.data[i] = (rng.Float32()*2 - 1) * scale
	}
}

// Model is a seeded bigram language model. It conditions on the last two
// tokens of the context, which is enough to exercise the generation loop
// end to end without real weights.
type Model struct {
	Vocab  int
	Hidden int
	Seed   uint64

	emb  matrix // [Vocab x Hidden]
	proj matrix // [Hidden x Vocab]
	bias []float32
}

// New builds a model whose weights are a pure function of seed.
func New(vocab, hidden int, seed uint64) (*Model, error) {
	if vocab <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("toy: invalid shape vocab=%d hidden=%d", vocab, hidden)
	}
	m := &Model{
		Vocab:  vocab,
		Hidden: hidden,
		Seed:   seed,
		emb:    newMatrix(vocab, hidden),
		proj:   newMatrix(hidden, vocab),
		bias:   make([]float32, vocab),
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	m.emb.fill(rng, 1)
	m.proj.fill(rng, float32(1/math.Sqrt(float64(hidden))))
	return m, nil
}

// FromFile seeds a model from a fingerprint of a weights file.
func FromFile(path string, vocab, hidden int) (*Model, error) {
	seed, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	return New(vocab, hidden, seed)
}

// hashPrefix bounds how much of a weights file HashFile reads.
const hashPrefix = 1 << 20

// HashFile returns the xxhash of the first hashPrefix bytes of the file at
// path followed by its size. Multi-gigabyte weights are never read in full.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	if _, err := io.CopyN(h, f, hashPrefix); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(st.Size()))
	_, _ = h.Write(size[:])
	return h.Sum64(), nil
}

func (m *Model) wrap(tok int) int {
	tok %= m.Vocab
	if tok < 0 {
		tok += m.Vocab
	}
	return tok
}

// Forward returns logits for the token following prev, cur. Out-of-range ids
// are reduced modulo Vocab; prev < 0 means there is no earlier token.
func (m *Model) Forward(prev, cur int) []float32 {
	h := make([]float32, m.Hidden)
	copy(h, m.emb.row(m.wrap(cur)))
	if prev >= 0 {
		for i, v := range m.emb.row(m.wrap(prev)) {
			h[i] += 0.5 * v
		}
	}

	out := make([]float32, m.Vocab)
	copy(out, m.bias)
	for i, hv := range h {
		for j, w := range m.proj.row(i) {
			out[j] += hv * w
		}
	}
	return out
}

// NextTokenLogits conditions on the tail of tokens.
func (m *Model) NextTokenLogits(ctx context.Context, tokens []int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch n := len(tokens); n {
	case 0:
		return nil, errors.New("toy: empty context")
	case 1:
		return m.Forward(-1, tokens[0]), nil
	default:
		return m.Forward(tokens[n-2], tokens[n-1]), nil
	}
}
