package toy

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestForwardMatchesNaive(t *testing.T) {
	t.Parallel()

	vocab, hidden := 8, 6
	m, err := New(vocab, hidden, 5)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := m.Forward(1, 3)

	h := make([]float32, hidden)
	for i := range h {
		h[i] = m.emb.row(3)[i] + 0.5*m.emb.row(1)[i]
	}
	for j := 0; j < vocab; j++ {
		var sum float32
		for i := 0; i < hidden; i++ {
			sum += h[i] * m.proj.row(i)[j]
		}
		if math.Abs(float64(got[j]-sum)) > 1e-4 {
			t.Fatalf("logit %d: got %f, want %f", j, got[j], sum)
		}
	}
}

func TestSameSeedSameWeights(t *testing.T) {
	t.Parallel()

	a, _ := New(16, 4, 42)
	b, _ := New(16, 4, 42)
	c, _ := New(16, 4, 43)
	if !slices.Equal(a.Forward(-1, 7), b.Forward(-1, 7)) {
		t.Fatalf("same seed should give identical logits")
	}
	if slices.Equal(a.Forward(-1, 7), c.Forward(-1, 7)) {
		t.Fatalf("different seeds should give different logits")
	}
}

func TestForwardWrapsTokenIDs(t *testing.T) {
	t.Parallel()

	m, _ := New(5, 3, 2)
	if !slices.Equal(m.Forward(-1, 7), m.Forward(-1, 2)) {
		t.Fatalf("token 7 should wrap to 2")
	}
	if !slices.Equal(m.Forward(-1, -1), m.Forward(-1, 4)) {
		t.Fatalf("token -1 should wrap to 4")
	}
}

func TestNextTokenLogits(t *testing.T) {
	t.Parallel()

	m, _ := New(10, 4, 1)
	ctx := context.Background()
	if _, err := m.NextTokenLogits(ctx, nil); err == nil {
		t.Fatalf("expected error for empty context")
	}
	got, err := m.NextTokenLogits(ctx, []int{9, 1, 2})
	if err != nil {
		t.Fatalf("logits: %v", err)
	}
	if !slices.Equal(got, m.Forward(1, 2)) {
		t.Fatalf("expected logits conditioned on the last two tokens")
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.NextTokenLogits(canceled, []int{1}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestFromFileSeedsFromContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(a, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(b, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ma, err := FromFile(a, 12, 4)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	mb, err := FromFile(b, 12, 4)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if ma.Seed != mb.Seed {
		t.Fatalf("identical content should hash to the same seed")
	}
	if _, err := FromFile(filepath.Join(dir, "missing.bin"), 12, 4); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestHashFileReadsBoundedPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name string, data []byte) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return p
	}
	hash := func(p string) uint64 {
		t.Helper()
		h, err := HashFile(p)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return h
	}

	base := make([]byte, hashPrefix+64)
	tail := bytes.Clone(base)
	tail[len(tail)-1] = 1
	head := bytes.Clone(base)
	head[0] = 1

	a := hash(write("a.bin", base))
	if got := hash(write("tail.bin", tail)); got != a {
		t.Fatalf("bytes past the prefix should not change the hash")
	}
	if got := hash(write("head.bin", head)); got == a {
		t.Fatalf("bytes inside the prefix should change the hash")
	}
	if got := hash(write("longer.bin", append(bytes.Clone(base), 0))); got == a {
		t.Fatalf("file size should change the hash")
	}
}

func TestNewRejectsBadShape(t *testing.T) {
	t.Parallel()

	if _, err := New(0, 4, 1); err == nil {
		t.Fatalf("expected error for zero vocab")
	}
	if _, err := New(4, 0, 1); err == nil {
		t.Fatalf("expected error for zero hidden")
	}
}
