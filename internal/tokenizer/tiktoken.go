package tokenizer

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// llama3Pattern is the Llama 3 pre-tokenizer regex rewritten without the
// lookahead that Go's regexp package lacks.
const llama3Pattern = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`

// SpecialTokens maps special token spellings to ids, placed after the ranks.
type SpecialTokens struct {
	Tokens map[string]int
	BOS    string
	Stop   []string
}

// Llama3Specials returns the 256 special tokens of the Llama 3 tokenizer,
// starting at id 128000.
func Llama3Specials() SpecialTokens {
	const base = 128000
	names := []string{
		"<|begin_of_text|>",
		"<|end_of_text|>",
		"<|reserved_special_token_0|>",
		"<|reserved_special_token_1|>",
		"<|reserved_special_token_2|>",
		"<|reserved_special_token_3|>",
		"<|start_header_id|>",
		"<|end_header_id|>",
		"<|reserved_special_token_4|>",
		"<|eot_id|>",
	}
	for i := 5; len(names) < 256; i++ {
		names = append(names, "<|reserved_special_token_"+strconv.Itoa(i)+"|>")
	}
	tokens := make(map[string]int, len(names))
	for i, n := range names {
		tokens[n] = base + i
	}
	return SpecialTokens{
		Tokens: tokens,
		BOS:    "<|begin_of_text|>",
		Stop:   []string{"<|end_of_text|>", "<|eot_id|>"},
	}
}

// TiktokenTokenizer is a byte-level BPE tokenizer defined by a tiktoken rank
// file: one "base64(token) rank" pair per line.
type TiktokenTokenizer struct {
	ranks   map[string]int
	decoder map[int][]byte
	special map[string]int
	order   []string // specials, longest first
	pattern *regexp.Regexp
	bosID   int
	stop    []int
	size    int
}

// LoadTiktokenBytes parses a tiktoken rank file.
func LoadTiktokenBytes(data []byte, specials SpecialTokens) (*TiktokenTokenizer, error) {
	t := &TiktokenTokenizer{
		ranks:   make(map[string]int),
		decoder: make(map[int][]byte),
		special: make(map[string]int, len(specials.Tokens)),
		pattern: regexp.MustCompile(llama3Pattern),
		bosID:   -1,
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("tiktoken line %d: expected 2 fields, got %d", lineNo, len(fields))
		}
		tok, err := base64.StdEncoding.DecodeString(fields[0])
		if err != nil {
			return nil, fmt.Errorf("tiktoken line %d: %w", lineNo, err)
		}
		rank, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("tiktoken line %d: %w", lineNo, err)
		}
		t.ranks[string(tok)] = rank
		t.decoder[rank] = tok
		t.size = max(t.size, rank+1)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(t.ranks) == 0 {
		return nil, fmt.Errorf("tiktoken: no ranks found")
	}

	for name, id := range specials.Tokens {
		t.special[name] = id
		t.decoder[id] = []byte(name)
		t.order = append(t.order, name)
		t.size = max(t.size, id+1)
	}
	sort.SliceStable(t.order, func(i, j int) bool {
		if len(t.order[i]) != len(t.order[j]) {
			return len(t.order[i]) > len(t.order[j])
		}
		return t.order[i] < t.order[j]
	})
	if id, ok := t.special[specials.BOS]; ok {
		t.bosID = id
	}
	for _, s := range specials.Stop {
		if id, ok := t.special[s]; ok {
			t.stop = append(t.stop, id)
		}
	}
	return t, nil
}

// Encode prepends the BOS token when one is configured.
func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	if t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}
	for _, part := range splitSpecials(text, t.order) {
		if part.isSpecial {
			ids = append(ids, t.special[part.text])
			continue
		}
		for _, piece := range t.pattern.FindAllString(part.text, -1) {
			enc, err := t.bytePairEncode([]byte(piece))
			if err != nil {
				return nil, err
			}
			ids = append(ids, enc...)
		}
	}
	return ids, nil
}

func (t *TiktokenTokenizer) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		tok, ok := t.decoder[id]
		if !ok {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		b = append(b, tok...)
	}
	return string(b), nil
}

// bytePairEncode repeatedly merges the adjacent pair whose concatenation has
// the lowest rank.
func (t *TiktokenTokenizer) bytePairEncode(piece []byte) ([]int, error) {
	if r, ok := t.ranks[string(piece)]; ok {
		return []int{r}, nil
	}
	bounds := make([]int, len(piece)+1)
	for i := range bounds {
		bounds[i] = i
	}
	for len(bounds) > 2 {
		best := -1
		bestRank := int(^uint(0) >> 1)
		for i := 0; i+2 < len(bounds); i++ {
			if r, ok := t.ranks[string(piece[bounds[i]:bounds[i+2]])]; ok && r < bestRank {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		bounds = append(bounds[:best+1], bounds[best+2:]...)
	}

	ids := make([]int, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		r, ok := t.ranks[string(piece[bounds[i]:bounds[i+1]])]
		if !ok {
			return nil, fmt.Errorf("no rank for byte sequence %q", piece[bounds[i]:bounds[i+1]])
		}
		ids = append(ids, r)
	}
	return ids, nil
}

func (t *TiktokenTokenizer) BOSID() int        { return t.bosID }
func (t *TiktokenTokenizer) VocabSize() int    { return t.size }
func (t *TiktokenTokenizer) StopTokens() []int { return append([]int(nil), t.stop...) }

func (t *TiktokenTokenizer) TokenString(id int) string {
	return string(t.decoder[id])
}
