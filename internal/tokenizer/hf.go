package tokenizer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// metaspace is the SentencePiece word boundary marker.
const metaspace = "▁"

// HFTokenizer is a BPE tokenizer loaded from a Hugging Face tokenizer.json.
//
// Two flavours are supported: GPT-2 style byte-level BPE, and SentencePiece
// style BPE where spaces become "▁" and unknown characters fall back to
// <0xNN> byte tokens (Llama 2, TinyLlama).
type HFTokenizer struct {
	encoder      map[string]int
	decoder      []string
	bpeRanks     map[symbolPair]int
	cache        map[string][]string
	byteEncoder  map[byte]string
	byteDecoder  map[string]byte
	pattern      *regexp.Regexp
	metaspace    bool
	byteFallback bool
	addBOS       bool
	bosID        int
	unkID        int
	ignoreMerges bool
	special      []string
	stop         []int
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
		ByteFallback bool           `json:"byte_fallback"`
	} `json:"model"`
	Normalizer    *hfNormalizer    `json:"normalizer"`
	PreTokenizer  *hfPreTokenizer  `json:"pre_tokenizer"`
	PostProcessor *hfPostProcessor `json:"post_processor"`
	AddedTokens   []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type hfNormalizer struct {
	Type        string          `json:"type"`
	Normalizers []*hfNormalizer `json:"normalizers"`
	Pattern     struct {
		String string `json:"String"`
	} `json:"pattern"`
	Content string `json:"content"`
}

type hfPreTokenizer struct {
	Type          string            `json:"type"`
	Pretokenizers []*hfPreTokenizer `json:"pretokenizers"`
	Pattern       struct {
		Regex string `json:"Regex"`
	} `json:"pattern"`
}

type hfPostProcessor struct {
	Type          string             `json:"type"`
	Processors    []*hfPostProcessor `json:"processors"`
	Single        []map[string]struct {
		ID string `json:"id"`
	} `json:"single"`
	SpecialTokens map[string]struct {
		IDs []int `json:"ids"`
	} `json:"special_tokens"`
}

// LoadHFTokenizerBytes parses the contents of a tokenizer.json file.
func LoadHFTokenizerBytes(tokJSON []byte) (*HFTokenizer, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model: %q", tj.Model.Type)
	}

	encoder := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := -1
	for tok, id := range tj.Model.Vocab {
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range tj.Model.Vocab {
		decoder[id] = tok
	}

	var special []string
	for _, at := range tj.AddedTokens {
		decoder[at.ID] = at.Content
		if at.Special {
			special = append(special, at.Content)
		}
	}
	for _, tok := range decoder {
		if isSpecialToken(tok) && !containsString(special, tok) {
			special = append(special, tok)
		}
	}
	// longest-match first
	sort.SliceStable(special, func(i, j int) bool { return len(special[i]) > len(special[j]) })

	bpeRanks := make(map[symbolPair]int, len(tj.Model.Merges))
	rank := 0
	for _, raw := range tj.Model.Merges {
		p, ok := parseMerge(raw)
		if !ok {
			continue
		}
		if _, seen := bpeRanks[p]; !seen {
			bpeRanks[p] = rank
			rank++
		}
	}

	byteEncoder, byteDecoder := bytesToUnicode()

	unkID := -1
	if tj.Model.UnkToken != "" {
		if id, ok := encoder[tj.Model.UnkToken]; ok {
			unkID = id
		}
	}

	bosID := bosFromPostProcessor(tj.PostProcessor)

	var stop []int
	for id, tok := range decoder {
		if isEndOfText(tok) {
			stop = append(stop, id)
		}
	}

	tok := &HFTokenizer{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     bpeRanks,
		cache:        make(map[string][]string),
		byteEncoder:  byteEncoder,
		byteDecoder:  byteDecoder,
		metaspace:    usesMetaspace(tj.Normalizer, tj.PreTokenizer),
		byteFallback: tj.Model.ByteFallback,
		addBOS:       bosID >= 0,
		bosID:        bosID,
		unkID:        unkID,
		ignoreMerges: tj.Model.IgnoreMerges,
		special:      special,
		stop:         stop,
	}
	if !tok.metaspace {
		tok.pattern = buildHFPattern(tj.PreTokenizer)
	}
	return tok, nil
}

func parseMerge(raw any) (symbolPair, bool) {
	line := ""
	switch v := raw.(type) {
	case string:
		line = v
	case []any:
		if len(v) == 2 {
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if aok && bok {
				line = a + " " + b
			}
		}
	}
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return symbolPair{}, false
	}
	parts := strings.Split(line, " ")
	if len(parts) != 2 {
		return symbolPair{}, false
	}
	return symbolPair{left: parts[0], right: parts[1]}, true
}

// bosFromPostProcessor returns the id of the special token that leads the
// single-sequence template, or -1.
func bosFromPostProcessor(pp *hfPostProcessor) int {
	if pp == nil {
		return -1
	}
	if pp.Type == "Sequence" {
		for _, proc := range pp.Processors {
			if id := bosFromPostProcessor(proc); id >= 0 {
				return id
			}
		}
		return -1
	}
	if pp.Type != "TemplateProcessing" || len(pp.Single) == 0 {
		return -1
	}
	first, ok := pp.Single[0]["SpecialToken"]
	if !ok {
		return -1
	}
	spec, ok := pp.SpecialTokens[first.ID]
	if !ok || len(spec.IDs) == 0 {
		return -1
	}
	return spec.IDs[0]
}

func usesMetaspace(norm *hfNormalizer, pre *hfPreTokenizer) bool {
	if pre != nil {
		if pre.Type == "Metaspace" {
			return true
		}
		for _, p := range pre.Pretokenizers {
			if p != nil && p.Type == "Metaspace" {
				return true
			}
		}
	}
	if norm == nil {
		return false
	}
	if norm.Type == "Replace" && norm.Pattern.String == " " && norm.Content == metaspace {
		return true
	}
	for _, n := range norm.Normalizers {
		if usesMetaspace(n, nil) {
			return true
		}
	}
	return false
}

func (t *HFTokenizer) Encode(text string) ([]int, error) {
	var ids []int
	if t.addBOS {
		ids = append(ids, t.bosID)
	}
	for _, part := range splitSpecials(text, t.special) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		var err error
		if t.metaspace {
			ids, err = t.encodeMetaspace(ids, part.text)
		} else {
			ids, err = t.encodeByteLevel(ids, part.text)
		}
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (t *HFTokenizer) encodeByteLevel(ids []int, text string) ([]int, error) {
	for _, piece := range t.pattern.FindAllString(text, -1) {
		for _, bpeTok := range t.bpe(t.byteEncode(piece)) {
			id, ok := t.encoder[bpeTok]
			if !ok {
				if t.unkID >= 0 {
					ids = append(ids, t.unkID)
					continue
				}
				return nil, fmt.Errorf("unknown token: %q", bpeTok)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *HFTokenizer) encodeMetaspace(ids []int, text string) ([]int, error) {
	if text == "" {
		return ids, nil
	}
	normalized := metaspace + strings.ReplaceAll(text, " ", metaspace)
	for _, sym := range t.bpe(normalized) {
		if id, ok := t.encoder[sym]; ok {
			ids = append(ids, id)
			continue
		}
		if t.byteFallback {
			fallback, ok := t.byteTokens(sym)
			if ok {
				ids = append(ids, fallback...)
				continue
			}
		}
		if t.unkID >= 0 {
			ids = append(ids, t.unkID)
			continue
		}
		return nil, fmt.Errorf("unknown token: %q", sym)
	}
	return ids, nil
}

func (t *HFTokenizer) byteTokens(sym string) ([]int, bool) {
	out := make([]int, 0, len(sym))
	for _, b := range []byte(sym) {
		id, ok := t.encoder[fmt.Sprintf("<0x%02X>", b)]
		if !ok {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func (t *HFTokenizer) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		token := t.decoder[id]
		switch {
		case containsString(t.special, token):
			b = append(b, token...)
		case t.metaspace:
			if by, ok := parseByteToken(token); ok {
				b = append(b, by)
				continue
			}
			b = append(b, strings.ReplaceAll(token, metaspace, " ")...)
		default:
			for _, r := range token {
				if by, ok := t.byteDecoder[string(r)]; ok {
					b = append(b, by)
				} else {
					b = append(b, string(r)...)
				}
			}
		}
	}
	if t.metaspace && len(b) > 0 && b[0] == ' ' {
		b = b[1:]
	}
	return string(b), nil
}

// parseByteToken decodes a SentencePiece byte token such as <0x0A>.
func parseByteToken(tok string) (byte, bool) {
	if len(tok) != 6 || !strings.HasPrefix(tok, "<0x") || tok[5] != '>' {
		return 0, false
	}
	v, err := strconv.ParseUint(tok[3:5], 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

func (t *HFTokenizer) BOSID() int        { return t.bosID }
func (t *HFTokenizer) AddBOS() bool      { return t.addBOS }
func (t *HFTokenizer) VocabSize() int    { return len(t.decoder) }
func (t *HFTokenizer) StopTokens() []int { return append([]int(nil), t.stop...) }

func (t *HFTokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *HFTokenizer) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *HFTokenizer) bpe(token string) []string {
	if v, ok := t.cache[token]; ok {
		return v
	}
	if t.ignoreMerges {
		if _, ok := t.encoder[token]; ok {
			out := []string{token}
			t.cache[token] = out
			return out
		}
	}
	word := strings.Split(token, "")
	for len(word) > 1 {
		p, ok := lowestRankPair(word, t.bpeRanks)
		if !ok {
			break
		}
		word = mergeAdjacent(word, p)
	}
	t.cache[token] = word
	return word
}

func buildHFPattern(pre *hfPreTokenizer) *regexp.Regexp {
	// Default to GPT2-ish regex.
	pat := `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	if pre != nil && pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p != nil && p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Llama3-style regexes use lookahead, which Go does not support.
	if strings.Contains(pat, "(?!\\S)") || strings.Contains(pat, "(?i:") {
		pat = llama3Pattern
	}
	return regexp.MustCompile(pat)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
