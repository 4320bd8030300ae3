package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// symbolPair is one BPE merge rule: left followed by right.
type symbolPair struct {
	left, right string
}

type textPart struct {
	text      string
	isSpecial bool
}

// lowestRankPair finds the adjacent pair in word with the best merge rank.
func lowestRankPair(word []string, ranks map[symbolPair]int) (symbolPair, bool) {
	var best symbolPair
	bestRank, found := 0, false
	for i := 1; i < len(word); i++ {
		p := symbolPair{word[i-1], word[i]}
		if r, ok := ranks[p]; ok && (!found || r < bestRank) {
			best, bestRank, found = p, r, true
		}
	}
	return best, found
}

// mergeAdjacent joins every non-overlapping occurrence of p, left to right.
func mergeAdjacent(word []string, p symbolPair) []string {
	out := word[:0]
	for i := 0; i < len(word); i++ {
		if i+1 < len(word) && word[i] == p.left && word[i+1] == p.right {
			out = append(out, p.left+p.right)
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

// isSpecialToken reports whether s uses the <|name|> special token spelling.
func isSpecialToken(s string) bool {
	return len(s) >= 4 && strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

// splitSpecials cuts text around occurrences of the special tokens. specials
// must be ordered longest first so that overlapping spellings match greedily.
func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 || !strings.Contains(text, "<") {
		return []textPart{{text: text}}
	}
	var parts []textPart
	for text != "" {
		at, match := -1, ""
		for _, sp := range specials {
			if sp == "" {
				continue
			}
			if i := strings.Index(text, sp); i >= 0 && (at < 0 || i < at) {
				at, match = i, sp
			}
		}
		if at < 0 {
			parts = append(parts, textPart{text: text})
			break
		}
		if at > 0 {
			parts = append(parts, textPart{text: text[:at]})
		}
		parts = append(parts, textPart{text: match, isSpecial: true})
		text = text[at+len(match):]
	}
	return parts
}

// printableByte reports whether the GPT-2 byte-level alphabet keeps b as the
// rune of the same value.
func printableByte(b int) bool {
	return ('!' <= b && b <= '~') || (0xA1 <= b && b <= 0xAC) || (0xAE <= b && b <= 0xFF)
}

// bytesToUnicode builds the reversible byte <-> rune mapping of byte-level
// BPE: printable bytes map to themselves and the rest to runes from U+0100 up.
func bytesToUnicode() (map[byte]string, map[string]byte) {
	enc := make(map[byte]string, 256)
	dec := make(map[string]byte, 256)
	next := rune(0x100)
	for b := range 256 {
		r := rune(b)
		if !printableByte(b) {
			r = next
			next++
		}
		var buf [utf8.UTFMax]byte
		s := string(buf[:utf8.EncodeRune(buf[:], r)])
		enc[byte(b)] = s
		dec[s] = byte(b)
	}
	return enc, dec
}
