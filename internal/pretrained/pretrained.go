// Package pretrained resolves named model variants to locally cached
// weight and tokenizer files, downloading them on first use.
package pretrained

import (
	"fmt"
	"strings"
)

const hubBase = "https://huggingface.co/tracel-ai"

// Pretrained describes where the artifacts of one variant live.
// Entries are fixed at build time and never mutated.
type Pretrained struct {
	// Name is the cache subdirectory for this variant.
	Name         string
	ModelURL     string
	TokenizerURL string
	// ChatTemplate wraps a user prompt; "{prompt}" marks the insertion point.
	ChatTemplate string
}

// Chat wraps prompt in the variant's chat template.
func (p Pretrained) Chat(prompt string) string {
	if p.ChatTemplate == "" {
		return prompt
	}
	return strings.Replace(p.ChatTemplate, "{prompt}", prompt, 1)
}

// Variant is one of the published pretrained models.
type Variant int

const (
	Llama3 Variant = iota
	TinyLlama
)

var variants = map[Variant]Pretrained{
	Llama3: {
		Name:         "Llama-3-8B",
		ModelURL:     hubBase + "/llama-3-8b-burn/resolve/main/model.bin?download=true",
		TokenizerURL: hubBase + "/llama-3-8b-burn/resolve/main/tokenizer.model?download=true",
		ChatTemplate: "<|start_header_id|>system<|end_header_id|>\n\n" +
			"A chat between a curious user and an artificial intelligence assistant. " +
			"The assistant gives helpful, detailed, and polite answers to the user's questions." +
			"<|eot_id|><|start_header_id|>user<|end_header_id|>\n\n" +
			"{prompt}<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n",
	},
	TinyLlama: {
		Name:         "TinyLlama-1.1B",
		ModelURL:     hubBase + "/tiny-llama-1.1b-burn/resolve/main/model.bin?download=true",
		TokenizerURL: hubBase + "/tiny-llama-1.1b-burn/resolve/main/tokenizer.json?download=true",
		ChatTemplate: "<|system|>\nYou are a friendly chatbot who always responds in the style of a pirate</s>\n" +
			"<|user|>\n{prompt}</s>\n<|assistant|>\n",
	},
}

// Variants lists every known variant in a stable order.
func Variants() []Variant {
	return []Variant{Llama3, TinyLlama}
}

// Pretrained returns the artifact table entry for v.
func (v Variant) Pretrained() Pretrained {
	return variants[v]
}

// ID is the short command-line name of v.
func (v Variant) ID() string {
	switch v {
	case Llama3:
		return "llama3"
	case TinyLlama:
		return "tinyllama"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

func (v Variant) String() string {
	if p, ok := variants[v]; ok {
		return p.Name
	}
	return v.ID()
}

// ParseVariant accepts a short id ("llama3", "tinyllama") or a cache name
// ("Llama-3-8B"), ignoring case.
func ParseVariant(s string) (Variant, error) {
	s = strings.TrimSpace(s)
	for _, v := range Variants() {
		if strings.EqualFold(s, v.ID()) || strings.EqualFold(s, v.Pretrained().Name) {
			return v, nil
		}
	}
	ids := make([]string, 0, len(variants))
	for _, v := range Variants() {
		ids = append(ids, v.ID())
	}
	return 0, fmt.Errorf("unknown variant %q (want one of %s)", s, strings.Join(ids, ", "))
}
