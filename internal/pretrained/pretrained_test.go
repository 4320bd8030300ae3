package pretrained

import (
	"strings"
	"testing"
)

func TestVariantTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v         Variant
		name      string
		model     string
		tokenizer string
	}{
		{Llama3, "Llama-3-8B",
			"https://huggingface.co/tracel-ai/llama-3-8b-burn/resolve/main/model.bin?download=true",
			"https://huggingface.co/tracel-ai/llama-3-8b-burn/resolve/main/tokenizer.model?download=true"},
		{TinyLlama, "TinyLlama-1.1B",
			"https://huggingface.co/tracel-ai/tiny-llama-1.1b-burn/resolve/main/model.bin?download=true",
			"https://huggingface.co/tracel-ai/tiny-llama-1.1b-burn/resolve/main/tokenizer.json?download=true"},
	}
	for _, tc := range tests {
		p := tc.v.Pretrained()
		if p.Name != tc.name || p.ModelURL != tc.model || p.TokenizerURL != tc.tokenizer {
			t.Fatalf("%s: unexpected entry %+v", tc.v.ID(), p)
		}
		if tc.v.String() != tc.name {
			t.Fatalf("String() = %q, want %q", tc.v.String(), tc.name)
		}
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{"llama3", Llama3, false},
		{"TinyLlama", TinyLlama, false},
		{"tinyllama-1.1b", TinyLlama, false},
		{" Llama-3-8B ", Llama3, false},
		{"mistral", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseVariant(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseVariant(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("ParseVariant(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestChatTemplates(t *testing.T) {
	t.Parallel()

	tiny := TinyLlama.Pretrained().Chat("Ahoy?")
	want := "<|system|>\nYou are a friendly chatbot who always responds in the style of a pirate</s>\n<|user|>\nAhoy?</s>\n<|assistant|>\n"
	if tiny != want {
		t.Fatalf("unexpected TinyLlama prompt:\n%q\nwant\n%q", tiny, want)
	}

	llama := Llama3.Pretrained().Chat("Hi")
	if !strings.HasPrefix(llama, "<|start_header_id|>system<|end_header_id|>\n\n") {
		t.Fatalf("unexpected Llama3 prefix: %q", llama)
	}
	if !strings.HasSuffix(llama, "Hi<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n") {
		t.Fatalf("unexpected Llama3 suffix: %q", llama)
	}

	if got := (Pretrained{}).Chat("raw"); got != "raw" {
		t.Fatalf("empty template should pass prompt through, got %q", got)
	}
}
