package compress

import (
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"hello world",
		`{"count":5,"nested":{"flag":true}}`,
		"héllo wörld — ünïcode ✓ 日本語",
		strings.Repeat("abcdef", 500),
	}
	for _, input := range cases {
		packed, err := Compress(input)
		if err != nil {
			t.Fatalf("compress %q: %v", input, err)
		}
		if !IsCompressed(packed) {
			t.Fatalf("compressed form missing tag for %q", input)
		}
		plain, err := Decompress(packed)
		if err != nil {
			t.Fatalf("decompress %q: %v", input, err)
		}
		if plain != input {
			t.Fatalf("round trip mismatch: want %q, got %q", input, plain)
		}
	}
}

func TestDecompressPassthrough(t *testing.T) {
	for _, input := range []string{"", "plain text", `{"a":1}`} {
		out, err := Decompress(input)
		if err != nil {
			t.Fatalf("decompress %q: %v", input, err)
		}
		if out != input {
			t.Fatalf("untagged input must pass through unchanged, got %q", out)
		}
	}
}

func TestDecompressCorruptPayload(t *testing.T) {
	if _, err := Decompress(Tag + "!!not-base64!!"); err == nil {
		t.Fatalf("expected error for corrupt payload")
	}
}

func TestShouldCompress(t *testing.T) {
	cases := []struct {
		data    string
		minSize int
		want    bool
	}{
		{"short", 1024, false},
		{strings.Repeat("a", 1024), 1024, true},
		{strings.Repeat("a", 1023), 1024, false},
		{"abc", 3, true},
		{"ab", 3, false},
		{strings.Repeat("a", DefaultMinSize), 0, true},
		{"tiny", 0, false},
	}
	for _, tc := range cases {
		if got := ShouldCompress(tc.data, tc.minSize); got != tc.want {
			t.Fatalf("ShouldCompress(len=%d, min=%d) = %v, want %v", len(tc.data), tc.minSize, got, tc.want)
		}
	}
}

func TestCompressedFormIsSmallerForRepetitiveInput(t *testing.T) {
	input := strings.Repeat(`{"key":"value"},`, 200)
	packed, err := Compress(input)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(packed) >= len(input) {
		t.Fatalf("expected compression win: %d -> %d", len(input), len(packed))
	}
}
