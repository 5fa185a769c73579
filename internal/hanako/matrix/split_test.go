package matrix

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShortTextUnchanged(t *testing.T) {
	got := splitMessage("hello", 4096)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("short text must pass through, got %v", got)
	}
}

func TestSplitMessagePrefersLineBoundaries(t *testing.T) {
	text := strings.Repeat("a line of text\n", 20)
	chunks := splitMessage(text, 100)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
		if strings.Contains(chunk, "a line") && !strings.HasSuffix(chunk, "text") {
			t.Errorf("chunk %d broke mid-line: %q", i, chunk)
		}
	}
}

func TestSplitMessageFallsBackToSpaces(t *testing.T) {
	text := strings.Repeat("word ", 50) // no newlines
	chunks := splitMessage(text, 64)

	for i, chunk := range chunks {
		if len(chunk) > 64 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
		if strings.Contains(chunk, "wo rd") || strings.HasSuffix(chunk, "wor") {
			t.Errorf("chunk %d broke mid-word: %q", i, chunk)
		}
	}
}

func TestSplitMessageHardCutWithoutBreakpoints(t *testing.T) {
	text := strings.Repeat("x", 300)
	chunks := splitMessage(text, 100)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	total := 0
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
		total += len(chunk)
	}
	if total != 300 {
		t.Errorf("content lost in hard cut: %d of 300 bytes kept", total)
	}
}

func TestSplitMessageKeepsRunesIntact(t *testing.T) {
	// No newlines and no spaces: the hard cut must still land on a rune
	// boundary so no chunk carries a torn multibyte character.
	text := strings.Repeat("あ", 2000) // 3 bytes each
	chunks := splitMessage(text, MaxMessageLength)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var total int
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if len(chunk) > MaxMessageLength {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
		total += utf8.RuneCountInString(chunk)
	}
	if total != 2000 {
		t.Errorf("runes lost at chunk boundaries: kept %d of 2000", total)
	}
	if strings.Join(chunks, "") != text {
		t.Error("reassembled chunks differ from the original text")
	}
}

func TestSplitMessageNothingLost(t *testing.T) {
	text := strings.Repeat("some words here\nand a new line\n", 40)
	chunks := splitMessage(text, 128)

	joined := strings.Join(chunks, "\n")
	// Splitting trims separator whitespace, so compare without it.
	want := strings.Join(strings.Fields(text), " ")
	got := strings.Join(strings.Fields(joined), " ")
	if got != want {
		t.Error("split dropped or reordered content")
	}
}
