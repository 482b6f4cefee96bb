package chunker

import (
	"strings"
	"testing"
)

func TestChunkShortText(t *testing.T) {
	chunks, err := Chunk("hello world", 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("got %v, want single chunk", chunks)
	}
}

func TestChunkBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := Chunk(text, 50, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("blank input %q: got %v, want no chunks", text, chunks)
		}
	}
}

func TestChunkInvalidOverlap(t *testing.T) {
	if _, err := Chunk("some text", 10, 10); err == nil {
		t.Error("overlap == maxSize: expected error")
	}
	if _, err := Chunk("some text", 10, 15); err == nil {
		t.Error("overlap > maxSize: expected error")
	}
	if _, err := Chunk("some text", 10, -1); err == nil {
		t.Error("negative overlap: expected error")
	}
	if _, err := Chunk("some text", 0, 0); err == nil {
		t.Error("zero maxSize: expected error")
	}
}

func TestChunkSentenceBoundaries(t *testing.T) {
	text := "Sentence one. Sentence two. Sentence three."
	chunks, err := Chunk(text, 20, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, c := range chunks {
		// Every chunk must end at a sentence terminator; no mid-word cuts.
		if !strings.HasSuffix(c, ".") {
			t.Errorf("chunk %d %q does not end at a sentence boundary", i, c)
		}
		if !strings.Contains(text, c) {
			t.Errorf("chunk %d %q is not a substring of the source", i, c)
		}
	}
}

func TestChunkCoversWholeText(t *testing.T) {
	var b strings.Builder
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"}
	for i := 0; i < 40; i++ {
		b.WriteString(words[i%len(words)])
		if i%5 == 4 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	text := strings.TrimSpace(b.String())

	for _, tc := range []struct{ size, overlap int }{
		{50, 0}, {50, 10}, {80, 20}, {30, 5},
	} {
		chunks, err := Chunk(text, tc.size, tc.overlap)
		if err != nil {
			t.Fatalf("size=%d overlap=%d: %v", tc.size, tc.overlap, err)
		}
		// Chunks appear in source order and jointly reach the end of the text.
		offset := 0
		for i, c := range chunks {
			idx := strings.Index(text[offset:], c)
			if idx < 0 {
				t.Fatalf("size=%d overlap=%d: chunk %d %q out of order or missing", tc.size, tc.overlap, i, c)
			}
			offset += idx
		}
		last := chunks[len(chunks)-1]
		if !strings.HasSuffix(text, last) {
			t.Errorf("size=%d overlap=%d: final chunk does not reach end of text", tc.size, tc.overlap)
		}
		// With overlap at least as long as the longest word, every word
		// survives chunking intact in at least one chunk.
		if tc.overlap >= 8 {
			joined := strings.Join(chunks, " ")
			for _, w := range words {
				if !strings.Contains(joined, w) {
					t.Errorf("size=%d overlap=%d: word %q lost", tc.size, tc.overlap, w)
				}
			}
		}
	}
}

func TestChunkForwardProgress(t *testing.T) {
	// A long run without any boundary characters must still terminate.
	text := strings.Repeat("x", 5000)
	chunks, err := Chunk(text, 100, 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks for long unbroken text")
	}
	for _, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk exceeds max size: %d", len(c))
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)
	a, _ := Chunk(text, 120, 30)
	b, _ := Chunk(text, 120, 30)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
