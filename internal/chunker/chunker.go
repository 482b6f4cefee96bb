// Package chunker splits raw text into overlapping, bounded-size segments
// while preserving sentence and line boundaries.
package chunker

import (
	"fmt"
	"strings"
)

// Chunk splits text into segments of at most maxSize characters. When a
// window would end mid-sentence, the cut backs off to the nearest sentence
// terminator or line break inside the window. Consecutive chunks overlap by
// up to overlap characters.
//
// It is a pure function: the same input always yields the same output.
func Chunk(text string, maxSize, overlap int) ([]string, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunker: max size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("chunker: overlap %d must be in [0, %d)", overlap, maxSize)
	}

	runes := []rune(text)
	if len(runes) <= maxSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, nil
		}
		return []string{trimmed}, nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxSize
		if end > len(runes) {
			end = len(runes)
		} else {
			// Back off to the last sentence terminator or line break in the
			// window, but never before the window start.
			if cut := lastBoundary(runes, start, end); cut > start {
				end = cut + 1
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			// Boundary backoff shrank the window below the overlap; skip the
			// overlap to guarantee forward progress.
			next = end
		}
		start = next
	}
	return chunks, nil
}

// lastBoundary returns the index of the last '.' or '\n' in runes[start:end),
// or -1 when the window has no boundary.
func lastBoundary(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
