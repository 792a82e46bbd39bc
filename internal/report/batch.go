package report

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// HeaderReserve is the space SplitBatches callers should subtract from
// a channel's byte budget so AddBatchHeaders never pushes a batch over
// the limit.
const HeaderReserve = 32

// SplitBatches splits content into chunks of at most maxBytes, breaking
// on line boundaries. A single line longer than maxBytes is truncated
// at a rune boundary rather than split mid-character.
func SplitBatches(content string, maxBytes int) []string {
	if maxBytes <= 0 || len(content) <= maxBytes {
		if content == "" {
			return nil
		}
		return []string{content}
	}

	var batches []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			batches = append(batches, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if len(line) > maxBytes {
			line = truncateToBytes(line, maxBytes)
		}
		// +1 for the newline that joins it to the current batch.
		if cur.Len() > 0 && cur.Len()+len(line)+1 > maxBytes {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return batches
}

// AddBatchHeaders prefixes every chunk with its position. A single
// batch goes out unmarked.
func AddBatchHeaders(batches []string) []string {
	if len(batches) <= 1 {
		return batches
	}
	out := make([]string, len(batches))
	for i, b := range batches {
		out[i] = fmt.Sprintf("【第 %d/%d 批】\n%s", i+1, len(batches), b)
	}
	return out
}

// truncateToBytes cuts s to at most maxBytes without splitting a rune.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
