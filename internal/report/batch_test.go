package report

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitBatchesOnLineBoundaries(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("0123456789\n", 5)
	batches := SplitBatches(content, 25)
	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}
	for i, b := range batches {
		if len(b) > 25 {
			t.Fatalf("batch %d is %d bytes", i, len(b))
		}
		for _, line := range strings.Split(b, "\n") {
			if line != "0123456789" && line != "" {
				t.Fatalf("line split mid-way: %q", line)
			}
		}
	}
}

func TestSplitBatchesSmallContent(t *testing.T) {
	t.Parallel()
	if got := SplitBatches("short", 100); len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %v", got)
	}
	if got := SplitBatches("", 100); got != nil {
		t.Fatalf("empty content should yield no batches, got %v", got)
	}
}

func TestSplitBatchesOversizedLineKeepsRunes(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("热", 20) // 3 bytes each
	batches := SplitBatches(line, 32)
	if len(batches) != 1 {
		t.Fatalf("batches = %d", len(batches))
	}
	if !utf8.ValidString(batches[0]) {
		t.Fatalf("truncation split a rune: %q", batches[0])
	}
	if len(batches[0]) > 32 {
		t.Fatalf("batch is %d bytes", len(batches[0]))
	}
}

func TestAddBatchHeaders(t *testing.T) {
	t.Parallel()
	if got := AddBatchHeaders([]string{"only"}); got[0] != "only" {
		t.Fatalf("single batch must stay unmarked, got %q", got[0])
	}

	got := AddBatchHeaders([]string{"a", "b"})
	if !strings.HasPrefix(got[0], "【第 1/2 批】\n") || !strings.HasPrefix(got[1], "【第 2/2 批】\n") {
		t.Fatalf("headers = %q", got)
	}
}
