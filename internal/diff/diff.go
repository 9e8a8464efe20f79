// Package diff compares two renditions of a document, line by line plus
// metadata. The admin API uses it to show what a live session has
// changed since the last snapshot.
package diff

import (
	"fmt"
	"strings"

	"github.com/eniz1806/SyncPad/internal/document"
)

// maxLines caps the line diff for very large documents.
const maxLines = 5000

type Line struct {
	Type string `json:"type"` // "add", "remove", "equal"
	Text string `json:"text"`
	Num  int    `json:"num,omitempty"`
}

type Result struct {
	DocumentID string               `json:"document_id"`
	Lines      []Line               `json:"lines"`
	MetaDiff   map[string][2]string `json:"meta_diff,omitempty"`
	LengthA    int                  `json:"length_a"`
	LengthB    int                  `json:"length_b"`
	Changed    bool                 `json:"changed"`
}

// Documents diffs document a against document b, reading a as the older
// rendition. Both sides must be the same document.
func Documents(a, b *document.Document) (*Result, error) {
	if a.ID() != b.ID() {
		return nil, fmt.Errorf("diff across documents %q and %q", a.ID(), b.ID())
	}

	textA := a.TextContent()
	textB := b.TextContent()
	result := &Result{
		DocumentID: a.ID(),
		Lines:      Texts(textA, textB),
		MetaDiff:   buildMetaDiff(a, b),
		LengthA:    len(textA),
		LengthB:    len(textB),
	}
	result.Changed = len(result.MetaDiff) > 0
	for _, line := range result.Lines {
		if line.Type != "equal" {
			result.Changed = true
			break
		}
	}
	return result, nil
}

// Texts produces a line diff of two text renditions using LCS.
func Texts(a, b string) []Line {
	return computeDiff(splitLines(a), splitLines(b))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func buildMetaDiff(a, b *document.Document) map[string][2]string {
	diff := make(map[string][2]string)

	if a.Title() != b.Title() {
		diff["title"] = [2]string{a.Title(), b.Title()}
	}

	annA, annB := len(a.Annotations()), len(b.Annotations())
	if annA != annB {
		diff["annotations"] = [2]string{fmt.Sprintf("%d", annA), fmt.Sprintf("%d", annB)}
	}
	itemsA, itemsB := len(a.ActionItems()), len(b.ActionItems())
	if itemsA != itemsB {
		diff["action_items"] = [2]string{fmt.Sprintf("%d", itemsA), fmt.Sprintf("%d", itemsB)}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}

// computeDiff produces a simple unified diff using LCS.
func computeDiff(a, b []string) []Line {
	m, n := len(a), len(b)
	if m > maxLines {
		a = a[:maxLines]
		m = maxLines
	}
	if n > maxLines {
		b = b[:maxLines]
		n = maxLines
	}

	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var result []Line
	i, j := 0, 0
	lineNum := 1
	for i < m || j < n {
		if i < m && j < n && a[i] == b[j] {
			result = append(result, Line{Type: "equal", Text: a[i], Num: lineNum})
			i++
			j++
			lineNum++
		} else if j < n && (i >= m || lcs[i][j+1] >= lcs[i+1][j]) {
			result = append(result, Line{Type: "add", Text: b[j], Num: lineNum})
			j++
			lineNum++
		} else if i < m {
			result = append(result, Line{Type: "remove", Text: a[i]})
			i++
		}
	}
	return result
}
