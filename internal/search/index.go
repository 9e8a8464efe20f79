// Package search keeps an in-memory full-text index over documents, fed
// from the snapshot store at startup and refreshed as live sessions
// mutate content.
package search

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eniz1806/SyncPad/internal/document"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

// Result is one search hit.
type Result struct {
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	TextLength   int    `json:"text_length"`
	LastModified string `json:"last_modified,omitempty"`
}

type entry struct {
	documentID   string
	title        string
	textLength   int
	lastModified string
	// searchable text: lowercased concatenation of id, title, content,
	// annotation and action-item fields
	text string
}

// Index provides substring search over document content and metadata.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]*entry)}
}

// Build populates the index from every stored snapshot. Snapshots that
// fail to decode are skipped, not fatal.
func (idx *Index) Build(store snapshot.Store) error {
	records, err := store.List()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	for _, rec := range records {
		state, err := store.Load(rec.DocumentID)
		if err != nil {
			continue
		}
		doc, err := document.FromState(state)
		if err != nil {
			continue
		}
		idx.Update(doc.View())
	}
	return nil
}

// Update refreshes the entry for one document.
func (idx *Index) Update(view document.View) {
	e := &entry{
		documentID: view.DocumentID,
		textLength: len(view.Text),
		text:       buildSearchText(view),
	}
	if title, ok := view.Metadata[document.MetaTitle].(string); ok {
		e.title = title
	}
	if modified, ok := view.Metadata[document.MetaLastModified].(string); ok {
		e.lastModified = modified
	}

	idx.mu.Lock()
	idx.entries[view.DocumentID] = e
	idx.mu.Unlock()
}

// Remove drops a document from the index.
func (idx *Index) Remove(documentID string) {
	idx.mu.Lock()
	delete(idx.entries, documentID)
	idx.mu.Unlock()
}

// Search finds documents matching the query. Plain terms must all appear
// somewhere in the document (substring match on id, title, text,
// annotations and action items); a "title:term" part restricts that term
// to the title.
func (idx *Index) Search(query string, limit int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var titleTerms []string
	var textTerms []string
	for _, part := range strings.Fields(query) {
		lower := strings.ToLower(part)
		if after, ok := strings.CutPrefix(lower, "title:"); ok && after != "" {
			titleTerms = append(titleTerms, after)
			continue
		}
		textTerms = append(textTerms, lower)
	}

	var results []Result
	for _, e := range idx.entries {
		if !matchAll(strings.ToLower(e.title), titleTerms) {
			continue
		}
		if !matchAll(e.text, textTerms) {
			continue
		}
		results = append(results, Result{
			DocumentID:   e.documentID,
			Title:        e.title,
			TextLength:   e.textLength,
			LastModified: e.lastModified,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].DocumentID < results[j].DocumentID })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func matchAll(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

func buildSearchText(view document.View) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(view.DocumentID))
	b.WriteByte(' ')
	if title, ok := view.Metadata[document.MetaTitle].(string); ok {
		b.WriteString(strings.ToLower(title))
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToLower(view.Text))
	writeItemFields(&b, view.Annotations)
	writeItemFields(&b, view.ActionItems)
	return b.String()
}

// writeItemFields appends the string field values of every annotation or
// action item, so author names and comment text are searchable.
func writeItemFields(b *strings.Builder, items map[string]any) {
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, v := range fields {
			if s, ok := v.(string); ok {
				b.WriteByte(' ')
				b.WriteString(strings.ToLower(s))
			}
		}
	}
}
