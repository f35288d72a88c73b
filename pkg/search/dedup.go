package search

import "github.com/docsage/docsage/pkg/document"

// Dedupe removes duplicate documents from an already UUID-deduped
// list: first by content hash, then by source URL, keeping the first
// occurrence each time. Documents lacking both hash and URL are
// retained unconditionally. The pass is stable and idempotent.
func Dedupe(docs []document.Document) []document.Document {
	byHash := dedupeBy(docs, func(d document.Document) string { return d.Hash() })
	return dedupeBy(byHash, func(d document.Document) string { return d.URL() })
}

func dedupeBy(docs []document.Document, key func(document.Document) string) []document.Document {
	seen := make(map[string]struct{}, len(docs))
	kept := make([]document.Document, 0, len(docs))
	for _, doc := range docs {
		k := key(doc)
		if k == "" {
			kept = append(kept, doc)
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, doc)
	}
	return kept
}
