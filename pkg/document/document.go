// Package document defines the shared data types flowing through the
// retrieval pipeline: retrieved documents, scored vector-store points,
// and citations derived from the final ranking.
package document

// Metadata keys attached to documents at ingestion time.
const (
	KeyURL        = "url"
	KeyTitle      = "title"
	KeyHash       = "hash"
	KeyDocSet     = "docSet"
	KeySourceName = "sourceName"
	KeySourceKind = "sourceKind"
	KeyDocType    = "docType"
	KeyDocVersion = "docVersion"
	KeyChunkIndex = "chunkIndex"
	KeyPageStart  = "pageStart"
	KeyPageEnd    = "pageEnd"
	KeyScore      = "score"
	KeyCollection = "collection"
)

// Document is a retrieved unit of text plus its ingestion metadata.
// Documents are immutable within a request; pipeline stages copy the
// slice, never the contents.
type Document struct {
	Text     string
	Metadata map[string]interface{}
}

// URL returns the canonical source URL, or "" when absent.
func (d Document) URL() string {
	return d.stringField(KeyURL)
}

// Title returns the document title, or "" when absent.
func (d Document) Title() string {
	return d.stringField(KeyTitle)
}

// Hash returns the SHA-256 content fingerprint set at ingestion, or "".
func (d Document) Hash() string {
	return d.stringField(KeyHash)
}

// SourceKind returns the ingestion source kind (official, vendor, keyword...).
func (d Document) SourceKind() string {
	return d.stringField(KeySourceKind)
}

// Collection returns the vector collection the document was retrieved from.
func (d Document) Collection() string {
	return d.stringField(KeyCollection)
}

// Score returns the fused retrieval score, or 0 when absent.
func (d Document) Score() float32 {
	if d.Metadata == nil {
		return 0
	}
	switch v := d.Metadata[KeyScore].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	}
	return 0
}

func (d Document) stringField(key string) string {
	if d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// ScoredPoint is a vector-store candidate: a point UUID, a fused score
// (higher is better), and the ingestion payload.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// ToDocument converts a scored point into a Document, attaching the
// score and originating collection to the payload metadata.
func (p ScoredPoint) ToDocument(collection string) Document {
	meta := make(map[string]interface{}, len(p.Payload)+2)
	for k, v := range p.Payload {
		meta[k] = v
	}
	meta[KeyScore] = p.Score
	meta[KeyCollection] = collection

	text := ""
	if t, ok := meta["text"].(string); ok {
		text = t
	}

	return Document{Text: text, Metadata: meta}
}

// Citation is a reference to a source document, emitted as the terminal
// event of a chat stream.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Anchor  string `json:"anchor,omitempty"`
}

// snippetLength bounds citation snippets.
const snippetLength = 200

// NewCitation builds a citation from a document, truncating the snippet
// at a rune boundary.
func NewCitation(doc Document) Citation {
	snippet := doc.Text
	if len(snippet) > snippetLength {
		runes := []rune(snippet)
		if len(runes) > snippetLength {
			snippet = string(runes[:snippetLength])
		}
	}

	anchor := ""
	if a, ok := doc.Metadata["anchor"].(string); ok {
		anchor = a
	}

	return Citation{
		URL:     doc.URL(),
		Title:   doc.Title(),
		Snippet: snippet,
		Anchor:  anchor,
	}
}

// Citations derives citations from the top documents, at most limit.
func Citations(docs []Document, limit int) []Citation {
	if limit <= 0 || limit > len(docs) {
		limit = len(docs)
	}
	citations := make([]Citation, 0, limit)
	for _, doc := range docs[:limit] {
		citations = append(citations, NewCitation(doc))
	}
	return citations
}
