package search

import (
	"fmt"
	"strings"

	"github.com/docsage/docsage/pkg/document"
)

// QualityLevel tags the retrieval outcome for prompt calibration.
type QualityLevel string

const (
	QualityNone    QualityLevel = "NONE"
	QualityKeyword QualityLevel = "KEYWORD_SEARCH"
	QualityHigh    QualityLevel = "HIGH_QUALITY"
	QualityMixed   QualityLevel = "MIXED_QUALITY"
)

// highQualityMinLength is the text length below which a chunk counts as
// low quality (fragments, bare headings).
const highQualityMinLength = 100

// keywordURLMarkers identify results that came from a keyword-only
// fallback source rather than the curated corpus.
var keywordURLMarkers = []string{
	"duckduckgo.com",
	"bing.com/search",
	"google.com/search",
	"/search?q=",
}

// Quality describes the retained document set.
type Quality struct {
	Level     QualityLevel
	HighCount int
	Total     int
}

// Annotation renders the one-line note appended to the system prompt.
func (q Quality) Annotation() string {
	switch q.Level {
	case QualityNone:
		return "Search quality: NONE. No documentation was retrieved for this question."
	case QualityKeyword:
		return "Search quality: KEYWORD_SEARCH. Results come from keyword fallback, not the curated corpus."
	case QualityHigh:
		return "Search quality: HIGH_QUALITY."
	default:
		return fmt.Sprintf("Search quality: MIXED_QUALITY (%d of %d entries are high quality).", q.HighCount, q.Total)
	}
}

// NeedsHedging reports whether the model should be told to calibrate
// its confidence downward.
func (q Quality) NeedsHedging() bool {
	return q.Level == QualityKeyword || q.Level == QualityMixed
}

// AssessQuality tags the retained document set.
func AssessQuality(docs []document.Document) Quality {
	if len(docs) == 0 {
		return Quality{Level: QualityNone}
	}

	high := 0
	for _, doc := range docs {
		if isKeywordFallbackURL(doc.URL()) || doc.SourceKind() == "keyword" {
			return Quality{Level: QualityKeyword, Total: len(docs)}
		}
		if len(doc.Text) >= highQualityMinLength {
			high++
		}
	}

	if high == len(docs) {
		return Quality{Level: QualityHigh, HighCount: high, Total: len(docs)}
	}
	return Quality{Level: QualityMixed, HighCount: high, Total: len(docs)}
}

func isKeywordFallbackURL(url string) bool {
	lower := strings.ToLower(url)
	for _, marker := range keywordURLMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
