// Package markdown post-processes the completed assistant response
// before it is persisted and surfaced.
package markdown

import (
	"gitlab.com/golang-commonmark/markdown"
)

// Processor transforms the accumulated response text once streaming
// finishes.
type Processor interface {
	Process(text string) string
}

// CommonMark renders the response to HTML.
type CommonMark struct {
	md *markdown.Markdown
}

func NewCommonMark() *CommonMark {
	return &CommonMark{
		md: markdown.New(
			markdown.HTML(false),
			markdown.Linkify(true),
			markdown.Typographer(false),
		),
	}
}

func (c *CommonMark) Process(text string) string {
	return c.md.RenderToString([]byte(text))
}

// Passthrough returns the text unchanged. Used where the raw markdown
// is wanted as-is.
type Passthrough struct{}

func (Passthrough) Process(text string) string {
	return text
}
