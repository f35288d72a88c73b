package rerank

import (
	"encoding/json"
	"fmt"
	"strings"
)

// orderPayload decodes indices as pointers so a JSON null element is
// distinguishable from a real zero and can be dropped.
type orderPayload struct {
	Order []*int `json:"order"`
}

// ParseOrder extracts the ranked index list from a model response. A
// fenced code block is preferred; otherwise the first balanced JSON
// object in the text is tried.
func ParseOrder(response string) ([]int, error) {
	if fenced, ok := fencedBlock(response); ok {
		if order, err := decodeOrder(fenced); err == nil {
			return order, nil
		}
	}

	candidate, ok := balancedObject(response)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	return decodeOrder(candidate)
}

func decodeOrder(text string) ([]int, error) {
	var payload orderPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	if payload.Order == nil {
		return nil, fmt.Errorf(`response JSON has no "order" field`)
	}
	order := make([]int, 0, len(payload.Order))
	for _, idx := range payload.Order {
		if idx == nil {
			continue
		}
		order = append(order, *idx)
	}
	return order, nil
}

// fencedBlock returns the content of the first ``` fence, tolerating an
// optional language tag.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]

	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || tag == "json" {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedObject scans for the first top-level {...} span, honoring
// string literals and escapes.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
