// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package xmltree parses XML payloads of unknown schema into generic
// map/slice/string trees. The upstream API encodes repeatable elements as
// a bare object when exactly one occurs and as a list otherwise; tags
// known to be repeatable are coerced to slices at parse time so that
// ambiguity never reaches downstream code.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Doc is a parsed XML element: tag name → string (text-only child),
// nested Doc, or []any of those for repeated and forced-list tags.
type Doc = map[string]any

// forcedListTags are coerced to []any even when a single element occurs.
var forcedListTags = map[string]bool{
	"item":    true,
	"author":  true,
	"keyword": true,
}

// ParseError reports a malformed XML payload. Retrying the fetch will
// not fix a malformed body, so callers surface it immediately.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing XML response: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes rawXML into a Doc keyed by the root element name. Blank
// input yields an empty Doc; malformed input fails with *ParseError.
func Parse(rawXML string) (Doc, error) {
	if strings.TrimSpace(rawXML) == "" {
		return Doc{}, nil
	}

	dec := xml.NewDecoder(strings.NewReader(rawXML))
	root := Doc{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return root, nil
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		if start, ok := tok.(xml.StartElement); ok {
			child, err := parseElement(dec, start)
			if err != nil {
				return nil, &ParseError{Err: err}
			}
			addChild(root, start.Name.Local, child)
		}
	}
}

// parseElement consumes one element and its subtree. An element with
// child elements becomes a Doc (attributes merged in as plain keys,
// child elements winning on collision); a text-only element becomes its
// trimmed character data.
func parseElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	node := Doc{}
	for _, attr := range start.Attr {
		node[attr.Name.Local] = attr.Value
	}

	var text strings.Builder
	hasChildren := len(start.Attr) > 0

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			addChild(node, t.Name.Local, child)
			hasChildren = true
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if !hasChildren {
				return strings.TrimSpace(text.String()), nil
			}
			if trimmed := strings.TrimSpace(text.String()); trimmed != "" {
				node["#text"] = trimmed
			}
			return node, nil
		}
	}
}

// addChild inserts a parsed child under name, promoting repeated and
// forced-list tags to []any.
func addChild(node Doc, name string, child any) {
	existing, ok := node[name]
	if !ok {
		if forcedListTags[name] {
			node[name] = []any{child}
		} else {
			node[name] = child
		}
		return
	}
	if list, isList := existing.([]any); isList {
		node[name] = append(list, child)
		return
	}
	node[name] = []any{existing, child}
}

// Find returns the first value stored under name anywhere in the tree,
// searching depth-first with siblings visited in sorted tag order so the
// result is deterministic. The upstream response nests its result block
// at varying depths depending on the target collection, so lookups are
// structural rather than path-based.
func Find(v any, name string) (any, bool) {
	switch t := v.(type) {
	case Doc:
		if got, ok := t[name]; ok {
			return got, true
		}
		tags := make([]string, 0, len(t))
		for tag := range t {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			if got, ok := Find(t[tag], name); ok {
				return got, true
			}
		}
	case []any:
		for _, child := range t {
			if got, ok := Find(child, name); ok {
				return got, true
			}
		}
	}
	return nil, false
}
