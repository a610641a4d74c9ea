// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize maps parsed upstream response trees into stable
// Record values and response metadata. Normalization is a pure
// transformation: no I/O, no mutation of the input tree.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/biblio-gateway/internal/xmltree"
	"github.com/pdiddy/biblio-gateway/pkg/types"
)

// yearPattern matches a four-digit year inside issue/volume strings such
// as "Vol.12 No.3 (2019.09)".
var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// Normalize maps the parsed response tree for the given target collection
// into a QueryResult: one Record per raw item, plus total/status metadata
// copied through when present.
func Normalize(doc xmltree.Doc, target string) types.QueryResult {
	result := types.QueryResult{
		Items: []types.Record{},
		Raw:   doc,
		Meta:  parseMeta(doc),
	}

	items, ok := xmltree.Find(doc, "item")
	if !ok {
		return result
	}
	for _, raw := range asSlice(items) {
		item, ok := raw.(xmltree.Doc)
		if !ok {
			continue
		}
		result.Items = append(result.Items, normalizeItem(item, target))
	}
	return result
}

// normalizeItem builds one Record from a raw item tree. The raw tree is
// retained verbatim on the record for downstream consumers.
func normalizeItem(item xmltree.Doc, target string) types.Record {
	rec := types.Record{
		Title:     asString(item["title"]),
		Authors:   extractAuthors(item),
		Year:      extractYear(item),
		Publisher: asString(item["publisher"]),
		Keywords:  extractKeywords(item),
		Raw:       item,
	}

	if url := asString(item["url"]); url != "" {
		rec.URL = url
	} else {
		rec.URL = asString(item["preview_url"])
	}

	if abs, ok := item["abstract"]; ok {
		s := asString(abs)
		rec.Abstract = &s
	}

	rec.ID = DeriveID(item, target)
	return rec
}

// DeriveID computes the stable identity for a raw item: the native id
// when present, else the DOI, else the first 16 hex characters of a
// SHA-256 fingerprint over title|authors|year|publisher. The fingerprint
// is the only dedup key available when the source omits identifiers, so
// it must change whenever any of the four seed fields changes.
func DeriveID(item xmltree.Doc, target string) string {
	if target != "" {
		if id := asString(item[target+"_id"]); id != "" {
			return id
		}
	}
	if id := asString(item["id"]); id != "" {
		return id
	}
	if doi := asString(item["doi"]); doi != "" {
		return doi
	}

	seed := strings.Join([]string{
		asString(item["title"]),
		strings.Join(extractAuthors(item), ","),
		extractYear(item),
		asString(item["publisher"]),
	}, "|")
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

// extractAuthors flattens the author list, tolerating a wrapping
// <authors> element, a bare list, and entries expressed as plain strings
// or objects carrying a name or text field.
func extractAuthors(item xmltree.Doc) []string {
	src, ok := item["authors"]
	if !ok {
		src = item["author"]
	}
	if wrapper, isDoc := src.(xmltree.Doc); isDoc {
		if inner, ok := wrapper["author"]; ok {
			src = inner
		}
	}

	authors := []string{}
	for _, a := range asSlice(src) {
		if name := asString(a); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// extractYear takes the first four characters of the publication date,
// falling back to a four-digit year pattern in the issue field.
func extractYear(item xmltree.Doc) string {
	if pub := asString(item["pub_date"]); len(pub) >= 4 {
		return pub[:4]
	}
	return yearPattern.FindString(asString(item["issue_info"]))
}

// extractKeywords flattens the keyword list, tolerating a wrapping
// <keywords> element. Absent keywords yield an empty slice, never nil.
func extractKeywords(item xmltree.Doc) []string {
	src, ok := item["keywords"]
	if !ok {
		src = item["keyword"]
	}
	if wrapper, isDoc := src.(xmltree.Doc); isDoc {
		if inner, ok := wrapper["keyword"]; ok {
			src = inner
		}
	}

	keywords := []string{}
	for _, k := range asSlice(src) {
		if kw := asString(k); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// parseMeta copies total and the status block out of the response tree.
func parseMeta(doc xmltree.Doc) types.ResponseMeta {
	var meta types.ResponseMeta

	if raw, ok := xmltree.Find(doc, "total"); ok {
		if n, err := strconv.Atoi(asString(raw)); err == nil {
			meta.Total = &n
		}
	}

	if raw, ok := xmltree.Find(doc, "status"); ok {
		if status, isDoc := raw.(xmltree.Doc); isDoc {
			meta.Status = &types.ResponseStatus{
				Code:    asString(status["code"]),
				Message: asString(status["message"]),
			}
		}
	}
	return meta
}

// asString extracts text from a parsed value: strings pass through,
// objects yield their name, text, or character-data field.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case xmltree.Doc:
		for _, key := range []string{"name", "text", "#text"} {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// asSlice coerces a parsed value to a slice: lists pass through, nil
// yields nil, anything else becomes a singleton.
func asSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{v}
	}
}
