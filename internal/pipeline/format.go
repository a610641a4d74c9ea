// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/biblio-gateway/pkg/types"
)

// FormatTable writes the result as a human-readable table to w.
func FormatTable(result types.QueryResult, w io.Writer) {
	if len(result.Items) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-56s  %-20s  %-4s  %s\n", "No.", "Title", "Authors", "Year", "Publisher")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for i, rec := range result.Items {
		title := rec.Title
		if len(title) > 56 {
			title = title[:53] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-56s  %-20s  %-4s  %s\n",
			i+1, title, formatAuthors(rec.Authors), rec.Year, rec.Publisher)
	}

	fmt.Fprintf(w, "\n%d records", len(result.Items))
	if result.Meta.Total != nil && *result.Meta.Total > len(result.Items) {
		fmt.Fprintf(w, " of %d total", *result.Meta.Total)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes the result as indented JSON to w.
func FormatJSON(result types.QueryResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
