package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Stderr, format, args...)
	}
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// recordColumns returns the field names present across records in a stable
// order: Id first, then the rest alphabetically. The "attributes" envelope
// is omitted.
func recordColumns(records []salesforce.Record) []string {
	seen := make(map[string]bool)

	for _, rec := range records {
		for k := range rec {
			if k != "attributes" {
				seen[k] = true
			}
		}
	}

	cols := make([]string, 0, len(seen))
	for k := range seen {
		if k != "Id" {
			cols = append(cols, k)
		}
	}

	sort.Strings(cols)

	if seen["Id"] {
		cols = append([]string{"Id"}, cols...)
	}

	return cols
}

// formatCell renders one field value for table output. Nested objects
// (relationship fields) are shown as compact JSON.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}

		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
