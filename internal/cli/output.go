// Package cli formats retriever results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/retrieval"
	"github.com/hyperjump/retriever/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

// previewLength is the number of runes of chunk content shown in text output.
const previewLength = 300

// WriteQueryResponse writes query results to w in the given format.
func WriteQueryResponse(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (%s search)\n\n", len(response.Results), response.QueryTime, response.Mode)
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] Score: %.4f\n", i+1, result.Score)
		if name := result.Metadata.String(models.MetaFileName); name != "" {
			fmt.Fprintf(w, "File: %s%s\n", name, locator(result.Metadata))
		}
		if src := result.Metadata.String(models.MetaSource); src != "" {
			fmt.Fprintf(w, "Source: %s\n", src)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.OneLine(result.Content), previewLength))
	}
	return nil
}

// locator formats the page, sheet or slide a chunk came from.
func locator(meta models.Metadata) string {
	for _, key := range []string{"page", "sheet", "slide"} {
		if v, ok := meta[key]; ok {
			return fmt.Sprintf(" (%s %v)", key, v)
		}
	}
	return ""
}

// WriteBuildStats writes the result of an index build.
func WriteBuildStats(w io.Writer, stats *retrieval.BuildStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Indexed %d documents into %d chunks (%d dimensions) in %s\n",
		stats.Documents, stats.Chunks, stats.Dimensions, stats.Duration.Round(time.Millisecond))
	if stats.Persisted {
		fmt.Fprintln(w, "Index cache written.")
	} else {
		fmt.Fprintf(w, "Warning: index cache not written: %s\n", stats.CacheError)
	}
	return nil
}

// WriteStatus writes a flat key/value status report. Keys are printed sorted.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-20s %v\n", k+":", status[k])
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
