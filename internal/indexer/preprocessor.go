package indexer

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Preprocess normalizes text for chunking: unify line endings and trim surrounding space.
// Inner whitespace is kept because paragraph and line breaks are split points.
func Preprocess(text string) string {
	return strings.TrimSpace(lineEndings.Replace(text))
}
