package loader

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Section is a part of a file that becomes one document. Key and Value, when set,
// locate the section inside the file (page number, sheet name, slide number).
type Section struct {
	Text  string
	Key   string
	Value interface{}
}

// Parse extracts sections from content based on ext (with leading dot).
// Unknown extensions are read as plain text.
func Parse(content []byte, ext string) ([]Section, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return parsePDF(content)
	case ".xlsx":
		return parseExcel(content)
	case ".docx":
		return single(parseDOCX(content))
	case ".pptx":
		return parsePPTX(content)
	case ".odp":
		return single(parseODF(content, "ODP"))
	case ".ods":
		return single(parseODF(content, "ODS"))
	default:
		return []Section{{Text: plainText(content)}}, nil
	}
}

func single(text string, err error) ([]Section, error) {
	if err != nil {
		return nil, err
	}
	return []Section{{Text: text}}, nil
}

// plainText returns content as a string with invalid UTF-8 replaced by U+FFFD.
func plainText(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}

func parsePDF(content []byte) ([]Section, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	var sections []Section
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		sections = append(sections, Section{Text: text, Key: MetaPage, Value: i})
	}
	return sections, nil
}

func parseExcel(content []byte) ([]Section, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		sections = append(sections, Section{Text: strings.TrimSpace(b.String()), Key: MetaSheet, Value: sheet})
	}
	return sections, nil
}
