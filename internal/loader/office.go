package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	docxDefaultPart  = "word/document.xml"
	contentTypesPart = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	odfContentPart   = "content.xml"
)

var (
	// wordText matches <w:t>text</w:t> with any attributes.
	wordText = regexp.MustCompile(`<w:t\b[^>]*>([^<]*)</w:t>`)
	// drawingText matches <a:t>text</a:t> in slides.
	drawingText = regexp.MustCompile(`<a:t\b[^>]*>([^<]*)</a:t>`)
	// odfText matches innermost text:p, text:span and text:h elements in document order.
	odfText = regexp.MustCompile(`<text:(?:p|span|h)\b[^>]*>([^<]*)</text:(?:p|span|h)>`)

	overrideTag = regexp.MustCompile(`<Override\b[^>]*>`)
	partNameAtt = regexp.MustCompile(`PartName="([^"]+)"`)
	slideNumber = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

func openZip(content []byte, kind string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return zr, nil
}

// readPart returns the named zip member, or nil when it is absent.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

// joinMatches joins the first submatch of every match with single spaces.
func joinMatches(re *regexp.Regexp, data []byte) string {
	parts := re.FindAllSubmatch(data, -1)
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(string(p[1])); s != "" {
			words = append(words, s)
		}
	}
	return strings.Join(words, " ")
}

// docxMainPart finds the main document part from [Content_Types].xml, whatever the
// attribute order.
func docxMainPart(zr *zip.Reader) string {
	ct, err := readPart(zr, contentTypesPart)
	if err != nil || ct == nil {
		return ""
	}
	for _, tag := range overrideTag.FindAll(ct, -1) {
		if !bytes.Contains(tag, []byte(`ContentType="`+docxMainType+`"`)) {
			continue
		}
		if m := partNameAtt.FindSubmatch(tag); m != nil {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return ""
}

func parseDOCX(content []byte) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	part := docxMainPart(zr)
	if part == "" {
		part = docxDefaultPart
	}
	data, err := readPart(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	if data == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", part)
	}
	return joinMatches(wordText, data), nil
}

// parsePPTX returns one section per slide, ordered by slide number.
func parsePPTX(content []byte) ([]Section, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideNumber.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, name: f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	sections := make([]Section, 0, len(slides))
	for _, s := range slides {
		data, err := readPart(zr, s.name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		sections = append(sections, Section{Text: joinMatches(drawingText, data), Key: MetaSlide, Value: s.n})
	}
	return sections, nil
}

// parseODF extracts text from an OpenDocument package (presentation or spreadsheet).
func parseODF(content []byte, kind string) (string, error) {
	zr, err := openZip(content, kind)
	if err != nil {
		return "", err
	}
	data, err := readPart(zr, odfContentPart)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}
	if data == nil {
		return "", fmt.Errorf("extract %s: %s not found", kind, odfContentPart)
	}
	return joinMatches(odfText, data), nil
}
