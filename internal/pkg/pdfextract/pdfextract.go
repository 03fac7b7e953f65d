package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoTextLayer is returned for PDFs that parse but carry no text, typically scans.
var ErrNoTextLayer = errors.New("pdf has no text layer")

// ExtractFile extracts the plain text layer of the PDF at path, page by page.
func ExtractFile(path string) (text string, err error) {
	defer recoverParse(&err)

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf failed: %w", err)
	}
	defer f.Close()

	return readPages(reader)
}

// ExtractText reads the entire content of r and extracts its text layer.
func ExtractText(r io.Reader) (text string, err error) {
	defer recoverParse(&err)

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", ErrNoTextLayer
	}
	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("parse pdf failed: %w", err)
	}
	return readPages(reader)
}

func readPages(reader *pdf.Reader) (string, error) {
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d failed: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(content)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrNoTextLayer
	}
	return b.String(), nil
}

// the pdf parser panics on some malformed inputs
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parse pdf failed: %v", r)
	}
}
