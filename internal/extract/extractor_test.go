package extract

import (
	"archive/zip"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeOCR struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeOCR) Recognize(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func createTestDOCX(t *testing.T, paragraphs ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestDetect(t *testing.T) {
	tests := []struct {
		path      string
		mediaType string
		want      Format
	}{
		{"report.PDF", "", FormatPDF},
		{"notes.docx", "text/plain", FormatWord},
		{"data.xlsx", "", FormatSpreadsheet},
		{"data.csv", "", FormatCSV},
		{"scan.jpeg", "", FormatImage},
		{"upload", "application/pdf", FormatPDF},
		{"upload", "text/csv; charset=utf-8", FormatCSV},
		{"upload", "image/png", FormatImage},
		{"upload.bin", "application/octet-stream", FormatText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Detect(tt.path, tt.mediaType), tt.path)
	}
}

func TestExtractPlainText(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("Speaker 1: hello\n"))
	res := New(nil).Extract(context.Background(), path, "text/plain")

	require.False(t, res.Failed())
	assert.Equal(t, "Speaker 1: hello\n", res.Text)
	assert.Equal(t, FormatText, res.Format)
}

func TestExtractLegacyEncodings(t *testing.T) {
	latin := writeFile(t, "latin.txt", []byte{'c', 'a', 'f', 0xE9})
	res := New(nil).Extract(context.Background(), latin, "")
	assert.Equal(t, "café", res.Text)

	utf16 := writeFile(t, "utf16.txt", []byte{0xFF, 0xFE, 'h', 0, 'i', 0})
	res = New(nil).Extract(context.Background(), utf16, "")
	assert.Equal(t, "hi", res.Text)
}

func TestExtractDOCXKeepsParagraphs(t *testing.T) {
	path := createTestDOCX(t, "First paragraph.", "Second paragraph.")
	res := New(nil).Extract(context.Background(), path, "")

	require.NoError(t, res.Err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", res.Text)
}

func TestExtractSpreadsheetJoinsSheets(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "price"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "basic"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "10"))
	_, err := f.NewSheet("Second")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Second", "A1", "notes, quoted"))

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res := New(nil).Extract(context.Background(), path, "")
	require.NoError(t, res.Err)
	assert.Equal(t, "name,price\nbasic,10\n\n\"notes, quoted\"", res.Text)
}

func TestExtractCSV(t *testing.T) {
	path := writeFile(t, "data.csv", []byte("a,b\n1,2,3\n"))
	res := New(nil).Extract(context.Background(), path, "")

	require.NoError(t, res.Err)
	assert.Equal(t, "a,b\n1,2,3", res.Text)
}

func TestPDFFallsBackToOCR(t *testing.T) {
	ocr := &fakeOCR{text: "scanned words"}
	path := writeFile(t, "scan.pdf", []byte("not really a pdf"))

	res := New(ocr).Extract(context.Background(), path, "application/pdf")

	require.NoError(t, res.Err)
	assert.Equal(t, "scanned words", res.Text)
	assert.Equal(t, int32(1), ocr.calls.Load())
}

func TestPDFOCRFailureYieldsSentinel(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("tesseract missing")}
	path := writeFile(t, "scan.pdf", []byte("not really a pdf"))

	res := New(ocr).Extract(context.Background(), path, "")

	assert.True(t, res.Failed())
	assert.Equal(t, UnreadableText, res.Text)
	assert.Contains(t, res.Err.Error(), "tesseract missing")
}

func TestImagesGoStraightToOCR(t *testing.T) {
	ocr := &fakeOCR{text: "receipt"}
	res := New(ocr).Extract(context.Background(), "photo.png", "")

	require.NoError(t, res.Err)
	assert.Equal(t, "receipt", res.Text)
}

func TestExtractRecoversFromPanics(t *testing.T) {
	e := New(nil, WithStrategy(FormatText, func(context.Context, string) (string, error) {
		panic("boom")
	}))

	res := e.Extract(context.Background(), "file.txt", "")
	assert.True(t, res.Failed())
	assert.Equal(t, UnreadableText, res.Text)
}

func TestExtractMissingFile(t *testing.T) {
	res := New(nil).Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), "")
	assert.True(t, res.Failed())
	assert.Equal(t, UnreadableText, res.Text)
}

func TestFallbackSkipsSecondaryOnSuccess(t *testing.T) {
	called := false
	strategy := Fallback(
		func(context.Context, string) (string, error) { return "text layer", nil },
		func(context.Context, string) (string, error) { called = true; return "", nil },
	)

	text, err := strategy(context.Background(), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "text layer", text)
	assert.False(t, called)
}

func TestPreprocessUpscalesToGray(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	src.Set(10, 10, color.RGBA{R: 255, A: 255})

	out := preprocess(src, 400)
	assert.Equal(t, 400, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())

	same := preprocess(src, 50)
	assert.Equal(t, 100, same.Bounds().Dx())
}

func TestIsPDFSniffsHeader(t *testing.T) {
	named := writeFile(t, "scan.PDF", []byte("anything"))
	unnamed := writeFile(t, "upload", []byte("%PDF-1.7\n%binary"))
	other := writeFile(t, "upload.bin", []byte{0x89, 'P', 'N', 'G'})

	assert.True(t, isPDF(named))
	assert.True(t, isPDF(unnamed))
	assert.False(t, isPDF(other))
	assert.False(t, isPDF(filepath.Join(t.TempDir(), "missing")))
}

func TestLegacyOfficeFilesReportFormat(t *testing.T) {
	ole := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)

	for _, name := range []string{"budget.xls", "letter.doc"} {
		res := New(nil).Extract(context.Background(), writeFile(t, name, ole), "")

		assert.True(t, res.Failed(), name)
		assert.ErrorIs(t, res.Err, ErrLegacyOfficeFormat, name)
		assert.Equal(t, UnreadableText, res.Text, name)
	}
}
