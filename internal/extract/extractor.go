package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// UnreadableText is substituted for the text of a file that could not be extracted.
const UnreadableText = "Error: Unable to extract text from file"

var ErrOCRUnavailable = errors.New("ocr engine not configured")

type Format string

const (
	FormatPDF         Format = "pdf"
	FormatWord        Format = "word"
	FormatSpreadsheet Format = "spreadsheet"
	FormatCSV         Format = "csv"
	FormatImage       Format = "image"
	FormatText        Format = "text"
)

// Strategy turns the file at path into plain text.
type Strategy func(ctx context.Context, path string) (string, error)

// OCR recognizes text in an image or PDF file.
type OCR interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// Result always carries usable text. Err records why the sentinel text was used.
type Result struct {
	Text   string
	Format Format
	Err    error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

var extensionFormats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatWord,
	".doc":  FormatWord,
	".xlsx": FormatSpreadsheet,
	".xlsm": FormatSpreadsheet,
	".xls":  FormatSpreadsheet,
	".csv":  FormatCSV,
	".png":  FormatImage,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".gif":  FormatImage,
	".bmp":  FormatImage,
	".tif":  FormatImage,
	".tiff": FormatImage,
	".webp": FormatImage,
}

var mediaTypeFormats = map[string]Format{
	"application/pdf":    FormatPDF,
	"application/msword": FormatWord,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatWord,
	"application/vnd.ms-excel": FormatSpreadsheet,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatSpreadsheet,
	"text/csv": FormatCSV,
}

// Detect picks a format by file extension first and declared media type second.
func Detect(path, mediaType string) Format {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if f, ok := mediaTypeFormats[mt]; ok {
		return f
	}
	if strings.HasPrefix(mt, "image/") {
		return FormatImage
	}
	return FormatText
}

type Extractor struct {
	strategies map[Format]Strategy
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithStrategy replaces the strategy used for one format.
func WithStrategy(format Format, strategy Strategy) Option {
	return func(e *Extractor) {
		e.strategies[format] = strategy
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds the dispatch table. PDF extraction falls back to ocr when the
// text layer cannot be read.
func New(ocr OCR, opts ...Option) *Extractor {
	recognize := func(ctx context.Context, path string) (string, error) {
		return "", ErrOCRUnavailable
	}
	if ocr != nil {
		recognize = ocr.Recognize
	}

	e := &Extractor{
		logger: slog.Default().With("component", "extractor"),
	}
	e.strategies = map[Format]Strategy{
		FormatPDF:         Fallback(extractPDF, recognize),
		FormatWord:        extractDOCX,
		FormatSpreadsheet: extractSpreadsheet,
		FormatCSV:         extractCSV,
		FormatImage:       recognize,
		FormatText:        extractText,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never fails: on error the result carries UnreadableText and the cause.
func (e *Extractor) Extract(ctx context.Context, path, mediaType string) Result {
	format := Detect(path, mediaType)
	strategy, ok := e.strategies[format]
	if !ok {
		strategy = extractText
	}

	text, err := run(ctx, strategy, path)
	if err != nil {
		e.logger.Warn("extraction failed", "path", path, "format", format, "err", err)
		return Result{Text: UnreadableText, Format: format, Err: err}
	}
	return Result{Text: text, Format: format}
}

// Fallback chains secondary behind primary. Errors from secondary are returned as is.
func Fallback(primary, secondary Strategy) Strategy {
	return func(ctx context.Context, path string) (string, error) {
		text, err := primary(ctx, path)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		slog.Default().Debug("primary extraction failed, trying fallback", "path", path, "err", err)

		text, err = secondary(ctx, path)
		if err != nil {
			return "", fmt.Errorf("fallback extraction failed: %w", err)
		}
		return text, nil
	}
}

func run(ctx context.Context, strategy Strategy, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extraction panicked: %v", r)
		}
	}()
	return strategy(ctx, path)
}
