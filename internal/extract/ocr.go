package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrNoTextRecognized = errors.New("ocr recognized no text")

type TesseractConfig struct {
	TesseractPath string
	PdftoppmPath  string
	Language      string
	DPI           int
	MinImageWidth int
}

// TesseractOCR shells out to tesseract, rasterizing PDFs with pdftoppm first.
// Images are converted to grayscale and upscaled before recognition.
type TesseractOCR struct {
	cfg    TesseractConfig
	logger *slog.Logger
}

func NewTesseractOCR(cfg TesseractConfig) *TesseractOCR {
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &TesseractOCR{
		cfg:    cfg,
		logger: slog.Default().With("component", "ocr"),
	}
}

func (o *TesseractOCR) Recognize(ctx context.Context, path string) (string, error) {
	var (
		text string
		err  error
	)
	if isPDF(path) {
		text, err = o.recognizePDF(ctx, path)
	} else {
		text, err = o.recognizeImage(ctx, path)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoTextRecognized
	}
	return text, nil
}

func (o *TesseractOCR) recognizePDF(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return "", fmt.Errorf("create ocr temp dir failed: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, o.cfg.PdftoppmPath, "-r", strconv.Itoa(o.cfg.DPI), "-png", path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("rasterize pdf failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return "", fmt.Errorf("list rasterized pages failed: %w", err)
	}
	sort.Strings(pages)
	o.logger.Debug("running ocr over pdf", "path", path, "pages", len(pages))

	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		text, err := o.recognizeImage(ctx, page)
		if err != nil {
			return "", err
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return strings.Join(texts, "\n\n"), nil
}

func (o *TesseractOCR) recognizeImage(ctx context.Context, path string) (string, error) {
	prepared, err := o.prepareImage(path)
	if err != nil {
		return "", err
	}
	defer os.Remove(prepared)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.cfg.TesseractPath, prepared, "stdout", "-l", o.cfg.Language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (o *TesseractOCR) prepareImage(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image failed: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image failed: %w", err)
	}

	out, err := os.CreateTemp("", "ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create ocr image failed: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, preprocess(img, o.cfg.MinImageWidth)); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode ocr image failed: %w", err)
	}
	return out.Name(), nil
}

// preprocess converts img to grayscale, upscaling it to at least minWidth pixels wide.
func preprocess(img image.Image, minWidth int) *image.Gray {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if minWidth > 0 && w > 0 && w < minWidth {
		h = h * minWidth / w
		w = minWidth
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == src.Dx() && h == src.Dy() {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}
