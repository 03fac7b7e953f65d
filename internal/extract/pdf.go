package extract

import (
	"context"

	"quotelens/internal/pkg/pdfextract"
)

func extractPDF(_ context.Context, path string) (string, error) {
	return pdfextract.ExtractFile(path)
}
