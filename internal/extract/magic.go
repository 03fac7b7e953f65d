package extract

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrLegacyOfficeFormat is returned for binary .doc and .xls files, which
// only the OOXML readers are available for.
var ErrLegacyOfficeFormat = errors.New("legacy binary office format is not supported")

var (
	pdfMagic  = []byte("%PDF-")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

func hasMagic(path string, magic []byte) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return bytes.Equal(head, magic)
}

// isPDF trusts a .pdf extension and otherwise sniffs the header, so uploads
// detected by media type alone still rasterize as PDFs.
func isPDF(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return true
	}
	return hasMagic(path, pdfMagic)
}
