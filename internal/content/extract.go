package content

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cardflow/internal/util"

	"github.com/ledongthuc/pdf"
)

// ExtractDocumentText pulls plain text out of a document source. PDFs go
// through the pdf reader; anything else is treated as already-plain text.
func ExtractDocumentText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDFText(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document %s: %w", path, err)
	}
	text := util.SanitizeText(string(raw))
	if text == "" {
		return "", fmt.Errorf("document %s: %w", path, util.ErrContentNotFound)
	}
	return text, nil
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return "", fmt.Errorf("pdf %s has no extractable text: %w", path, util.ErrContentNotFound)
	}
	return text, nil
}
