// Package pdfutil turns mailing PDFs into plain text for generation providers
// that cannot read binary documents.
package pdfutil

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/logging"
)

// ExtractText reads PDF bytes and returns the text of every non-empty page, in
// page order, each prefixed with a "--- Page N ---" marker.
func ExtractText(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs; recover turns that into
	// an ordinary error for the caller.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	if len(data) == 0 {
		return "", fmt.Errorf("empty pdf")
	}
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	pages := make([]string, 0, doc.NumPage())
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", page, content))
	}
	return strings.Join(pages, "\n\n"), nil
}

// ExtractFromReader drains the reader before passing along to ExtractText.
func ExtractFromReader(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	return ExtractText(data)
}

// Extract never fails. Unreadable input yields an empty string and a warning,
// so a broken attachment degrades the prompt instead of aborting generation.
func Extract(data []byte, logger *zap.Logger) string {
	text, err := ExtractText(data)
	if err != nil {
		logging.OrNop(logger).Warn("pdf text extraction failed", zap.Int("bytes", len(data)), zap.Error(err))
		return ""
	}
	return text
}
