package tagging

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultMaxPDFPages bounds how much of a PDF is sent to the model, the PDF
// counterpart of MaxPromptChars.
const DefaultMaxPDFPages = 5

// Cloud Functions only allow writes under /tmp, so pdfcpu must not create its
// config directory.
func init() {
	api.DisableConfigDir()
}

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// trimPDF validates data as a PDF and keeps only its first maxPages pages.
func trimPDF(data []byte, maxPages int) ([]byte, error) {
	conf := pdfConfig()
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf page count: %w", err)
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	if maxPages <= 0 || pageCount <= maxPages {
		return data, nil
	}

	var out bytes.Buffer
	selected := []string{fmt.Sprintf("1-%d", maxPages)}
	if err := api.Trim(bytes.NewReader(data), &out, selected, conf); err != nil {
		return nil, fmt.Errorf("failed to trim pdf to %d pages: %w", maxPages, err)
	}
	return out.Bytes(), nil
}
