package extraction

import (
	"bytes"
	"fmt"
	"io"

	dslipak "github.com/dslipak/pdf"
	ledongthuc "github.com/ledongthuc/pdf"
)

// pdfTextLayerStrategy reads the structural text layer via ledongthuc/pdf.
// Scanned PDFs have no text layer; this yields empty or near-empty output
// that the quality gate rejects.
type pdfTextLayerStrategy struct{}

func (pdfTextLayerStrategy) Name() string { return "pdf_text_layer" }

func (pdfTextLayerStrategy) Extract(data []byte) (text string, err error) {
	// The rsc.io-derived readers panic on malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	return buf.String(), nil
}

// pdfAltTextLayerStrategy is an independent second opinion on the text
// layer via dslipak/pdf. The two libraries diverge on content-stream edge
// cases, so one regularly recovers text the other misses.
type pdfAltTextLayerStrategy struct{}

func (pdfAltTextLayerStrategy) Name() string { return "pdf_text_layer_alt" }

func (pdfAltTextLayerStrategy) Extract(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := dslipak.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read text layer: %w", err)
	}
	return buf.String(), nil
}
