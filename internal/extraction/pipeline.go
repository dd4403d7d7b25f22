package extraction

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/kevinzhou/applyflow/internal/domain"
	"github.com/kevinzhou/applyflow/internal/logger"
)

// Pipeline tries an ordered sequence of extraction strategies per media
// type, each gated by the quality check. It has no side effects beyond
// logging; whether insufficient text escalates to OCR is the caller's
// decision.
type Pipeline struct {
	minChars       int
	pdfStrategies  []Strategy
	docxStrategies []Strategy
	log            *logger.Logger
}

// PipelineConfig holds configuration for the extraction pipeline.
type PipelineConfig struct {
	MinTextChars int
}

// NewPipeline creates an extraction pipeline with the default strategy
// order: structural PDF text layer, then the alternate PDF reader as a
// cross-check; a single structural extractor for docx.
func NewPipeline(cfg *PipelineConfig, log *logger.Logger) *Pipeline {
	minChars := DefaultMinTextChars
	if cfg != nil && cfg.MinTextChars > 0 {
		minChars = cfg.MinTextChars
	}
	if log == nil {
		log = logger.Default()
	}
	return &Pipeline{
		minChars:       minChars,
		pdfStrategies:  []Strategy{pdfTextLayerStrategy{}, pdfAltTextLayerStrategy{}},
		docxStrategies: []Strategy{docxStructureStrategy{}},
		log:            log,
	}
}

// Extract runs the strategy chain for the declared media type and returns
// the first output passing the quality gate, plus a record of every
// attempt. An unsupported media type fails before any strategy runs; a
// PDF with no extractable text returns an insufficient Result flagged
// LikelyScanned rather than an error.
func (p *Pipeline) Extract(ctx context.Context, data []byte, mediaType, filename string) (*Result, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	mt := normalizeMediaType(mediaType)
	switch {
	case mt == MediaTypePDF:
		res := p.runStrategies(ctx, p.pdfStrategies, data, filename)
		if !res.Sufficient() {
			// No text layer in either reader: treat as a scanned
			// document and leave the OCR decision to the caller.
			res.LikelyScanned = true
		}
		return res, nil

	case mt == MediaTypeDocx:
		return p.runStrategies(ctx, p.docxStrategies, data, filename), nil

	case mt == MediaTypeText || strings.HasPrefix(mt, "text/"):
		start := time.Now()
		text := decodePlainText(data)
		return &Result{
			Text:         text,
			StrategyUsed: "plain_text",
			Attempts: []Attempt{{
				Strategy: "plain_text",
				OK:       true,
				Chars:    len(text),
				Duration: time.Since(start),
			}},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, mediaType)
	}
}

// runStrategies tries each strategy in order until one passes the gate.
func (p *Pipeline) runStrategies(ctx context.Context, strategies []Strategy, data []byte, filename string) *Result {
	res := &Result{Attempts: make([]Attempt, 0, len(strategies))}

	for _, s := range strategies {
		start := time.Now()
		raw, err := s.Extract(data)
		attempt := Attempt{
			Strategy: s.Name(),
			Duration: time.Since(start),
		}

		if err != nil {
			attempt.Error = err.Error()
			res.Attempts = append(res.Attempts, attempt)
			p.log.WithFields(logger.Fields{
				logger.FieldStrategy:   s.Name(),
				logger.FieldDurationMs: attempt.Duration.Milliseconds(),
			}).WithError(err).Debug("Extraction strategy failed")
			continue
		}

		cleaned, ok := qualityGate(raw, filename, p.minChars)
		attempt.Chars = len(cleaned)
		if !ok {
			attempt.Error = "quality gate rejected output"
			res.Attempts = append(res.Attempts, attempt)
			p.log.WithFields(logger.Fields{
				logger.FieldStrategy: s.Name(),
				logger.FieldChars:    len(raw),
			}).Debug("Extraction output rejected by quality gate")
			continue
		}

		attempt.OK = true
		res.Attempts = append(res.Attempts, attempt)
		res.Text = cleaned
		res.StrategyUsed = s.Name()

		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldStrategy:   s.Name(),
			logger.FieldChars:      len(cleaned),
			logger.FieldDurationMs: attempt.Duration.Milliseconds(),
		}).Info("Text extracted")
		return res
	}

	return res
}

// normalizeMediaType lowercases the declared type and strips parameters
// like charset.
func normalizeMediaType(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt
}
