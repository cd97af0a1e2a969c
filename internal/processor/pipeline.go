package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// Recognizer extracts text from one page image
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, hint *domain.Language) (domain.RecognizedText, error)
}

// Translator translates the text of one page
type Translator interface {
	Translate(ctx context.Context, text string, from, to domain.Language) (string, error)
}

// Observer receives every snapshot the pipeline publishes
type Observer func(doc domain.Document)

// Pipeline drives a document through recognition and then translation.
// Every phase works on its own deep copy; values handed to callers are never touched again.
type Pipeline struct {
	recognizer Recognizer
	translator Translator
	logger     *zap.Logger

	observer           Observer
	timeout            time.Duration
	recognitionWorkers int
}

// PipelineOption configures the pipeline
type PipelineOption func(*Pipeline)

// WithObserver publishes snapshots at each status change
func WithObserver(observer Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = observer
	}
}

// WithTimeout bounds a single Process call
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithRecognitionWorkers recognizes up to n pages of one document concurrently
func WithRecognitionWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.recognitionWorkers = n
		}
	}
}

// NewPipeline creates a document pipeline
func NewPipeline(recognizer Recognizer, translator Translator, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		recognizer:         recognizer,
		translator:         translator,
		logger:             logger,
		recognitionWorkers: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs recognition over all pages, then translation over all pages.
// On a stage failure the returned snapshot has status failed and err carries the page.
// On cancellation the snapshot keeps the status it had before the interrupted phase.
func (p *Pipeline) Process(ctx context.Context, doc domain.Document) (domain.Document, error) {
	snapshot := doc.Clone()

	if snapshot.Status.IsTerminal() {
		return snapshot, fmt.Errorf("document %s is %s: %w", doc.ID, doc.Status, domain.ErrTerminalStatus)
	}
	if len(snapshot.Pages) == 0 {
		return snapshot, fmt.Errorf("document %s: %w", doc.ID, domain.ErrEmptyDocument)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	logger := p.logger.With(
		zap.String("doc_id", doc.ID.String()),
		zap.Int("pages", len(doc.Pages)),
		zap.String("source", doc.SourceLanguage.Code),
		zap.String("target", doc.TargetLanguage.Code),
	)
	logger.Info("document processing started")

	// Phase 1: recognition
	before := snapshot.Status
	recognizing := snapshot.Clone()
	recognizing.Status = domain.StatusRecognizing
	p.publish(recognizing)

	recognized, err := p.recognizeAll(ctx, recognizing)
	if err != nil {
		return p.abort(ctx, logger, recognized, before, domain.StatusRecognizing, err)
	}

	// Phase 2: translation
	before = recognized.Status
	translating := recognized.Clone()
	translating.Status = domain.StatusTranslating
	p.publish(translating)

	translated, err := p.translateAll(ctx, logger, translating)
	if err != nil {
		return p.abort(ctx, logger, translated, before, domain.StatusTranslating, err)
	}

	completed := translated.Clone()
	completed.Status = domain.StatusCompleted
	p.publish(completed)

	logger.Info("document processing completed", zap.Duration("duration", time.Since(start)))
	return completed, nil
}

// abort builds the snapshot returned when a phase stops early
func (p *Pipeline) abort(ctx context.Context, logger *zap.Logger, doc domain.Document, before, phase domain.ProcessingStatus, err error) (domain.Document, error) {
	out := doc.Clone()

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		out.Status = domain.StatusFailed
		err = &domain.TimeoutError{Phase: phase, Err: err}
		logger.Warn("document processing timed out", zap.String("phase", string(phase)), zap.Error(err))

	case errors.Is(err, context.Canceled):
		// no partial status promotion on cancellation
		out.Status = before
		logger.Info("document processing cancelled", zap.String("phase", string(phase)))
		return out, err

	default:
		out.Status = domain.StatusFailed
		logger.Error("document processing failed", zap.String("phase", string(phase)), zap.Error(err))
	}

	p.publish(out)
	return out, err
}

// recognizeAll fills RecognizedText on every page. The returned document always
// holds the pages that finished, even when err is set.
func (p *Pipeline) recognizeAll(ctx context.Context, doc domain.Document) (domain.Document, error) {
	var hint *domain.Language
	if !doc.SourceLanguage.IsAuto() {
		lang := doc.SourceLanguage
		hint = &lang
	}

	order := pageOrder(doc.Pages)
	results := make([]*string, len(doc.Pages))

	recognizePage := func(ctx context.Context, idx int) error {
		page := doc.Pages[idx]
		if page.HasRecognizedText() {
			return nil
		}
		result, err := p.recognizer.Recognize(ctx, page.ImageData, hint)
		if err != nil {
			return &domain.PageError{PageNumber: page.PageNumber, Err: err}
		}
		text := result.Text
		results[idx] = &text
		return nil
	}

	var err error
	if p.recognitionWorkers <= 1 {
		for _, idx := range order {
			if err = ctx.Err(); err != nil {
				break
			}
			if err = recognizePage(ctx, idx); err != nil {
				break
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.recognitionWorkers)
		for _, idx := range order {
			idx := idx
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return recognizePage(gctx, idx)
			})
		}
		err = g.Wait()
	}

	// each slot is written by exactly one goroutine, so the merge happens after all of them returned
	out := doc.Clone()
	for idx, text := range results {
		if text != nil {
			out.Pages[idx] = out.Pages[idx].WithRecognizedText(*text)
		}
	}
	return out, err
}

// translateAll fills TranslatedText on every recognized page in page order.
// A page without recognized text is skipped and the rest are still translated;
// the first such page is then reported as a DataIntegrityError so the run never completes.
func (p *Pipeline) translateAll(ctx context.Context, logger *zap.Logger, doc domain.Document) (domain.Document, error) {
	out := doc.Clone()
	var integrityErr error

	for _, idx := range pageOrder(out.Pages) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		page := out.Pages[idx]
		if !page.HasRecognizedText() {
			err := &domain.DataIntegrityError{PageNumber: page.PageNumber, Reason: "missing recognized text"}
			logger.Warn("skipping page", zap.Error(err))
			if integrityErr == nil {
				integrityErr = err
			}
			continue
		}
		if page.HasTranslatedText() {
			continue
		}

		translated, err := p.translator.Translate(ctx, *page.RecognizedText, out.SourceLanguage, out.TargetLanguage)
		if err != nil {
			return out, &domain.PageError{PageNumber: page.PageNumber, Err: err}
		}
		out.Pages[idx] = page.WithTranslatedText(translated)
	}
	return out, integrityErr
}

func (p *Pipeline) publish(doc domain.Document) {
	if p.observer != nil {
		p.observer(doc.Clone())
	}
}

// pageOrder returns page indexes sorted by page number
func pageOrder(pages []domain.DocumentPage) []int {
	order := make([]int, len(pages))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pages[order[a]].PageNumber < pages[order[b]].PageNumber
	})
	return order
}

var _ domain.DocumentPipeline = (*Pipeline)(nil)
