// Package processor turns pending documents into translated documents.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// ErrProcessorStopped is returned for work submitted after Stop
var ErrProcessorStopped = errors.New("processor stopped")

// ProcessingTask represents a document processing task with index for ordering
type ProcessingTask struct {
	Index    int
	Document domain.Document
	ctx      context.Context
	results  chan<- *ProcessingResult
}

// ProcessingResult represents a processing result with index for ordering
type ProcessingResult struct {
	Index    int
	Document domain.Document
	Error    error
}

// OrderedProcessor implements domain.DocumentProcessor with worker pool and order preservation
type OrderedProcessor struct {
	pipeline   domain.DocumentPipeline
	workers    int
	inputQueue chan *ProcessingTask
	wg         sync.WaitGroup
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	// Shutdown management
	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// NewDocumentProcessor creates a new ordered document processor with worker pool
func NewDocumentProcessor(pipeline domain.DocumentPipeline, workers int, queueSize int, logger *zap.Logger) *OrderedProcessor {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &OrderedProcessor{
		pipeline:     pipeline,
		workers:      workers,
		inputQueue:   make(chan *ProcessingTask, queueSize),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the worker pool
func (p *OrderedProcessor) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}

		p.logger.Info("ordered processor started",
			zap.Int("workers", p.workers),
		)
	})
}

// Stop stops the worker pool. Documents in flight are cancelled and keep their pre-phase status.
func (p *OrderedProcessor) Stop() {
	p.shutdownOnce.Do(func() {
		close(p.shutdownChan)
		p.cancel()

		// Wait for all workers to finish
		p.wg.Wait()

		p.logger.Info("ordered processor stopped")
	})
}

// ProcessDocuments runs every document through the pipeline on the worker pool.
// The order of results matches the order of input documents; per document
// failures are reported in ProcessedDocument.Error, not as the returned error.
func (p *OrderedProcessor) ProcessDocuments(ctx context.Context, documents []domain.Document) ([]*domain.ProcessedDocument, error) {
	if len(documents) == 0 {
		return []*domain.ProcessedDocument{}, nil
	}

	// every call collects on its own channel so concurrent batches never mix
	results := make(chan *ProcessingResult, len(documents))

	sent := 0
	for i, doc := range documents {
		task := &ProcessingTask{
			Index:    i,
			Document: doc,
			ctx:      ctx,
			results:  results,
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.shutdownChan:
			return nil, ErrProcessorStopped
		case p.inputQueue <- task:
			sent++
		}
	}

	// Collect results with order preservation
	resultsMap := make(map[int]*ProcessingResult, sent)
	for len(resultsMap) < sent {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.shutdownChan:
			return nil, ErrProcessorStopped
		case result := <-results:
			resultsMap[result.Index] = result
		}
	}

	processedDocs := make([]*domain.ProcessedDocument, len(documents))
	for i := range documents {
		result := resultsMap[i]
		processedDocs[i] = &domain.ProcessedDocument{
			Document: result.Document,
			Error:    result.Error,
		}
	}

	return processedDocs, nil
}

// worker processes tasks from the input queue
func (p *OrderedProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-p.shutdownChan:
			p.logger.Debug("worker stopping due to shutdown",
				zap.Int("worker_id", id),
			)
			return
		case task := <-p.inputQueue:
			result := p.processDocument(id, task)

			// results is buffered for the whole batch
			task.results <- result
		}
	}
}

// processDocument runs one document through the pipeline. The task context and
// the processor lifetime both cancel the run.
func (p *OrderedProcessor) processDocument(workerID int, task *ProcessingTask) *ProcessingResult {
	start := time.Now()

	ctx, cancel := context.WithCancel(task.ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	p.logger.Debug("processing document",
		zap.Int("worker_id", workerID),
		zap.String("doc_id", task.Document.ID.String()),
		zap.Int("pages", task.Document.PageCount()),
	)

	doc, err := p.pipeline.Process(ctx, task.Document)

	p.logger.Debug("document processed",
		zap.Int("worker_id", workerID),
		zap.String("doc_id", task.Document.ID.String()),
		zap.String("status", string(doc.Status)),
		zap.Duration("duration", time.Since(start)),
	)

	return &ProcessingResult{
		Index:    task.Index,
		Document: doc,
		Error:    err,
	}
}

// Verify that OrderedProcessor implements domain.DocumentProcessor interface
var _ domain.DocumentProcessor = (*OrderedProcessor)(nil)
