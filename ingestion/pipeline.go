package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/pagewise/ai"
	"github.com/poiesic/pagewise/chunker"
	"github.com/poiesic/pagewise/storage"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultQueueSize is the number of events Submit buffers before ErrQueueFull.
	DefaultQueueSize = 256

	// DefaultReleaseTimeout bounds how long Release waits for queued work.
	DefaultReleaseTimeout = 30 * time.Second
)

// Pipeline ingests documents into a vector repository.
type Pipeline struct {
	proc           processor
	pool           *ants.Pool
	queue          chan job
	poolSize       int
	queueSize      int
	releaseTimeout time.Duration
	maxChars       int
	overlap        int
	whitelist      map[string]struct{}
	registerer     prometheus.Registerer
	hook           ResultHook
	metrics        *metrics
	logger         *slog.Logger

	// ctx is cancelled when Release gives up waiting, aborting in-flight runs.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	closed     bool
	inflight   sync.WaitGroup
	dispatched chan struct{}
}

type job struct {
	documentID string
	runID      string
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithQueueSize sets the capacity of the event queue.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("queue size must be at least 1, got %d", size)
		}
		p.queueSize = size
		return nil
	}
}

// WithReleaseTimeout sets how long Release waits for queued work.
func WithReleaseTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout > 0 {
			p.releaseTimeout = timeout
		}
		return nil
	}
}

// WithChunking sets the chunk size and overlap in runes.
func WithChunking(maxChars, overlap int) Option {
	return func(p *Pipeline) error {
		p.maxChars, p.overlap = chunker.Options(maxChars, overlap)
		return nil
	}
}

// WithSpaceWhitelist restricts ingestion to the given space keys.
// Documents from other spaces are skipped. An empty list allows every space.
func WithSpaceWhitelist(spaces ...string) Option {
	return func(p *Pipeline) error {
		p.whitelist = make(map[string]struct{}, len(spaces))
		for _, space := range spaces {
			if space = strings.ToUpper(strings.TrimSpace(space)); space != "" {
				p.whitelist[space] = struct{}{}
			}
		}
		return nil
	}
}

// WithRegisterer registers the pipeline metrics with reg.
// Without it metrics are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pipeline) error {
		p.registerer = reg
		return nil
	}
}

// WithResultHook sets a function called after every background run.
func WithResultHook(hook ResultHook) Option {
	return func(p *Pipeline) error {
		p.hook = hook
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline reading from source and writing to vectors.
func NewPipeline(
	source DocumentSource,
	vectors storage.VectorRepository,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pipeline{
		poolSize:       poolSize,
		queueSize:      DefaultQueueSize,
		releaseTimeout: DefaultReleaseTimeout,
		maxChars:       chunker.DefaultMaxChars,
		overlap:        chunker.DefaultOverlap,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	m, err := newMetrics(p.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	p.metrics = m

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.proc = &documentProcessor{
		source:    source,
		vectors:   vectors,
		embedder:  provider.Embedder(),
		chunker:   chunker.New(p.maxChars, p.overlap),
		whitelist: p.whitelist,
		metrics:   m,
		logger:    p.logger,
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.queue = make(chan job, p.queueSize)
	p.dispatched = make(chan struct{})
	go p.dispatch()

	return p, nil
}

// Ingest runs every stage for documentID and waits for the outcome.
// Failures are returned as *StageError.
func (p *Pipeline) Ingest(ctx context.Context, documentID string) (*Result, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, ErrDocumentIDRequired
	}
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPipelineClosed
	}

	result, err := p.proc.process(ctx, documentID, uuid.NewString())
	p.metrics.finished(result, err)
	return result, err
}

// Submit enqueues event for background ingestion and returns immediately.
// Events whose kind is not created or updated return ErrIgnoredEvent.
func (p *Pipeline) Submit(event Event) error {
	if !event.Kind.Ingestable() {
		return fmt.Errorf("%w: kind %q", ErrIgnoredEvent, event.Kind)
	}
	documentID := strings.TrimSpace(event.DocumentID)
	if documentID == "" {
		return ErrDocumentIDRequired
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}

	j := job{documentID: documentID, runID: uuid.NewString()}
	select {
	case p.queue <- j:
		p.metrics.queueDepth.Inc()
		p.logger.Debug("event queued", "document_id", documentID, "run_id", j.runID, "kind", event.Kind)
		return nil
	default:
		return ErrQueueFull
	}
}

// dispatch feeds queued jobs to the worker pool until the queue is closed.
// pool.Submit blocks while every worker is busy, which keeps the backlog in the queue.
func (p *Pipeline) dispatch() {
	defer close(p.dispatched)
	for j := range p.queue {
		p.metrics.queueDepth.Dec()
		p.inflight.Add(1)
		err := p.pool.Submit(func() {
			defer p.inflight.Done()
			p.run(j)
		})
		if err != nil {
			p.inflight.Done()
			p.logger.Error("error scheduling ingestion", "document_id", j.documentID, "run_id", j.runID, "err", err)
			p.report(nil, err)
		}
	}
}

func (p *Pipeline) run(j job) {
	result, err := p.proc.process(p.ctx, j.documentID, j.runID)
	p.metrics.finished(result, err)
	if err != nil {
		args := []any{"document_id", j.documentID, "run_id", j.runID, "err", err}
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			args = append(args, "stage", stageErr.Stage)
		}
		p.logger.Error("error ingesting document", args...)
	}
	p.report(result, err)
}

func (p *Pipeline) report(result *Result, err error) {
	if p.hook != nil {
		p.hook(result, err)
	}
}

// QueueLength returns the number of events waiting for a worker.
func (p *Pipeline) QueueLength() int {
	return len(p.queue)
}

// Release stops accepting events and waits up to the release timeout for
// queued and running work. Work still running after the timeout is cancelled.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		<-p.dispatched
		p.inflight.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-time.After(p.releaseTimeout):
		p.logger.Warn("release timed out, cancelling in-flight ingestion", "timeout", p.releaseTimeout)
		err = ErrReleaseTimeout
	}
	p.cancel()
	p.pool.Release()
	return err
}
