package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/extract"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/reader"
)

// TextReader yields raw text for a stored document.
type TextReader interface {
	Extract(ctx context.Context, path string) (reader.Extraction, error)
}

// Renderer produces the downloadable summary artifact for a result.
type Renderer interface {
	Render(r *entity.Result) (string, error)
}

// ResultSaver persists completed results.
type ResultSaver interface {
	Save(ctx context.Context, r *entity.Result) error
}

// Publisher receives progress events for fan-out.
type Publisher interface {
	Publish(ev entity.ProgressEvent)
}

// Orchestrator drives submitted files through read → extract → persist →
// render on a fixed worker pool. Each job has a single writer: the worker
// that dequeued it.
type Orchestrator struct {
	reader    TextReader
	extractor extract.FieldExtractor
	saver     ResultSaver
	renderer  Renderer
	pub       Publisher
	logger    *slog.Logger

	workers     int
	timeout     time.Duration
	maxAttempts int
	retryBase   time.Duration

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	// closeMu guards queue lifecycle so a Submit in flight can never race a
	// close of the channel; mu guards the jobs map only.
	closeMu sync.RWMutex
	closed  bool

	mu   sync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	job  *entity.Job
	done chan struct{}
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.ch = make(chan string, n)
		}
	}
}
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(o *Orchestrator) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if base > 0 {
			o.retryBase = base
		}
	}
}

func New(rd TextReader, ex extract.FieldExtractor, sv ResultSaver, rn Renderer, pub Publisher, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		reader:      rd,
		extractor:   ex,
		saver:       sv,
		renderer:    rn,
		pub:         pub,
		logger:      logger,
		workers:     4,
		timeout:     10 * time.Minute,
		maxAttempts: 3,
		retryBase:   500 * time.Millisecond,
		ch:          make(chan string, 256),
		jobs:        make(map[string]*jobState),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.start()
	return o
}

func (o *Orchestrator) start() {
	o.once.Do(func() {
		for i := 0; i < o.workers; i++ {
			o.wg.Add(1)
			go func(workerID int) {
				defer o.wg.Done()
				o.logger.Info("worker started", "worker_id", workerID)

				for jobID := range o.ch {
					ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
					o.process(ctx, jobID, workerID)
					cancel()
				}

				o.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Submit registers a job for fileName (stored at sourcePath) and queues it.
// The returned snapshot has status queued. Unknown doc types are rejected
// before any job exists.
func (o *Orchestrator) Submit(ctx context.Context, fileName, sourcePath string, docType constants.DocType) (entity.Job, error) {
	if _, ok := extract.SchemaFor(docType); !ok {
		return entity.Job{}, fmt.Errorf("unknown doc type %q", docType)
	}

	job := &entity.Job{
		ID:         uuid.NewString(),
		FileName:   fileName,
		SourcePath: sourcePath,
		DocType:    docType,
		Status:     constants.JobStatusQueued,
		CreatedAt:  time.Now().UTC(),
	}
	st := &jobState{job: job, done: make(chan struct{})}

	o.closeMu.RLock()
	if o.closed {
		o.closeMu.RUnlock()
		return entity.Job{}, fmt.Errorf("orchestrator is shutting down")
	}

	o.mu.Lock()
	o.jobs[job.ID] = st
	o.mu.Unlock()

	select {
	case o.ch <- job.ID:
		o.closeMu.RUnlock()
	case <-ctx.Done():
		o.closeMu.RUnlock()
		o.failJob(job.ID, common.NewError(common.KindExtractionFailed, "submission cancelled", ctx.Err()))
		return o.snapshot(job.ID), ctx.Err()
	}

	o.logger.Info("job queued", "job_id", job.ID, "file", fileName, "doc_type", docType)
	return o.snapshot(job.ID), nil
}

// SubmitWait submits and blocks until the job reaches a terminal state or
// ctx expires. The synchronous upload route is built on this.
func (o *Orchestrator) SubmitWait(ctx context.Context, fileName, sourcePath string, docType constants.DocType) (entity.Job, error) {
	snap, err := o.Submit(ctx, fileName, sourcePath, docType)
	if err != nil {
		return snap, err
	}
	o.mu.Lock()
	st := o.jobs[snap.ID]
	o.mu.Unlock()

	select {
	case <-st.done:
		return o.snapshot(snap.ID), nil
	case <-ctx.Done():
		return o.snapshot(snap.ID), ctx.Err()
	}
}

// Job returns a snapshot of one job.
func (o *Orchestrator) Job(id string) (entity.Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.jobs[id]
	if !ok {
		return entity.Job{}, false
	}
	return *st.job, true
}

// Jobs returns snapshots of every known job, newest first.
func (o *Orchestrator) Jobs() []entity.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]entity.Job, 0, len(o.jobs))
	for _, st := range o.jobs {
		out = append(out, *st.job)
	}
	sortJobsNewestFirst(out)
	return out
}

// Shutdown stops intake and waits for in-flight jobs to drain, bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.closeMu.Lock()
	if o.closed {
		o.closeMu.Unlock()
		return
	}
	o.closed = true
	close(o.ch)
	o.closeMu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); o.wg.Wait() }()

	select {
	case <-ctx.Done():
		o.logger.Warn("shutdown interrupted by context")
	case <-done:
		o.logger.Info("orchestrator drained, shutdown complete")
	}
}

func (o *Orchestrator) process(ctx context.Context, jobID string, workerID int) {
	o.mu.Lock()
	st, ok := o.jobs[jobID]
	o.mu.Unlock()
	if !ok {
		return
	}
	job := st.job
	start := time.Now()

	o.setStage(jobID, constants.JobStatusExtractingText, 10)
	ext, err := o.reader.Extract(ctx, job.SourcePath)
	if err != nil {
		o.failJob(jobID, err)
		return
	}

	o.setStage(jobID, constants.JobStatusExtractingFields, 40)
	fields, err := o.extractWithRetry(ctx, extract.Request{
		Text:         ext.Text,
		DocType:      job.DocType,
		FilenameHint: job.FileName,
	})
	if err != nil {
		o.failJob(jobID, err)
		return
	}

	o.setStage(jobID, constants.JobStatusGeneratingOutput, 80)
	structured, err := json.Marshal(fields.Fields)
	if err != nil {
		o.failJob(jobID, common.NewError(common.KindExtractionFailed, "encode structured data", err))
		return
	}
	// a result carries its originating job's id; Save is INSERT-only, so
	// job-id uniqueness makes the write-once guarantee hold
	result := &entity.Result{
		ID:             job.ID,
		FileName:       job.FileName,
		DocType:        job.DocType,
		RawText:        ext.Text,
		StructuredData: structured,
		Confidence:     fields.Confidence,
		PageCount:      ext.Pages,
		ProcessingMS:   time.Since(start).Milliseconds(),
		SourcePath:     job.SourcePath,
		ProcessedAt:    time.Now().UTC(),
	}

	degraded := false
	outPath, renderErr := o.renderer.Render(result)
	if renderErr != nil {
		// the summary artifact is best-effort; the extraction still counts
		degraded = true
		o.logger.Warn("render failed, completing degraded",
			"worker_id", workerID, "job_id", jobID, "error", renderErr)
	} else {
		result.OutputPath = outPath
	}
	result.ProcessingMS = time.Since(start).Milliseconds()

	if err := o.saver.Save(ctx, result); err != nil {
		o.failJob(jobID, common.NewError(common.KindExtractionFailed, "persist result", err))
		return
	}

	o.completeJob(jobID, result.ID, degraded)
	o.logger.Info("job completed",
		"worker_id", workerID,
		"job_id", jobID,
		"result_id", result.ID,
		"degraded", degraded,
		"elapsed_ms", time.Since(start).Milliseconds())
}

// extractWithRetry retries only service-unavailable failures, with doubling
// backoff from the configured base.
func (o *Orchestrator) extractWithRetry(ctx context.Context, req extract.Request) (extract.Extraction, error) {
	var lastErr error
	backoff := o.retryBase
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		ext, err := o.extractor.ExtractFields(ctx, req)
		if err == nil {
			return ext, nil
		}
		lastErr = err
		if !common.IsRetryable(err) || attempt == o.maxAttempts {
			break
		}
		o.logger.Warn("extraction unavailable, retrying",
			"attempt", attempt, "max_attempts", o.maxAttempts, "backoff", backoff.String())
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return extract.Extraction{}, common.NewError(common.KindExtractionUnavailable, "extraction cancelled", ctx.Err())
		}
		backoff *= 2
	}
	return extract.Extraction{}, lastErr
}

func (o *Orchestrator) setStage(jobID string, status constants.JobStatus, pct int) {
	o.mu.Lock()
	st, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	st.job.Status = status
	st.job.ProgressPct = pct
	job := *st.job
	o.mu.Unlock()

	o.pub.Publish(entity.ProgressEvent{
		Type:        entity.EventUpdate,
		JobID:       job.ID,
		CurrentFile: job.FileName,
		DocType:     job.DocType,
		Status:      job.Status,
		ProgressPct: job.ProgressPct,
	})
}

func (o *Orchestrator) completeJob(jobID, resultID string, degraded bool) {
	o.mu.Lock()
	st, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	st.job.Status = constants.JobStatusCompleted
	st.job.ProgressPct = 100
	st.job.CompletedAt = &now
	st.job.ResultID = resultID
	st.job.Degraded = degraded
	job := *st.job
	o.mu.Unlock()

	msg := ""
	if degraded {
		msg = "summary document could not be generated"
	}
	o.pub.Publish(entity.ProgressEvent{
		Type:        entity.EventComplete,
		JobID:       job.ID,
		CurrentFile: job.FileName,
		DocType:     job.DocType,
		Status:      job.Status,
		ProgressPct: 100,
		ResultID:    resultID,
		Degraded:    degraded,
		Message:     msg,
	})
	close(st.done)
}

func (o *Orchestrator) failJob(jobID string, err error) {
	o.mu.Lock()
	st, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	st.job.Status = constants.JobStatusFailed
	st.job.CompletedAt = &now
	st.job.Error = err.Error()
	st.job.ErrorKind = string(common.KindOf(err))
	job := *st.job
	o.mu.Unlock()

	o.logger.Error("job failed", "job_id", job.ID, "file", job.FileName, "kind", job.ErrorKind, "error", err)
	o.pub.Publish(entity.ProgressEvent{
		Type:        entity.EventFailed,
		JobID:       job.ID,
		CurrentFile: job.FileName,
		DocType:     job.DocType,
		Status:      job.Status,
		ProgressPct: job.ProgressPct,
		ErrorKind:   job.ErrorKind,
		Message:     job.Error,
	})
	close(st.done)
}

func (o *Orchestrator) snapshot(jobID string) entity.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.jobs[jobID]; ok {
		return *st.job
	}
	return entity.Job{}
}

func sortJobsNewestFirst(jobs []entity.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
