package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinozorionktr/Ollama-OS-OCR/constants"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/common"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/extract"
	"github.com/antinozorionktr/Ollama-OS-OCR/internal/reader"
)

type fakeReader struct {
	err error
}

func (f *fakeReader) Extract(_ context.Context, path string) (reader.Extraction, error) {
	if f.err != nil {
		return reader.Extraction{}, f.err
	}
	return reader.Extraction{Text: "text from " + path, Pages: 1, Method: "pdf-text", Confidence: 0.9}, nil
}

type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many calls with unavailable before succeeding
	err      error
}

func (f *fakeExtractor) ExtractFields(_ context.Context, req extract.Request) (extract.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return extract.Extraction{}, f.err
	}
	if f.calls <= f.failures {
		return extract.Extraction{}, common.Errorf(common.KindExtractionUnavailable, "service down")
	}
	return extract.Extraction{
		Fields:     map[string]any{"invoice_number": "INV-1"},
		Confidence: 0.75,
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []*entity.Result
	err   error
}

func (f *fakeSaver) Save(_ context.Context, r *entity.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(r *entity.Result) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/out/" + r.ID + ".docx", nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
}

func (p *capturingPublisher) Publish(ev entity.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *capturingPublisher) forJob(id string) []entity.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []entity.ProgressEvent
	for _, ev := range p.events {
		if ev.JobID == id {
			out = append(out, ev)
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, rd TextReader, ex extract.FieldExtractor, sv ResultSaver, rn Renderer, pub Publisher, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(rd, ex, sv, rn, pub, nil, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})
	return o
}

func TestSubmitWaitHappyPath(t *testing.T) {
	pub := &capturingPublisher{}
	sv := &fakeSaver{}
	o := newTestOrchestrator(t, &fakeReader{}, &fakeExtractor{}, sv, &fakeRenderer{}, pub)

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.ProgressPct)
	assert.NotEmpty(t, job.ResultID)
	assert.False(t, job.Degraded)
	require.Equal(t, 1, sv.count())
	assert.NotEmpty(t, sv.saved[0].OutputPath)
}

func TestResultCarriesJobID(t *testing.T) {
	sv := &fakeSaver{}
	o := newTestOrchestrator(t, &fakeReader{}, &fakeExtractor{}, sv, &fakeRenderer{}, &capturingPublisher{})

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, job.ID, job.ResultID)
	require.Equal(t, 1, sv.count())
	assert.Equal(t, job.ID, sv.saved[0].ID)
}

func TestEventOrderThroughStages(t *testing.T) {
	pub := &capturingPublisher{}
	o := newTestOrchestrator(t, &fakeReader{}, &fakeExtractor{}, &fakeSaver{}, &fakeRenderer{}, pub)

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)

	events := pub.forJob(job.ID)
	require.Len(t, events, 4)
	assert.Equal(t, []int{10, 40, 80, 100},
		[]int{events[0].ProgressPct, events[1].ProgressPct, events[2].ProgressPct, events[3].ProgressPct})
	assert.Equal(t, entity.EventUpdate, events[0].Type)
	assert.Equal(t, entity.EventComplete, events[3].Type)
	assert.Equal(t, job.ResultID, events[3].ResultID)
}

func TestUnknownDocTypeRejectedBeforeJobExists(t *testing.T) {
	o := newTestOrchestrator(t, &fakeReader{}, &fakeExtractor{}, &fakeSaver{}, &fakeRenderer{}, &capturingPublisher{})

	_, err := o.Submit(context.Background(), "x.pdf", "/tmp/x.pdf", constants.DocType("memo"))
	require.Error(t, err)
	assert.Empty(t, o.Jobs())
}

func TestRetryTransientThenSucceed(t *testing.T) {
	ex := &fakeExtractor{failures: 2}
	o := newTestOrchestrator(t, &fakeReader{}, ex, &fakeSaver{}, &fakeRenderer{}, &capturingPublisher{},
		WithRetry(3, time.Millisecond))

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, ex.callCount())
}

func TestRetryBudgetExhausted(t *testing.T) {
	ex := &fakeExtractor{failures: 10}
	sv := &fakeSaver{}
	o := newTestOrchestrator(t, &fakeReader{}, ex, sv, &fakeRenderer{}, &capturingPublisher{},
		WithRetry(3, time.Millisecond))

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	assert.Equal(t, string(common.KindExtractionUnavailable), job.ErrorKind)
	assert.Equal(t, 3, ex.callCount())
	assert.Zero(t, sv.count(), "failed jobs must not persist results")
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	ex := &fakeExtractor{err: common.Errorf(common.KindExtractionFailed, "bad output")}
	o := newTestOrchestrator(t, &fakeReader{}, ex, &fakeSaver{}, &fakeRenderer{}, &capturingPublisher{},
		WithRetry(5, time.Millisecond))

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	assert.Equal(t, 1, ex.callCount())
}

func TestUnreadableDocumentFailsJob(t *testing.T) {
	rd := &fakeReader{err: common.Errorf(common.KindUnreadableDocument, "no text")}
	pub := &capturingPublisher{}
	o := newTestOrchestrator(t, rd, &fakeExtractor{}, &fakeSaver{}, &fakeRenderer{}, pub)

	job, err := o.SubmitWait(context.Background(), "bad.pdf", "/tmp/bad.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	assert.Equal(t, string(common.KindUnreadableDocument), job.ErrorKind)

	events := pub.forJob(job.ID)
	require.NotEmpty(t, events)
	assert.Equal(t, entity.EventFailed, events[len(events)-1].Type)
}

func TestRenderFailureCompletesDegraded(t *testing.T) {
	sv := &fakeSaver{}
	rn := &fakeRenderer{err: common.Errorf(common.KindRenderFailed, "disk full")}
	pub := &capturingPublisher{}
	o := newTestOrchestrator(t, &fakeReader{}, &fakeExtractor{}, sv, rn, pub)

	job, err := o.SubmitWait(context.Background(), "inv.pdf", "/tmp/inv.pdf", constants.Invoice)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.True(t, job.Degraded)
	require.Equal(t, 1, sv.count())
	assert.Empty(t, sv.saved[0].OutputPath)

	events := pub.forJob(job.ID)
	last := events[len(events)-1]
	assert.Equal(t, entity.EventComplete, last.Type)
	assert.True(t, last.Degraded)
	assert.NotEmpty(t, last.Message)
}

func TestConcurrentMixedSubmissions(t *testing.T) {
	const n = 24
	sv := &fakeSaver{}
	o := newTestOrchestrator(t, &fakeReader{}, &fakeExtractor{}, sv, &fakeRenderer{}, &capturingPublisher{},
		WithWorkers(6))

	docTypes := []constants.DocType{constants.Invoice, constants.Contract, constants.CRAC}
	var wg sync.WaitGroup
	jobIDs := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := o.SubmitWait(context.Background(),
				fmt.Sprintf("doc-%d.pdf", i), fmt.Sprintf("/tmp/doc-%d.pdf", i), docTypes[i%len(docTypes)])
			require.NoError(t, err)
			jobIDs[i] = job.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	results := make(map[string]bool, n)
	for _, id := range jobIDs {
		job, ok := o.Job(id)
		require.True(t, ok)
		assert.True(t, job.Status.IsTerminal())
		assert.Equal(t, constants.JobStatusCompleted, job.Status)
		assert.False(t, seen[job.ID], "duplicate job id")
		seen[job.ID] = true
		assert.False(t, results[job.ResultID], "duplicate result id")
		results[job.ResultID] = true
	}
	assert.Equal(t, n, sv.count())
	assert.Len(t, o.Jobs(), n)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	o := New(&fakeReader{}, &fakeExtractor{}, &fakeSaver{}, &fakeRenderer{}, &capturingPublisher{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o.Shutdown(ctx)

	_, err := o.Submit(context.Background(), "x.pdf", "/tmp/x.pdf", constants.Invoice)
	require.Error(t, err)
}
