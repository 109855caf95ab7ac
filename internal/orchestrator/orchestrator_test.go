// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pliegos/internal/browser"
	"github.com/pdiddy/pliegos/internal/dom"
	"github.com/pdiddy/pliegos/pkg/types"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTab struct {
	id     int
	url    string
	loaded chan struct{}
}

func (f *fakeTab) ID() int     { return f.id }
func (f *fakeTab) URL() string { return f.url }
func (f *fakeTab) WaitLoaded(ctx context.Context) error {
	select {
	case <-f.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (f *fakeTab) Inject(context.Context) error { return nil }
func (f *fakeTab) Snapshot(context.Context) (dom.DocumentView, error) {
	return nil, errors.New("not rendered")
}

type fakeProvider struct {
	mu     sync.Mutex
	next   int
	err    error
	opened [][]string
	tabs   []*fakeTab
}

func (p *fakeProvider) Open(_ context.Context, urls []string, _ bool) ([]browser.Tab, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.opened = append(p.opened, urls)
	var tabs []browser.Tab
	for _, u := range urls {
		p.next++
		t := &fakeTab{id: p.next, url: u, loaded: make(chan struct{})}
		p.tabs = append(p.tabs, t)
		tabs = append(tabs, t)
	}
	return tabs, nil
}

func (p *fakeProvider) Close() error { return nil }

type fakeInjector struct {
	mu       sync.Mutex
	injected []int
	fail     map[int]error
}

func (f *fakeInjector) Inject(_ context.Context, _ string, tab browser.Tab, _ *types.Sequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = append(f.injected, tab.ID())
	return f.fail[tab.ID()]
}

func (f *fakeInjector) tabs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.injected...)
}

type fakeSink struct {
	mu      sync.Mutex
	results []types.RunResult
}

func (s *fakeSink) SaveResult(_ context.Context, r types.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *fakeSink) saved() []types.RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RunResult(nil), s.results...)
}

type fakeProgress struct {
	mu      sync.Mutex
	updates []string
	cleared int
}

func (p *fakeProgress) Update(c, e int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, fmt.Sprintf("%d/%d", c, e))
}

func (p *fakeProgress) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []types.Summary
}

func (n *fakeNotifier) Notify(_ context.Context, s types.Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
}

type harness struct {
	o        *Orchestrator
	clock    *clockwork.FakeClock
	provider *fakeProvider
	injector *fakeInjector
	sink     *fakeSink
	progress *fakeProgress
	notifier *fakeNotifier
}

func newHarness() *harness {
	h := &harness{
		clock:    clockwork.NewFakeClockAt(epoch),
		provider: &fakeProvider{},
		injector: &fakeInjector{fail: map[int]error{}},
		sink:     &fakeSink{},
		progress: &fakeProgress{},
		notifier: &fakeNotifier{},
	}
	runs := 0
	h.o = New(Options{
		Provider: h.provider,
		Injector: h.injector,
		Sink:     h.sink,
		Progress: h.progress,
		Notifier: h.notifier,
		Clock:    h.clock,
		Logger:   log.New(io.Discard),
		NewRunID: func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		},
	})
	return h
}

var (
	urlA = "https://bnedigital.bne.es/bd/es/results?w=romance"
	urlB = "https://desenrollandoelcordel.unige.ch/search.html?query=romance"
	urlC = "https://www.red-aracne.es/busqueda/resultados.htm?tituloDescricion=romance"
)

func records(n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.Record{ID: fmt.Sprintf("bne_%d", i+1), Title: fmt.Sprintf("Romance %d", i+1), Source: "BNE Digital"}
	}
	return out
}

// noTimers fails unless no deadline is armed.
func (h *harness) noTimers(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 0))
}

func wait(t *testing.T, o *Orchestrator) types.RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := o.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestSuccessAndTimeout(t *testing.T) {
	h := newHarness()
	start, err := h.o.Start(context.Background(), StartRequest{Query: "romance", URLs: []string{urlA, urlB}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", start.RunID)
	assert.Equal(t, 2, start.TabsOpened)
	assert.Equal(t, Running, h.o.State())

	h.clock.Advance(4 * time.Second)
	h.o.FoldSuccess(start.RunID, types.JobResult{TabID: 1, Source: "BNE Digital", Hostname: "bnedigital.bne.es", Records: records(3)})
	h.clock.Advance(26 * time.Second)

	res := wait(t, h.o)
	assert.Equal(t, Idle, h.o.State())
	assert.Equal(t, "romance", res.Query)
	assert.Equal(t, 2, res.CompletedJobs)
	assert.Equal(t, 2, res.ExpectedJobs)
	require.Len(t, res.Results, 1)
	assert.Len(t, res.Results[0].Records, 3)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].TabID)
	assert.Equal(t, TimeoutMessage, res.Errors[0].Error)
	assert.Equal(t, "Desenrollando el cordel", res.Errors[0].Source)
	assert.Equal(t, "desenrollandoelcordel.unige.ch", res.Errors[0].Hostname)
	assert.Equal(t, int64(30000), res.Elapsed)
	assert.Equal(t, types.MillisOf(epoch), res.StartedAt)

	require.Len(t, h.sink.saved(), 1)
	assert.Equal(t, res, h.sink.saved()[0])
	assert.Equal(t, []string{"0/2", "1/2", "2/2"}, h.progress.updates)
	assert.Equal(t, 1, h.progress.cleared)
	require.Len(t, h.notifier.summaries, 1)
	assert.Equal(t, 3, h.notifier.summaries[0].TotalRecords)
	assert.Equal(t, 1, h.notifier.summaries[0].Succeeded)
	assert.Equal(t, 1, h.notifier.summaries[0].Failed)
}

func TestTimeoutAtExactlyThirtySeconds(t *testing.T) {
	h := newHarness()
	_, err := h.o.Start(context.Background(), StartRequest{Query: "q", URLs: []string{urlA}})
	require.NoError(t, err)

	h.clock.Advance(30*time.Second - time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	completed, expected := h.o.Counts()
	assert.Zero(t, completed)
	assert.Equal(t, 1, expected)
	assert.Equal(t, Running, h.o.State())

	h.clock.Advance(time.Millisecond)
	res := wait(t, h.o)
	assert.Equal(t, 1, res.CompletedJobs)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, TimeoutMessage, res.Errors[0].Error)
	assert.Empty(t, res.Results)
}

func TestFoldIsIdempotent(t *testing.T) {
	h := newHarness()
	start, err := h.o.Start(context.Background(), StartRequest{Query: "q", URLs: []string{urlA, urlB}})
	require.NoError(t, err)

	h.o.FoldSuccess(start.RunID, types.JobResult{TabID: 1, Records: records(1)})
	h.o.FoldSuccess(start.RunID, types.JobResult{TabID: 1, Records: records(2)})
	h.o.FoldFailure(start.RunID, types.JobError{TabID: 1, Error: "late"})
	h.o.FoldFailure("run-0", types.JobError{TabID: 2, Error: "straggler"})
	h.o.FoldFailure(start.RunID, types.JobError{TabID: 99, Error: "unknown tab"})

	completed, _ := h.o.Counts()
	assert.Equal(t, 1, completed)

	// tab 1's deadline was stopped by the fold
	h.clock.Advance(30 * time.Second)
	res := wait(t, h.o)
	require.Len(t, res.Results, 1)
	assert.Len(t, res.Results[0].Records, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].TabID)

	// outcomes after finalization change nothing
	h.o.FoldSuccess(start.RunID, types.JobResult{TabID: 2})
	assert.Len(t, h.sink.saved(), 1)
}

func TestFinalizesOnceInAnyOrder(t *testing.T) {
	outcomes := []func(o *Orchestrator, runID string){
		func(o *Orchestrator, runID string) {
			o.FoldSuccess(runID, types.JobResult{TabID: 1, Records: records(2)})
		},
		func(o *Orchestrator, runID string) {
			o.FoldFailure(runID, types.JobError{TabID: 2, Error: "boom"})
		},
		func(o *Orchestrator, runID string) {
			o.FoldSuccess(runID, types.JobResult{TabID: 3, Records: records(1)})
		},
	}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			h := newHarness()
			start, err := h.o.Start(context.Background(), StartRequest{Query: "q", URLs: []string{urlA, urlB, urlC}})
			require.NoError(t, err)

			for _, i := range order {
				outcomes[i](h.o, start.RunID)
			}
			res := wait(t, h.o)

			assert.Len(t, h.sink.saved(), 1)
			assert.Equal(t, 3, res.CompletedJobs)
			assert.Equal(t, 3, res.TotalRecords())
			assert.Len(t, res.Results, 2)
			assert.Len(t, res.Errors, 1)
			assert.Equal(t, res.CompletedJobs, len(res.Results)+len(res.Errors))

			// arrival order is preserved
			var want []int
			for _, i := range order {
				if i != 1 {
					want = append(want, i+1)
				}
			}
			assert.Equal(t, want, []int{res.Results[0].TabID, res.Results[1].TabID})
		})
	}
}

func TestConcurrentFolds(t *testing.T) {
	h := newHarness()
	urls := make([]string, 40)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s&s=%d", urlA, i*10)
	}
	start, err := h.o.Start(context.Background(), StartRequest{Query: "q", URLs: urls})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for id := 1; id <= len(urls); id++ {
		for dup := 0; dup < 3; dup++ {
			wg.Add(1)
			go func(id, dup int) {
				defer wg.Done()
				if (id+dup)%2 == 0 {
					h.o.FoldSuccess(start.RunID, types.JobResult{TabID: id})
				} else {
					h.o.FoldFailure(start.RunID, types.JobError{TabID: id, Error: "x"})
				}
			}(id, dup)
		}
	}
	wg.Wait()

	res := wait(t, h.o)
	assert.Equal(t, len(urls), res.CompletedJobs)
	assert.Equal(t, len(urls), len(res.Results)+len(res.Errors))
	assert.Len(t, h.sink.saved(), 1)
}

func TestStartWhileRunning(t *testing.T) {
	h := newHarness()
	first, err := h.o.Start(context.Background(), StartRequest{Query: "a", URLs: []string{urlA}})
	require.NoError(t, err)

	_, err = h.o.Start(context.Background(), StartRequest{Query: "b", URLs: []string{urlB}})
	assert.ErrorIs(t, err, ErrRunActive)

	h.o.FoldSuccess(first.RunID, types.JobResult{TabID: 1})
	wait(t, h.o)

	second, err := h.o.Start(context.Background(), StartRequest{Query: "b", URLs: []string{urlB}})
	require.NoError(t, err)
	assert.Equal(t, "run-2", second.RunID)

	// a straggler from the first run does not touch the second
	h.o.FoldFailure(first.RunID, types.JobError{TabID: 2, Error: "old"})
	completed, _ := h.o.Counts()
	assert.Zero(t, completed)
}

func TestStartProvisioningFailure(t *testing.T) {
	h := newHarness()
	h.provider.err = errors.New("window closed")

	_, err := h.o.Start(context.Background(), StartRequest{Query: "q", URLs: []string{urlA}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window closed")
	assert.Equal(t, Idle, h.o.State())
	h.noTimers(t)
	assert.Empty(t, h.sink.saved())

	_, err = h.o.Start(context.Background(), StartRequest{Query: "q"})
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestLoadWatcherInjects(t *testing.T) {
	h := newHarness()
	h.injector.fail[2] = errors.New("cannot access contents of the page")

	start, err := h.o.Start(context.Background(), StartRequest{Query: "q", URLs: []string{urlA, urlB}})
	require.NoError(t, err)

	close(h.provider.tabs[0].loaded)
	close(h.provider.tabs[1].loaded)

	// tab 2 folds as an injection failure; tab 1 reports normally
	assert.Eventually(t, func() bool {
		c, _ := h.o.Counts()
		return c == 1
	}, time.Second, 5*time.Millisecond)
	h.o.FoldSuccess(start.RunID, types.JobResult{TabID: 1})

	res := wait(t, h.o)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "injection failed: cannot access contents of the page", res.Errors[0].Error)
	assert.Eventually(t, func() bool { return len(h.injector.tabs()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int{1, 2}, h.injector.tabs())
}

func TestWaitWithoutRun(t *testing.T) {
	h := newHarness()
	_, err := h.o.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoRun)
	_, ok := h.o.Last()
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "finalizing", Finalizing.String())
}
