// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator owns the run-level state machine of a search: it
// opens one tab per target URL, arms a load watcher and a deadline for
// each, folds every job outcome exactly once and finalizes the run when
// all jobs are accounted for.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pdiddy/pliegos/internal/browser"
	"github.com/pdiddy/pliegos/internal/sources"
	"github.com/pdiddy/pliegos/pkg/types"
)

var (
	// ErrRunActive is returned by Start while another run is in progress.
	ErrRunActive = errors.New("a search is already running")

	// ErrNoURLs is returned by Start when there is nothing to open.
	ErrNoURLs = errors.New("no urls to open")

	// ErrNoRun is returned by Wait before any run has started.
	ErrNoRun = errors.New("no run")
)

// TimeoutMessage is the error recorded for a job that did not report in
// time.
const TimeoutMessage = "load timeout"

// State is the orchestrator's lifecycle phase.
type State int

const (
	Idle State = iota
	Running
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Injector starts the page agent in a loaded tab.
type Injector interface {
	Inject(ctx context.Context, runID string, tab browser.Tab, seq *types.Sequence) error
}

// Progress shows "completed/expected" while a run is active.
type Progress interface {
	Update(completed, expected int)
	Clear()
}

// Notifier announces a finished run.
type Notifier interface {
	Notify(ctx context.Context, s types.Summary)
}

// Sink persists finished runs.
type Sink interface {
	SaveResult(ctx context.Context, r types.RunResult) error
}

// Options wires an Orchestrator. Provider is required; the rest default to no-ops, the wall clock and the default logger.
type Options struct {
	Provider   browser.Provider
	Injector   Injector
	Sink       Sink
	Progress   Progress
	Notifier   Notifier
	Clock      clockwork.Clock
	Logger     *log.Logger
	JobTimeout time.Duration

	// NewRunID overrides run id generation.
	NewRunID func() string
}

// Orchestrator runs one search at a time.
type Orchestrator struct {
	opts Options

	mu    sync.Mutex
	state State
	run   *runState
	last  *types.RunResult
}

// New returns an idle Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Progress == nil {
		opts.Progress = nopProgress{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{opts: opts}
}

// runState is the in-flight aggregate of one run. It is only touched with
// Orchestrator.mu held.
type runState struct {
	id        string
	query     string
	expected  int
	completed int
	results   []types.JobResult
	errors    []types.JobError
	startedAt time.Time

	seq      types.Sequence
	jobs     map[int]*job
	recorded map[int]bool

	// ctx scopes the load watchers and page agents of the run.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result types.RunResult
}

type job struct {
	tab      browser.Tab
	source   types.SourceID
	hostname string
	deadline clockwork.Timer
}

// StartRequest asks for a new run.
type StartRequest struct {
	Query     string
	URLs      []string
	NewWindow bool
}

// StartResult describes a started run.
type StartResult struct {
	RunID      string
	TabsOpened int
}

// State reports the current phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Counts reports the completed and expected jobs of the active run.
func (o *Orchestrator) Counts() (completed, expected int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return 0, 0
	}
	return o.run.completed, o.run.expected
}

// Start opens the tabs of a new run and arms their watchers and
// deadlines. A provisioning error aborts the run and is returned.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	if len(req.URLs) == 0 {
		return StartResult{}, ErrNoURLs
	}

	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return StartResult{}, ErrRunActive
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &runState{
		id:        o.opts.NewRunID(),
		query:     req.Query,
		expected:  len(req.URLs),
		results:   []types.JobResult{},
		errors:    []types.JobError{},
		startedAt: o.opts.Clock.Now(),
		jobs:      make(map[int]*job),
		recorded:  make(map[int]bool),
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	o.run = r
	o.state = Running
	o.mu.Unlock()

	logger := o.opts.Logger.With("run", r.id)
	logger.Info("starting search", "query", req.Query, "tabs", len(req.URLs))

	tabs, err := o.opts.Provider.Open(ctx, req.URLs, req.NewWindow)
	if err != nil {
		o.abort(r)
		return StartResult{}, fmt.Errorf("opening tabs: %w", err)
	}

	if len(tabs) == 0 {
		o.abort(r)
		return StartResult{}, fmt.Errorf("opening tabs: %w", ErrNoURLs)
	}

	o.mu.Lock()
	if len(tabs) != r.expected {
		logger.Warn("provider opened fewer tabs than requested", "want", r.expected, "got", len(tabs))
		r.expected = len(tabs)
	}
	for _, tab := range tabs {
		hostname := hostnameOf(tab.URL())
		j := &job{tab: tab, source: sources.Resolve(hostname), hostname: hostname}
		r.jobs[tab.ID()] = j

		tabID := tab.ID()
		j.deadline = o.opts.Clock.AfterFunc(o.opts.JobTimeout, func() {
			o.foldTimeout(r.id, tabID)
		})
		go o.watch(r, j)
	}
	o.opts.Progress.Update(0, r.expected)
	o.mu.Unlock()

	return StartResult{RunID: r.id, TabsOpened: len(tabs)}, nil
}

// abort returns to Idle after a failed start.
func (o *Orchestrator) abort(r *runState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == r {
		o.run = nil
		o.state = Idle
	}
	r.cancel()
	close(r.done)
}

// watch waits for the tab to load and injects the page agent. A tab that
// never loads is left to its deadline.
func (o *Orchestrator) watch(r *runState, j *job) {
	logger := o.opts.Logger.With("run", r.id, "tab", j.tab.ID())
	if err := j.tab.WaitLoaded(r.ctx); err != nil {
		if r.ctx.Err() == nil {
			logger.Warn("tab did not load", "err", err)
		}
		return
	}
	inject := o.opts.Injector
	if inject == nil {
		inject = noInjector{}
	}
	if err := inject.Inject(r.ctx, r.id, j.tab, &r.seq); err != nil {
		logger.Warn("injection failed", "err", err)
		o.FoldFailure(r.id, types.JobError{
			TabID: j.tab.ID(),
			Error: "injection failed: " + err.Error(),
		})
	}
}

func (o *Orchestrator) foldTimeout(runID string, tabID int) {
	o.FoldFailure(runID, types.JobError{TabID: tabID, Error: TimeoutMessage})
}

// FoldSuccess records a job's records. Reports for another run, for an
// unknown tab or for a tab already recorded are ignored.
func (o *Orchestrator) FoldSuccess(runID string, res types.JobResult) {
	o.fold(runID, res.TabID, func(r *runState, j *job) {
		if res.Records == nil {
			res.Records = []types.Record{}
		}
		if res.Hostname == "" {
			res.Hostname = j.hostname
		}
		if res.Source == "" {
			res.Source = sources.Name(j.source)
		}
		if res.Timestamp == 0 {
			res.Timestamp = types.MillisOf(o.opts.Clock.Now())
		}
		r.results = append(r.results, res)
	})
}

// FoldFailure records a job's failure under the same rules as
// FoldSuccess. Missing source, hostname and timestamp are filled in from
// the tab.
func (o *Orchestrator) FoldFailure(runID string, e types.JobError) {
	o.fold(runID, e.TabID, func(r *runState, j *job) {
		if e.Hostname == "" {
			e.Hostname = j.hostname
		}
		if e.Source == "" && j.source.Known() {
			e.Source = sources.Name(j.source)
		}
		if e.Timestamp == 0 {
			e.Timestamp = types.MillisOf(o.opts.Clock.Now())
		}
		r.errors = append(r.errors, e)
	})
}

// fold applies one outcome and finalizes the run when it completes it.
func (o *Orchestrator) fold(runID string, tabID int, apply func(*runState, *job)) {
	o.mu.Lock()
	r := o.run
	if o.state != Running || r == nil || r.id != runID {
		o.mu.Unlock()
		o.opts.Logger.Debug("ignoring outcome for inactive run", "run", runID, "tab", tabID)
		return
	}
	j, ok := r.jobs[tabID]
	if !ok || r.recorded[tabID] {
		o.mu.Unlock()
		o.opts.Logger.Debug("ignoring outcome", "run", runID, "tab", tabID, "known", ok)
		return
	}

	apply(r, j)
	r.recorded[tabID] = true
	r.completed++
	j.deadline.Stop()
	o.opts.Progress.Update(r.completed, r.expected)

	if r.completed < r.expected {
		o.mu.Unlock()
		return
	}
	o.state = Finalizing
	r.result = o.snapshot(r)
	o.mu.Unlock()

	o.finalize(r)
}

func (o *Orchestrator) snapshot(r *runState) types.RunResult {
	now := o.opts.Clock.Now()
	return types.RunResult{
		RunID:         r.id,
		Query:         r.query,
		ExpectedJobs:  r.expected,
		CompletedJobs: r.completed,
		Results:       append([]types.JobResult{}, r.results...),
		Errors:        append([]types.JobError{}, r.errors...),
		StartedAt:     types.MillisOf(r.startedAt),
		Timestamp:     types.MillisOf(now),
		Elapsed:       now.Sub(r.startedAt).Milliseconds(),
	}
}

// finalize runs once per run, outside the lock.
func (o *Orchestrator) finalize(r *runState) {
	res := r.result
	summary := res.Summarize()
	o.opts.Logger.Info("search finished",
		"run", r.id,
		"records", summary.TotalRecords,
		"ok", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed,
	)

	o.opts.Notifier.Notify(r.ctx, summary)
	if o.opts.Sink != nil {
		if err := o.opts.Sink.SaveResult(r.ctx, res); err != nil {
			o.opts.Logger.Error("saving result", "run", r.id, "err", err)
		}
	}
	o.opts.Progress.Clear()

	o.mu.Lock()
	o.last = &res
	if o.run == r {
		o.run = nil
		o.state = Idle
	}
	o.mu.Unlock()

	r.cancel()
	close(r.done)
}

// Wait blocks until the current run finishes and returns its result.
// When idle it returns the last finished run.
func (o *Orchestrator) Wait(ctx context.Context) (types.RunResult, error) {
	o.mu.Lock()
	r := o.run
	last := o.last
	o.mu.Unlock()

	if r == nil {
		if last == nil {
			return types.RunResult{}, ErrNoRun
		}
		return *last, nil
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return types.RunResult{}, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil || o.last.RunID != r.id {
		return types.RunResult{}, fmt.Errorf("run %s aborted", r.id)
	}
	return *o.last, nil
}

// Last returns the most recent finished run.
func (o *Orchestrator) Last() (types.RunResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return types.RunResult{}, false
	}
	return *o.last, true
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

type nopProgress struct{}

func (nopProgress) Update(int, int) {}
func (nopProgress) Clear()          {}

type noInjector struct{}

func (noInjector) Inject(context.Context, string, browser.Tab, *types.Sequence) error {
	return errors.New("no page agent configured")
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, types.Summary) {}
