// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobResult is the Success outcome of one tab-scraping job.
type JobResult struct {
	// TabID is the browser tab the records came from.
	TabID int `json:"tabId" yaml:"tab_id"`

	// Source is the catalog display name (e.g. "BNE Digital").
	Source string `json:"fuente" yaml:"fuente"`

	// Hostname is the host of the page that was scraped.
	Hostname string `json:"hostname" yaml:"hostname"`

	// Records are the extracted entries in document order.
	Records []Record `json:"datos" yaml:"datos"`

	// Timestamp is when the page agent finished extraction.
	Timestamp Millis `json:"timestamp" yaml:"timestamp"`
}

// JobError is the Failure outcome of one tab-scraping job.
type JobError struct {
	TabID     int    `json:"tabId" yaml:"tab_id"`
	Source    string `json:"fuente,omitempty" yaml:"fuente,omitempty"`
	Hostname  string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Error     string `json:"error" yaml:"error"`
	Timestamp Millis `json:"timestamp" yaml:"timestamp"`
}

// RunResult is the frozen aggregate of one finished search. It is the
// value written to the result sink under LastResultKey.
type RunResult struct {
	RunID         string      `json:"runId,omitempty" yaml:"run_id,omitempty"`
	Query         string      `json:"query" yaml:"query"`
	ExpectedJobs  int         `json:"expectedJobs" yaml:"expected_jobs"`
	CompletedJobs int         `json:"completedJobs" yaml:"completed_jobs"`
	Results       []JobResult `json:"resultados" yaml:"resultados"`
	Errors        []JobError  `json:"errores" yaml:"errores"`
	StartedAt     Millis      `json:"startedAt" yaml:"started_at"`

	// Timestamp is when the run was finalized.
	Timestamp Millis `json:"timestamp" yaml:"timestamp"`

	// Elapsed is the wall time of the run in milliseconds.
	Elapsed int64 `json:"tiempoTotal" yaml:"tiempo_total"`
}

// LastResultKey is the settings-store key holding the most recent RunResult.
const LastResultKey = "ultimoScraping"

// TotalRecords sums the record counts of all successful jobs.
func (r RunResult) TotalRecords() int {
	n := 0
	for _, jr := range r.Results {
		n += len(jr.Records)
	}
	return n
}

// Summarize computes the completion summary shown to the user.
func (r RunResult) Summarize() Summary {
	return Summary{
		Query:        r.Query,
		TotalRecords: r.TotalRecords(),
		Succeeded:    len(r.Results),
		Failed:       len(r.Errors),
		Expected:     r.ExpectedJobs,
		Elapsed:      time.Duration(r.Elapsed) * time.Millisecond,
	}
}

// Summary holds the counts reported when a run finalizes.
type Summary struct {
	Query        string
	TotalRecords int
	Succeeded    int
	Failed       int
	Expected     int
	Elapsed      time.Duration
}
