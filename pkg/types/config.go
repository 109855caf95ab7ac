// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by the static tab provider.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pliegos/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// MaxRetries is the number of retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// BrowserEngine selects how tabs are provisioned.
type BrowserEngine string

const (
	EngineChrome    BrowserEngine = "chrome"
	EngineContainer BrowserEngine = "container"
	EngineHTTP      BrowserEngine = "http"
)

// BrowserConfig holds settings for tab provisioning.
type BrowserConfig struct {
	HTTPConfig `yaml:",inline"`

	// Engine selects chrome (rendering, shadow trees), container (the same
	// inside a docker or podman image) or http (static HTML).
	Engine BrowserEngine `json:"engine" yaml:"engine"`

	// Headless runs Chrome without a visible window.
	Headless bool `json:"headless" yaml:"headless"`

	// ExecPath overrides the Chrome binary location.
	ExecPath string `json:"exec_path,omitempty" yaml:"exec_path,omitempty"`

	// TabDelay is the pause between consecutive tab creations (default 150ms).
	TabDelay time.Duration `json:"tab_delay" yaml:"tab_delay"`

	// Image is the headless Chrome image for the container engine.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// DebugPort is the loopback port the container's DevTools endpoint is
	// published on (default 9222).
	DebugPort int `json:"debug_port,omitempty" yaml:"debug_port,omitempty"`
}

// ScrapeConfig holds settings for the orchestrator and page agents.
type ScrapeConfig struct {
	// JobTimeout bounds how long a tab may take to report (default 30s).
	JobTimeout time.Duration `json:"job_timeout" yaml:"job_timeout"`

	// SettleDelays maps a source to the wait between page load and
	// extraction. Sources without an entry use DefaultSettleDelay.
	SettleDelays map[SourceID]time.Duration `json:"settle_delays,omitempty" yaml:"settle_delays,omitempty"`

	// DefaultSettleDelay applies to sources missing from SettleDelays (default 2s).
	DefaultSettleDelay time.Duration `json:"default_settle_delay" yaml:"default_settle_delay"`

	// PagesPerSource is how many result pages to open per catalog (default 1).
	PagesPerSource int `json:"pages_per_source" yaml:"pages_per_source"`
}

// SettleDelay returns the settle delay for src.
func (c ScrapeConfig) SettleDelay(src SourceID) time.Duration {
	if d, ok := c.SettleDelays[src]; ok {
		return d
	}
	return c.DefaultSettleDelay
}

// SinkConfig holds settings for the persistent result store.
type SinkConfig struct {
	// Path is the SQLite database file (default "pliegos.db").
	Path string `json:"path" yaml:"path"`

	// PollInterval is how often the completion poll checks the store (default 1s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// MaxChecks bounds the completion poll (default 90).
	MaxChecks int `json:"max_checks" yaml:"max_checks"`
}

// BusConfig selects the message transport between agents and orchestrator.
type BusConfig struct {
	// NATSURL enables the NATS transport when non-empty.
	NATSURL string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`

	// Subject is the request/reply subject (default "pliegos.rpc").
	Subject string `json:"subject" yaml:"subject"`

	// Token authenticates against the NATS server, if required.
	Token string `json:"-" yaml:"-"`
}

// PipelineConfig groups all configuration sections.
type PipelineConfig struct {
	Browser BrowserConfig `json:"browser" yaml:"browser"`
	Scrape  ScrapeConfig  `json:"scrape" yaml:"scrape"`
	Sink    SinkConfig    `json:"sink" yaml:"sink"`
	Bus     BusConfig     `json:"bus" yaml:"bus"`
}

// DefaultPipelineConfig returns the built-in defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Browser: BrowserConfig{
			HTTPConfig: HTTPConfig{
				Timeout:    30 * time.Second,
				UserAgent:  "pliegos/0.1",
				MaxRetries: 5,
			},
			Engine:    EngineChrome,
			Headless:  true,
			TabDelay:  150 * time.Millisecond,
			Image:     "chromedp/headless-shell:latest",
			DebugPort: 9222,
		},
		Scrape: ScrapeConfig{
			JobTimeout: 30 * time.Second,
			SettleDelays: map[SourceID]time.Duration{
				SourceBNE:    6 * time.Second,
				SourceCordel: 3 * time.Second,
			},
			DefaultSettleDelay: 2 * time.Second,
			PagesPerSource:     1,
		},
		Sink: SinkConfig{
			Path:         "pliegos.db",
			PollInterval: time.Second,
			MaxChecks:    90,
		},
		Bus: BusConfig{
			Subject: "pliegos.rpc",
		},
	}
}
