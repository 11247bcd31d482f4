package monitor

import "time"

// BrowserConfig configures the managed headless Chrome instance.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local one.
	RemoteURL string `yaml:"remote_url"`

	// RecycleInterval is the maximum Chrome process lifetime.
	RecycleInterval time.Duration `yaml:"recycle_interval"`

	// NavigateTimeout bounds one navigation + load wait.
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// LLMConfig configures the change classifier model.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible server, without the /v1 suffix.
	// Empty disables the model; changes are then scored by rules alone.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config configures the monitor service.
type Config struct {
	// Browser configures the managed headless Chrome. Ignored when a
	// custom renderer is injected.
	Browser BrowserConfig

	// LLM configures the change classifier.
	LLM LLMConfig

	// ArchiveMonths is the default lookback window for archive seeding.
	ArchiveMonths int

	// ArchiveLimit caps the CDX rows requested per seeding query.
	ArchiveLimit int

	// CheckTimeout bounds a single page check end to end.
	CheckTimeout time.Duration
}

func (c *Config) defaults() {
	if c.ArchiveMonths <= 0 {
		c.ArchiveMonths = 12
	}
	if c.ArchiveLimit <= 0 {
		c.ArchiveLimit = 50
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 2 * time.Minute
	}
}
