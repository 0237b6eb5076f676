package config

import "time"

// Config is the full runtime configuration of the engine. Values merge in
// precedence order: compiled defaults < config file < environment < overrides.
type Config struct {
	Environment string `yaml:"environment"`
	WorkDir     string `yaml:"work_dir"`

	// PollInterval is the delay between channel poll cycles.
	PollInterval time.Duration `yaml:"poll_interval"`
	// PreviewPause is the window between the refined-instruction preview and
	// execution, during which a new user message can interrupt.
	PreviewPause time.Duration `yaml:"preview_pause"`

	Chat       ChatConfig       `yaml:"chat"`
	Mail       MailConfig       `yaml:"mail"`
	LLM        LLMConfig        `yaml:"llm"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ChatConfig configures the long-poll chat bot adapter. The adapter is
// enabled when Token is non-empty.
type ChatConfig struct {
	Token        string  `yaml:"token"`
	BaseURL      string  `yaml:"base_url"`
	PollTimeout  int     `yaml:"poll_timeout"` // server-side long-poll seconds
	AllowedUsers []int64 `yaml:"allowed_users"`
}

// MailConfig configures the IMAP/SMTP adapter. The adapter is enabled when
// Username is non-empty.
type MailConfig struct {
	IMAPHost   string `yaml:"imap_host"`
	IMAPPort   int    `yaml:"imap_port"`
	SMTPHost   string `yaml:"smtp_host"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SubjectTag string `yaml:"subject_tag"`
}

// LLMConfig configures the completion provider shared by the understanding
// agent, the refiner, and the embedding path.
type LLMConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
}

// ExecutorConfig configures the code-generation CLI subprocess.
type ExecutorConfig struct {
	CLIPath      string `yaml:"cli_path"`
	ShellPath    string `yaml:"shell_path"`
	SessionReuse bool   `yaml:"session_reuse"`
}

// SupervisorConfig configures the activity-based health monitor.
type SupervisorConfig struct {
	HeartbeatSeconds   int            `yaml:"heartbeat_seconds"`
	MaxInactivePeriods int            `yaml:"max_inactive_periods"`
	ThresholdSeconds   map[string]int `yaml:"threshold_seconds"`
}

// StorageConfig holds the durable roots.
type StorageConfig struct {
	StateFile  string `yaml:"state_file"`
	SessionDir string `yaml:"session_dir"`
	MemoryDir  string `yaml:"memory_dir"`
	ReportDir  string `yaml:"report_dir"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// ChatEnabled reports whether the chat adapter should start.
func (c Config) ChatEnabled() bool { return c.Chat.Token != "" }

// MailEnabled reports whether the mail adapter should start.
func (c Config) MailEnabled() bool { return c.Mail.Username != "" }
