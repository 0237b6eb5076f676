package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvLookup resolves an environment variable; injected so tests control it.
type EnvLookup func(key string) (string, bool)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	configPath string
	overrides  []func(*Config)
}

// Option customizes Load.
type Option func(*loadOptions)

// WithEnvLookup replaces the environment accessor.
func WithEnvLookup(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader replaces the file reader.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithHomeDir replaces the home directory resolver.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithOverride applies a programmatic override after file and env.
func WithOverride(fn func(*Config)) Option {
	return func(o *loadOptions) { o.overrides = append(o.overrides, fn) }
}

// Load builds the runtime configuration. Missing config files are not an
// error; a malformed one is.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := defaults(options)

	if err := applyFile(&cfg, options); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg, options.envLookup)
	for _, override := range options.overrides {
		override(&cfg)
	}

	normalize(&cfg, options)
	return cfg, nil
}

func defaults(options loadOptions) Config {
	root := "~/.hermes"
	return Config{
		Environment:  "development",
		PollInterval: 5 * time.Second,
		PreviewPause: 2 * time.Second,
		Chat: ChatConfig{
			BaseURL:     "https://api.telegram.org",
			PollTimeout: 30,
		},
		Mail: MailConfig{
			IMAPPort:   993,
			SMTPPort:   587,
			SubjectTag: "[Task]",
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.3,
			MaxTokens:      2000,
			TimeoutSeconds: 60,
			MaxRetries:     3,
		},
		Executor: ExecutorConfig{
			SessionReuse: true,
		},
		Supervisor: SupervisorConfig{
			HeartbeatSeconds:   30,
			MaxInactivePeriods: 2,
		},
		Storage: StorageConfig{
			StateFile:  filepath.Join(root, "state.json"),
			SessionDir: filepath.Join(root, "sessions"),
			MemoryDir:  filepath.Join(root, "memory"),
			ReportDir:  filepath.Join(root, "reports"),
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			PrometheusPort: 9090,
		},
		Tracing: TracingConfig{
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "hermes",
			ServiceVersion: "1.0.0",
		},
	}
}

func applyFile(cfg *Config, options loadOptions) error {
	path := options.configPath
	if path == "" {
		home, err := options.homeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".hermes", "config.yaml")
	}

	data, err := options.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// An explicitly requested file must be readable.
		if options.configPath != "" {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup EnvLookup) {
	setString := func(target *string, keys ...string) {
		for _, key := range keys {
			if value, ok := lookup(key); ok && value != "" {
				*target = value
				return
			}
		}
	}
	setInt := func(target *int, keys ...string) {
		for _, key := range keys {
			if value, ok := lookup(key); ok && value != "" {
				if parsed, err := strconv.Atoi(value); err == nil {
					*target = parsed
				}
				return
			}
		}
	}

	setString(&cfg.Chat.Token, "HERMES_CHAT_TOKEN", "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Chat.BaseURL, "HERMES_CHAT_BASE_URL")
	if value, ok := lookup("HERMES_CHAT_ALLOWED_USERS"); ok && value != "" {
		cfg.Chat.AllowedUsers = parseUserList(value)
	}

	setString(&cfg.Mail.IMAPHost, "HERMES_IMAP_HOST", "IMAP_HOST")
	setInt(&cfg.Mail.IMAPPort, "HERMES_IMAP_PORT", "IMAP_PORT")
	setString(&cfg.Mail.SMTPHost, "HERMES_SMTP_HOST", "SMTP_HOST")
	setInt(&cfg.Mail.SMTPPort, "HERMES_SMTP_PORT", "SMTP_PORT")
	setString(&cfg.Mail.Username, "HERMES_MAIL_USER", "EMAIL_USERNAME")
	setString(&cfg.Mail.Password, "HERMES_MAIL_PASSWORD", "EMAIL_PASSWORD")
	setString(&cfg.Mail.SubjectTag, "HERMES_MAIL_SUBJECT_TAG")

	setString(&cfg.LLM.APIKey, "HERMES_LLM_API_KEY", "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "HERMES_LLM_BASE_URL", "OPENAI_BASE_URL")
	setString(&cfg.LLM.Model, "HERMES_LLM_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "HERMES_EMBEDDING_MODEL")
	setInt(&cfg.LLM.TimeoutSeconds, "HERMES_LLM_TIMEOUT")

	setString(&cfg.Executor.CLIPath, "HERMES_CLI_PATH", "CODEGEN_CLI_PATH")
	setString(&cfg.Executor.ShellPath, "HERMES_SHELL_PATH", "CODEGEN_SHELL_PATH")

	setString(&cfg.Storage.StateFile, "HERMES_STATE_FILE")
	setString(&cfg.Storage.SessionDir, "HERMES_SESSION_DIR")
	setString(&cfg.Storage.MemoryDir, "HERMES_MEMORY_DIR")
	setString(&cfg.Storage.ReportDir, "HERMES_REPORT_DIR")

	setString(&cfg.WorkDir, "HERMES_WORK_DIR")

	if value, ok := lookup("HERMES_METRICS_PORT"); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Metrics.Enabled = true
			cfg.Metrics.PrometheusPort = parsed
		}
	}
}

func parseUserList(value string) []int64 {
	parts := strings.Split(value, ",")
	users := make([]int64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			users = append(users, id)
		}
	}
	return users
}

func normalize(cfg *Config, options loadOptions) {
	expand := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			if home, err := options.homeDir(); err == nil {
				return filepath.Join(home, path[2:])
			}
		}
		return path
	}

	cfg.Chat.Token = strings.TrimSpace(cfg.Chat.Token)
	cfg.Chat.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Chat.BaseURL), "/")
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	cfg.Mail.Username = strings.TrimSpace(cfg.Mail.Username)

	cfg.Storage.StateFile = expand(cfg.Storage.StateFile)
	cfg.Storage.SessionDir = expand(cfg.Storage.SessionDir)
	cfg.Storage.MemoryDir = expand(cfg.Storage.MemoryDir)
	cfg.Storage.ReportDir = expand(cfg.Storage.ReportDir)
	cfg.WorkDir = expand(cfg.WorkDir)

	if cfg.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.WorkDir = wd
		}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Supervisor.HeartbeatSeconds <= 0 {
		cfg.Supervisor.HeartbeatSeconds = 30
	}
	if cfg.Supervisor.MaxInactivePeriods <= 0 {
		cfg.Supervisor.MaxInactivePeriods = 2
	}
}

// Validate checks the invariants required to start the daemon.
func (c Config) Validate() error {
	if !c.ChatEnabled() && !c.MailEnabled() {
		return fmt.Errorf("no channel configured: set a chat token or mail credentials")
	}
	if c.MailEnabled() {
		if c.Mail.IMAPHost == "" || c.Mail.SMTPHost == "" {
			return fmt.Errorf("mail channel requires imap_host and smtp_host")
		}
	}
	if c.Storage.StateFile == "" {
		return fmt.Errorf("state_file must be set")
	}
	dir := filepath.Dir(c.Storage.StateFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("state root %s is not writable: %w", dir, err)
	}
	return nil
}
