package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
)

const DefaultPath = "config.toml"

// Account is one watched profile, read from a [weibo.<name>] table.
type Account struct {
	Name           string `toml:"-"`
	ProfileURL     string `toml:"read_link_url"`
	MessageWebhook string `toml:"message_webhook"`
	Title          string `toml:"title"`
	AvatarURL      string `toml:"avatar_url"`
	LinkTemplate   string `toml:"link_template"`
	Disabled       bool   `toml:"disabled"`
	DisabledReason string `toml:"disabled_reason"`
}

type Config struct {
	App struct {
		Env      string `toml:"env" env:"APP_ENV" env-default:"development"`
		Port     int    `toml:"port" env:"APP_PORT" env-default:"8080"`
		LogLevel string `toml:"log_level" env:"APP_LOG_LEVEL" env-default:"info"`
		Timezone string `toml:"timezone" env:"APP_TIMEZONE" env-default:"Asia/Shanghai"`
	} `toml:"app"`
	Sentry struct {
		DSN string `toml:"dsn" env:"SENTRY_DSN"`
	} `toml:"sentry"`
	Store struct {
		Driver string `toml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
		Path   string `toml:"path" env:"STORE_PATH" env-default:"weibo.db"`
	} `toml:"store"`
	Postgres struct {
		Port    int    `toml:"port" env:"POSTGRES_PORT" env-default:"5432"`
		Host    string `toml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
		User    string `toml:"user" env:"POSTGRES_USER"`
		Pass    string `toml:"pass" env:"POSTGRES_PASS"`
		Name    string `toml:"name" env:"POSTGRES_NAME"`
		SslMode string `toml:"ssl_mode" env:"POSTGRES_SSL_MODE" env-default:"disable"`
	} `toml:"postgres"`
	Browser struct {
		Driver            string        `toml:"driver" env:"BROWSER_DRIVER" env-default:"playwright"`
		ShowWindow        bool          `toml:"show_window" env:"BROWSER_SHOW_WINDOW"`
		UserAgent         string        `toml:"user_agent" env:"BROWSER_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
		NavigationTimeout time.Duration `toml:"navigation_timeout" env:"BROWSER_NAVIGATION_TIMEOUT" env-default:"60s"`
	} `toml:"browser"`
	Extractor struct {
		Method        string        `toml:"method" env:"EXTRACTOR_METHOD" env-default:"ajax_json"`
		MaxAttempts   int           `toml:"max_attempts" env:"EXTRACTOR_MAX_ATTEMPTS" env-default:"10"`
		BaseDelay     time.Duration `toml:"base_delay" env:"EXTRACTOR_BASE_DELAY" env-default:"90s"`
		MaxDelay      time.Duration `toml:"max_delay" env:"EXTRACTOR_MAX_DELAY" env-default:"300s"`
		RecreateEvery int           `toml:"recreate_every" env:"EXTRACTOR_RECREATE_EVERY" env-default:"3"`
		RotateEvery   int           `toml:"rotate_every" env:"EXTRACTOR_ROTATE_EVERY" env-default:"2"`
		PacingMin     time.Duration `toml:"pacing_min" env:"EXTRACTOR_PACING_MIN" env-default:"1s"`
		PacingMax     time.Duration `toml:"pacing_max" env:"EXTRACTOR_PACING_MAX" env-default:"5s"`
		AjaxWait      time.Duration `toml:"ajax_wait" env:"EXTRACTOR_AJAX_WAIT" env-default:"2500ms"`
		NavRetries    int           `toml:"nav_retries" env:"EXTRACTOR_NAV_RETRIES" env-default:"3"`
		NavPauseMin   time.Duration `toml:"nav_pause_min" env:"EXTRACTOR_NAV_PAUSE_MIN" env-default:"5s"`
		NavPauseMax   time.Duration `toml:"nav_pause_max" env:"EXTRACTOR_NAV_PAUSE_MAX" env-default:"15s"`
		DumpDir       string        `toml:"dump_dir" env:"EXTRACTOR_DUMP_DIR" env-default:"weibo_dumps"`
	} `toml:"extractor"`
	RateLimit struct {
		MaxRequests  int           `toml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" env-default:"3"`
		Window       time.Duration `toml:"window" env:"RATE_LIMIT_WINDOW" env-default:"60s"`
		PollInterval time.Duration `toml:"poll_interval" env:"RATE_LIMIT_POLL_INTERVAL" env-default:"1s"`
	} `toml:"rate_limit"`
	Images struct {
		Dir             string        `toml:"dir" env:"IMAGES_DIR" env-default:"images"`
		MaxDownloadMB   int           `toml:"max_download_mb" env:"IMAGES_MAX_DOWNLOAD_MB" env-default:"50"`
		AttachmentMaxMB float64       `toml:"attachment_max_mb" env:"DISCORD_ATTACHMENT_MAX_MB" env-default:"3.0"`
		KeepFiles       bool          `toml:"keep_files" env:"IMAGES_KEEP_FILES" env-default:"false"`
		Workers         int           `toml:"workers" env:"IMAGES_WORKERS" env-default:"3"`
		Timeout         time.Duration `toml:"timeout" env:"IMAGES_TIMEOUT" env-default:"30s"`
		AllowedDomains  []string      `toml:"allowed_domains" env:"IMAGES_ALLOWED_DOMAINS" env-default:"sinaimg.cn,weibo.com,weibo.cn"`
	} `toml:"images"`
	Scheduler struct {
		ScanInterval   time.Duration `toml:"scan_interval" env:"SCHEDULER_SCAN_INTERVAL" env-default:"15m"`
		StatusInterval time.Duration `toml:"status_interval" env:"SCHEDULER_STATUS_INTERVAL" env-default:"6h"`
		CleanupHour    uint          `toml:"cleanup_hour" env:"SCHEDULER_CLEANUP_HOUR" env-default:"3"`
		RetentionDays  int           `toml:"retention_days" env:"SCHEDULER_RETENTION_DAYS" env-default:"30"`
		ItemDelay      time.Duration `toml:"item_delay" env:"SCHEDULER_ITEM_DELAY" env-default:"10s"`
		ScanTimeout    time.Duration `toml:"scan_timeout" env:"SCHEDULER_SCAN_TIMEOUT" env-default:"2h"`
	} `toml:"scheduler"`
	Delivery struct {
		PerSecond float64 `toml:"per_second" env:"DELIVERY_PER_SECOND" env-default:"1"`
		Burst     int     `toml:"burst" env:"DELIVERY_BURST" env-default:"2"`
	} `toml:"delivery"`
	Telegram struct {
		Token string `toml:"token" env:"TELEGRAM_TOKEN"`
	} `toml:"telegram"`
	Status struct {
		MessageWebhook string `toml:"message_webhook" env:"STATUS_MESSAGE_WEBHOOK"`
		MessagesFile   string `toml:"messages_file" env:"STATUS_MESSAGES_FILE"`
	} `toml:"status"`

	Accounts map[string]Account `toml:"weibo"`
}

// New reads the file named by CONFIG_PATH (default config.toml) with env overrides.
func New() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

// Load reads and validates the configuration.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read parses the file (or env alone when the file is missing) without validating accounts.
func Read(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			return nil, fmt.Errorf("failed to read configuration %s: %w\n%s", path, err, help)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read configuration from env: %w", err)
		}
	}

	for name, acc := range cfg.Accounts {
		acc.Name = name
		cfg.Accounts[name] = acc
	}
	return cfg, nil
}

// Validate checks sink targets and the presence of at least one account.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return errors.Newf(errors.CodeValidation, "no [weibo.<name>] accounts configured")
	}
	for _, acc := range c.SortedAccounts() {
		if acc.ProfileURL == "" {
			return errors.Newf(errors.CodeValidation, "account %s: read_link_url is required", acc.Name)
		}
		if err := ValidateTarget(acc.MessageWebhook); err != nil {
			return errors.WrapWithCode(err, errors.CodeValidation, "account "+acc.Name)
		}
	}
	if err := ValidateTarget(c.Status.MessageWebhook); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, "status")
	}
	if c.UsesTelegram() && c.Telegram.Token == "" {
		return errors.Newf(errors.CodeValidation, "telegram targets configured but [telegram] token is empty")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Newf(errors.CodeValidation, "unknown store driver %q", c.Store.Driver)
	}
	switch c.Browser.Driver {
	case "playwright", "rod":
	default:
		return errors.Newf(errors.CodeValidation, "unknown browser driver %q", c.Browser.Driver)
	}
	switch c.Extractor.Method {
	case "ajax_json", "mobile_dom":
	default:
		return errors.Newf(errors.CodeValidation, "unknown extractor method %q", c.Extractor.Method)
	}
	return nil
}

var webhookPrefixes = []string{
	"https://discord.com/api/webhooks/",
	"https://discordapp.com/api/webhooks/",
}

// ValidateTarget accepts a Discord webhook URL or telegram:<chat_id>.
func ValidateTarget(target string) error {
	if target == "" {
		return errors.Newf(errors.CodeValidation, "message_webhook is empty")
	}
	if chat, ok := strings.CutPrefix(target, "telegram:"); ok {
		if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
			return errors.Newf(errors.CodeValidation, "invalid telegram chat id %q", chat)
		}
		return nil
	}
	for _, p := range webhookPrefixes {
		if rest, ok := strings.CutPrefix(target, p); ok {
			parts := strings.Split(rest, "/")
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				return nil
			}
		}
	}
	return errors.Newf(errors.CodeValidation, "invalid webhook url %q", target)
}

// UsesTelegram reports whether any enabled account or the status sink targets Telegram.
func (c *Config) UsesTelegram() bool {
	if strings.HasPrefix(c.Status.MessageWebhook, "telegram:") {
		return true
	}
	for _, acc := range c.Accounts {
		if !acc.Disabled && strings.HasPrefix(acc.MessageWebhook, "telegram:") {
			return true
		}
	}
	return false
}

// SortedAccounts returns accounts ordered by name so scans are deterministic.
func (c *Config) SortedAccounts() []Account {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Account, 0, len(names))
	for _, name := range names {
		out = append(out, c.Accounts[name])
	}
	return out
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Pass,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Name,
		c.Postgres.SslMode,
	)
}

func (c *Config) AttachmentMaxBytes() int64 {
	return int64(c.Images.AttachmentMaxMB * 1024 * 1024)
}

func (c *Config) MaxDownloadBytes() int64 {
	return int64(c.Images.MaxDownloadMB) * 1024 * 1024
}
