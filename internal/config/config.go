package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RateLimit is the per-platform application quota
type RateLimit struct {
	PerHour  int           `yaml:"per_hour"`
	PerDay   int           `yaml:"per_day"`
	MinDelay time.Duration `yaml:"min_delay"`
}

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8080"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
		// AllowedOrigins for CORS; empty allows any origin
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Database struct {
		Driver         string        `yaml:"driver" default:"postgres"` // postgres or memory
		URL            string        `yaml:"url"`
		MaxConns       int32         `yaml:"max_conns" default:"10"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
		AutoMigrate    bool          `yaml:"auto_migrate" default:"true"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool          `yaml:"enabled" default:"true"`
		URL      string        `yaml:"url" default:"redis://localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" default:"0"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"redis"`

	Workers struct {
		PoolSize  int `yaml:"pool_size" default:"10"`
		QueueSize int `yaml:"queue_size" default:"100"`
	} `yaml:"workers"`

	BackgroundTasks struct {
		TaskTimeout     time.Duration `yaml:"task_timeout" default:"30m"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1h"`
		MaxTaskAge      time.Duration `yaml:"max_task_age" default:"24h"`
		Store           string        `yaml:"store" default:"memory"` // memory or redis
	} `yaml:"background_tasks"`

	Scheduler struct {
		Enabled       bool          `yaml:"enabled" default:"true"`
		ScrapeSpec    string        `yaml:"scrape_spec" default:"0 */6 * * *"`
		DrainSpec     string        `yaml:"drain_spec" default:"*/30 * * * *"`
		CleanupSpec   string        `yaml:"cleanup_spec" default:"0 2 * * *"`
		SummarySpec   string        `yaml:"summary_spec" default:"0 8 * * *"`
		DrainBatch    int           `yaml:"drain_batch" default:"50"`
		ScrapeOnStart bool          `yaml:"scrape_on_start" default:"false"`
		SweepLockTTL  time.Duration `yaml:"sweep_lock_ttl" default:"25m"`
	} `yaml:"scheduler"`

	Automation struct {
		MatchThreshold float64       `yaml:"match_threshold" default:"70"`
		PageLoad       time.Duration `yaml:"page_load_timeout" default:"45s"`
		ElementWait    time.Duration `yaml:"element_wait_timeout" default:"20s"`
		SoftTimeout    time.Duration `yaml:"soft_timeout" default:"25m"`
		HardTimeout    time.Duration `yaml:"hard_timeout" default:"30m"`
		MaxFormSteps   int           `yaml:"max_form_steps" default:"10"`
		RetryBackoff   time.Duration `yaml:"retry_backoff" default:"1h"`
		MaxRetries     int           `yaml:"max_retries" default:"3"`
		DefaultYears   int           `yaml:"default_years_experience" default:"3"`
		ResumeDir      string        `yaml:"resume_dir"`
	} `yaml:"automation"`

	// RateLimits is keyed by lowercase platform slug; "default" covers unlisted platforms
	RateLimits map[string]RateLimit `yaml:"rate_limits"`

	Browser struct {
		Headless    bool   `yaml:"headless" default:"true"`
		StealthMode bool   `yaml:"stealth_mode" default:"true"`
		UserAgent   string `yaml:"user_agent"`
		ChromePath  string `yaml:"chrome_path"`
	} `yaml:"browser"`

	Scraper struct {
		UserAgent      string            `yaml:"user_agent"`
		RequestTimeout time.Duration     `yaml:"request_timeout" default:"30s"`
		MaxResults     int               `yaml:"max_results" default:"20"`
		RequestsPerMin int               `yaml:"requests_per_minute" default:"20"`
		Engines        map[string]string `yaml:"engines"` // platform -> http | headed | firecrawl
		IndeedBaseURL  string            `yaml:"indeed_base_url" default:"https://www.indeed.com"`
		LinkedInURL    string            `yaml:"linkedin_base_url" default:"https://www.linkedin.com"`
		Captcha        struct {
			APIKey          string        `yaml:"api_key"`
			Timeout         time.Duration `yaml:"timeout" default:"120s"`
			EnableAutoSolve bool          `yaml:"enable_auto_solve" default:"false"`
		} `yaml:"captcha"`
	} `yaml:"scraper"`

	Firecrawl struct {
		APIKey     string   `yaml:"api_key"`
		APIURL     string   `yaml:"api_url" default:"https://api.firecrawl.dev"`
		MaxRetries int      `yaml:"max_retries" default:"3"`
		Formats    []string `yaml:"formats"`
	} `yaml:"firecrawl"`

	Credentials struct {
		Source         string `yaml:"source" default:"database"` // database or keyring
		KeyringService string `yaml:"keyring_service" default:"jobpilot"`
		EncryptionKey  string `yaml:"encryption_key"` // base64 AES key; empty stores plaintext
	} `yaml:"credentials"`

	Notifications struct {
		Sink    string `yaml:"sink" default:"log"` // log or redis
		Channel string `yaml:"channel" default:"jobpilot:notifications"`
	} `yaml:"notifications"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`
}

var (
	bracedEnvRe = regexp.MustCompile(`\$\{([^}]+)\}`)
	bareEnvRe   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax.
// Unset variables are left untouched.
func expandEnvVars(s string) string {
	s = bracedEnvRe.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})

	return bareEnvRe.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[1:]); val != "" {
			return val
		}
		return match
	})
}

// DefaultRateLimits returns the built-in platform quota table.
func DefaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"linkedin":  {PerHour: 5, PerDay: 20, MinDelay: 180 * time.Second},
		"indeed":    {PerHour: 10, PerDay: 40, MinDelay: 120 * time.Second},
		"glassdoor": {PerHour: 5, PerDay: 15, MinDelay: 240 * time.Second},
		"default":   {PerHour: 5, PerDay: 20, MinDelay: 180 * time.Second},
	}
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	config := &Config{}

	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Database.Driver = "postgres"
	config.Database.MaxConns = 10
	config.Database.ConnectTimeout = 10 * time.Second
	config.Database.AutoMigrate = true

	config.Redis.Enabled = true
	config.Redis.URL = "redis://localhost:6379"
	config.Redis.Timeout = 5 * time.Second

	config.Workers.PoolSize = 10
	config.Workers.QueueSize = 100

	config.BackgroundTasks.TaskTimeout = 30 * time.Minute
	config.BackgroundTasks.CleanupInterval = time.Hour
	config.BackgroundTasks.MaxTaskAge = 24 * time.Hour
	config.BackgroundTasks.Store = "memory"

	config.Scheduler.Enabled = true
	config.Scheduler.ScrapeSpec = "0 */6 * * *"
	config.Scheduler.DrainSpec = "*/30 * * * *"
	config.Scheduler.CleanupSpec = "0 2 * * *"
	config.Scheduler.SummarySpec = "0 8 * * *"
	config.Scheduler.DrainBatch = 50
	config.Scheduler.SweepLockTTL = 25 * time.Minute

	config.Automation.MatchThreshold = 70
	config.Automation.PageLoad = 45 * time.Second
	config.Automation.ElementWait = 20 * time.Second
	config.Automation.SoftTimeout = 25 * time.Minute
	config.Automation.HardTimeout = 30 * time.Minute
	config.Automation.MaxFormSteps = 10
	config.Automation.RetryBackoff = time.Hour
	config.Automation.MaxRetries = 3
	config.Automation.DefaultYears = 3

	config.RateLimits = DefaultRateLimits()

	config.Browser.Headless = true
	config.Browser.StealthMode = true
	config.Browser.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	config.Scraper.UserAgent = config.Browser.UserAgent
	config.Scraper.RequestTimeout = 30 * time.Second
	config.Scraper.MaxResults = 20
	config.Scraper.RequestsPerMin = 20
	config.Scraper.Engines = map[string]string{
		"indeed":   "http",
		"linkedin": "headed",
	}
	config.Scraper.IndeedBaseURL = "https://www.indeed.com"
	config.Scraper.LinkedInURL = "https://www.linkedin.com"
	config.Scraper.Captcha.Timeout = 120 * time.Second

	config.Firecrawl.APIURL = "https://api.firecrawl.dev"
	config.Firecrawl.MaxRetries = 3
	config.Firecrawl.Formats = []string{"html"}

	config.Credentials.Source = "database"
	config.Credentials.KeyringService = "jobpilot"

	config.Notifications.Sink = "log"
	config.Notifications.Channel = "jobpilot:notifications"

	config.Metrics.Enabled = true
	config.Metrics.Path = "/metrics"

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	return config
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	config.mergeRateLimitDefaults()
	config.loadFromEnv()

	return config, nil
}

// mergeRateLimitDefaults fills platforms a YAML override did not mention.
func (c *Config) mergeRateLimitDefaults() {
	merged := DefaultRateLimits()
	for platform, limit := range c.RateLimits {
		merged[strings.ToLower(platform)] = limit
	}
	c.RateLimits = merged
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		c.Database.URL = dbURL
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			c.Redis.DB = db
		}
	}

	if redisEnabled := os.Getenv("REDIS_ENABLED"); redisEnabled != "" {
		c.Redis.Enabled = redisEnabled == "true" || redisEnabled == "1"
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if captchaAPIKey := os.Getenv("CAPTCHA_API_KEY"); captchaAPIKey != "" {
		c.Scraper.Captcha.APIKey = captchaAPIKey
	}

	if firecrawlAPIKey := os.Getenv("FIRECRAWL_API_KEY"); firecrawlAPIKey != "" {
		c.Firecrawl.APIKey = firecrawlAPIKey
	}

	if firecrawlAPIURL := os.Getenv("FIRECRAWL_API_URL"); firecrawlAPIURL != "" {
		c.Firecrawl.APIURL = firecrawlAPIURL
	}

	if chromePath := os.Getenv("CHROME_BIN"); chromePath != "" {
		c.Browser.ChromePath = chromePath
	}

	if headless := os.Getenv("BROWSER_HEADLESS"); headless != "" {
		c.Browser.Headless = headless == "true" || headless == "1"
	}

	if threshold := os.Getenv("MATCH_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			c.Automation.MatchThreshold = t
		}
	}

	if backoff := os.Getenv("RETRY_BACKOFF"); backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			c.Automation.RetryBackoff = d
		}
	}

	if credSource := os.Getenv("CREDENTIALS_SOURCE"); credSource != "" {
		c.Credentials.Source = credSource
	}

	if key := os.Getenv("CREDENTIALS_ENCRYPTION_KEY"); key != "" {
		c.Credentials.EncryptionKey = key
	}

	if sink := os.Getenv("NOTIFICATION_SINK"); sink != "" {
		c.Notifications.Sink = sink
	}

	c.loadRateLimitEnvVars()
}

// loadRateLimitEnvVars applies the legacy LinkedIn quota overrides.
func (c *Config) loadRateLimitEnvVars() {
	linkedin := c.RateLimits["linkedin"]

	if perHour := os.Getenv("MAX_APPLICATIONS_PER_HOUR"); perHour != "" {
		if n, err := strconv.Atoi(perHour); err == nil && n > 0 {
			linkedin.PerHour = n
		}
	}

	if perDay := os.Getenv("MAX_APPLICATIONS_PER_DAY"); perDay != "" {
		if n, err := strconv.Atoi(perDay); err == nil && n > 0 {
			linkedin.PerDay = n
		}
	}

	if delay := os.Getenv("APPLICATION_DELAY_SECONDS"); delay != "" {
		if n, err := strconv.Atoi(delay); err == nil && n >= 0 {
			linkedin.MinDelay = time.Duration(n) * time.Second
		}
	}

	c.RateLimits["linkedin"] = linkedin
}
