// Package config loads the harvester configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingMongoHost   = errors.New("mongo.host is required")
	ErrMissingMongoDB     = errors.New("mongo.dbname is required")
	ErrMissingSlackToken  = errors.New("slack.bot_token (or SLACK_BOT_TOKEN) is required")
	ErrInvalidPagePause   = errors.New("crawl.page_pause_ms must be between 500 and 1500")
	ErrInvalidConcurrency = errors.New("crawl.concurrency must be at least 1")
	ErrInvalidMonths      = errors.New("report.months must be non-negative")
	ErrInvalidLogLevel    = errors.New("log.level must be one of: debug, info, warn, error")
)

const (
	defaultSlackBaseURL    = "https://slack.com/api"
	defaultSlackTimeoutSec = 300
	defaultPagePauseMs     = 500
	defaultRetryIntervalMs = 1000
	defaultConcurrency     = 4
	defaultCron            = "0 0 * * *"
	defaultLockTTLSec      = 3600
	defaultServerAddress   = ":8080"
	defaultLogLevel        = "info"
)

type MongoConfig struct {
	Host       string `yaml:"host"`
	DBName     string `yaml:"dbname"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authSource"`
}

type SlackConfig struct {
	BaseURL    string `yaml:"base_url"`
	BotToken   string `yaml:"bot_token"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CrawlConfig tunes the history crawler.
type CrawlConfig struct {
	PagePauseMs     int `yaml:"page_pause_ms"`
	RetryIntervalMs int `yaml:"retry_interval_ms"`
	Concurrency     int `yaml:"concurrency"`
}

type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// RedisConfig enables the shared per-channel lock. An empty address falls
// back to an in-process lock.
type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	LockTTLSec int    `yaml:"lock_ttl_sec"`
}

type ReportConfig struct {
	Months int `yaml:"months"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Mongo    MongoConfig    `yaml:"mongo"`
	Slack    SlackConfig    `yaml:"slack"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Redis    RedisConfig    `yaml:"redis"`
	Report   ReportConfig   `yaml:"report"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// LoadConfig reads path, applies environment overrides and defaults, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes raw YAML the same way LoadConfig does.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SLACK_BOT_TOKEN"); v != "" {
		c.Slack.BotToken = v
	}
	if v := os.Getenv("MONGO_HOST"); v != "" {
		c.Mongo.Host = v
	}
	if v := os.Getenv("MONGO_PASSWORD"); v != "" {
		c.Mongo.Password = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("REPORT_MONTHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Report.Months = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Slack.BaseURL == "" {
		c.Slack.BaseURL = defaultSlackBaseURL
	}
	if c.Slack.TimeoutSec <= 0 {
		c.Slack.TimeoutSec = defaultSlackTimeoutSec
	}
	if c.Crawl.PagePauseMs == 0 {
		c.Crawl.PagePauseMs = defaultPagePauseMs
	}
	if c.Crawl.RetryIntervalMs <= 0 {
		c.Crawl.RetryIntervalMs = defaultRetryIntervalMs
	}
	if c.Crawl.Concurrency == 0 {
		c.Crawl.Concurrency = defaultConcurrency
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = defaultCron
	}
	if c.Redis.LockTTLSec <= 0 {
		c.Redis.LockTTLSec = defaultLockTTLSec
	}
	if c.Server.Address == "" {
		c.Server.Address = defaultServerAddress
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// Validate checks the configuration for values the harvester cannot run with.
func (c *Config) Validate() error {
	if c.Mongo.Host == "" {
		return ErrMissingMongoHost
	}
	if c.Mongo.DBName == "" {
		return ErrMissingMongoDB
	}
	if c.Slack.BotToken == "" {
		return ErrMissingSlackToken
	}
	if c.Crawl.PagePauseMs < 500 || c.Crawl.PagePauseMs > 1500 {
		return ErrInvalidPagePause
	}
	if c.Crawl.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Report.Months < 0 {
		return ErrInvalidMonths
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

func (c *CrawlConfig) PagePause() time.Duration {
	return time.Duration(c.PagePauseMs) * time.Millisecond
}

func (c *CrawlConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

func (c *SlackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSec) * time.Second
}

// LockRenew is how often a running harvest extends its channel lock.
func (c *RedisConfig) LockRenew() time.Duration {
	return c.LockTTL() / 3
}
