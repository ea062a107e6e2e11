package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"kabunotify/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Discord struct {
		BotToken      string `yaml:"bot_token"`
		ClientID      string `yaml:"client_id"`
		GuildID       string `yaml:"guild_id"` // deploy-commands target; empty registers globally
		CommandPrefix string `yaml:"command_prefix"`
	} `yaml:"discord"`
	Yahoo struct {
		BaseURL           string        `yaml:"base_url"`
		UserAgent         string        `yaml:"user_agent"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		RetryMax          int           `yaml:"retry_max"`
		RetryDelay        time.Duration `yaml:"retry_delay"`
		Concurrency       int           `yaml:"concurrency"`
		HistoryDays       int           `yaml:"history_days"`
	} `yaml:"yahoo"`
	Scheduler struct {
		Timezone     string        `yaml:"timezone"`
		AllowOverlap bool          `yaml:"allow_overlap"`
		StopTimeout  time.Duration `yaml:"stop_timeout"`
	} `yaml:"scheduler"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath  string        `yaml:"sqlite_path"`
		BusyTimeout time.Duration `yaml:"busy_timeout"`
	} `yaml:"database"`
	Status struct {
		Addr string `yaml:"addr"` // empty disables the status server
	} `yaml:"status"`
	Log   logging.Config `yaml:"log"`
	Proxy string         `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Log.Console = true
	// Zero is a valid retry budget, so the default is seeded before decoding.
	cfg.Yahoo.RetryMax = 2

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Discord.BotToken = v
	}
	if v := os.Getenv("DISCORD_CLIENT_ID"); v != "" {
		cfg.Discord.ClientID = v
	}
	if v := os.Getenv("DISCORD_GUILD_ID"); v != "" {
		cfg.Discord.GuildID = v
	}
	if v := os.Getenv("COMMAND_PREFIX"); v != "" {
		cfg.Discord.CommandPrefix = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Scheduler.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.FilePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("STATUS_ADDR"); v != "" {
		cfg.Status.Addr = v
	}

	// Defaults
	if cfg.Yahoo.BaseURL == "" {
		cfg.Yahoo.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Yahoo.UserAgent == "" {
		cfg.Yahoo.UserAgent = "kabu-notify-bot/1.0"
	}
	if cfg.Yahoo.Timeout == 0 {
		cfg.Yahoo.Timeout = 10 * time.Second
	}
	if cfg.Yahoo.RequestsPerSecond == 0 {
		cfg.Yahoo.RequestsPerSecond = 5
	}
	if cfg.Yahoo.RetryDelay == 0 {
		cfg.Yahoo.RetryDelay = time.Second
	}
	if cfg.Yahoo.Concurrency == 0 {
		cfg.Yahoo.Concurrency = 8
	}
	if cfg.Yahoo.HistoryDays == 0 {
		cfg.Yahoo.HistoryDays = 30
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Asia/Tokyo"
	}
	if cfg.Scheduler.StopTimeout == 0 {
		cfg.Scheduler.StopTimeout = 30 * time.Second
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/kabu-notify.db"
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

// Validate checks that all fields required to run the bot are set.
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("discord.bot_token is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Yahoo.RetryMax < 0 {
		return fmt.Errorf("yahoo.retry_max must not be negative")
	}
	if c.Yahoo.HistoryDays < 0 {
		return fmt.Errorf("yahoo.history_days must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// ValidateDeploy checks the fields needed to register slash commands.
func (c *Config) ValidateDeploy() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("discord.bot_token is required")
	}
	if c.Discord.ClientID == "" {
		return fmt.Errorf("discord.client_id is required")
	}
	return nil
}

// Location resolves the timezone every trigger is evaluated in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}
