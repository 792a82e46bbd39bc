// Package config loads TrendRadar's YAML configuration.
//
// Files are decoded strictly (unknown keys are rejected) and a handful
// of deployment secrets can be overridden from the environment, so the
// same config file works across local runs and container deployments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	App          AppConfig          `json:"app"`
	Logging      LoggingConfig      `json:"logging"`
	Crawler      CrawlerConfig      `json:"crawler"`
	Report       ReportConfig       `json:"report"`
	Notification NotificationConfig `json:"notification"`
	Weight       WeightConfig       `json:"weight"`
	Storage      StorageConfig      `json:"storage"`
	Serve        ServeConfig        `json:"serve,omitempty"`
	Platforms    []Platform         `json:"platforms"`
}

type AppConfig struct {
	Name string `json:"name,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

func (c LoggingConfig) ConsoleEnabled() bool {
	if c.Console == nil {
		return true
	}
	return *c.Console
}

type CrawlerConfig struct {
	Enabled *bool  `json:"enable_crawler,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	// RequestIntervalMS paces platform requests.
	RequestIntervalMS int    `json:"request_interval,omitempty"`
	UseProxy          bool   `json:"use_proxy,omitempty"`
	DefaultProxy      string `json:"default_proxy,omitempty"`
}

func (c CrawlerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

type ReportConfig struct {
	// Mode is "daily", "current" or "incremental".
	Mode                string `json:"mode,omitempty"`
	RankThreshold       int    `json:"rank_threshold,omitempty"`
	SortByPositionFirst bool   `json:"sort_by_position_first,omitempty"`
	MaxNewsPerKeyword   int    `json:"max_news_per_keyword,omitempty"`
	ReverseContentOrder bool   `json:"reverse_content_order,omitempty"`
	// FrequencyFile is the word-group rules file.
	FrequencyFile string `json:"frequency_file,omitempty"`
}

type NotificationConfig struct {
	Enabled *bool `json:"enable_notification,omitempty"`

	MessageBatchSize  int `json:"message_batch_size,omitempty"`
	FeishuBatchSize   int `json:"feishu_batch_size,omitempty"`
	DingTalkBatchSize int `json:"dingtalk_batch_size,omitempty"`
	BarkBatchSize     int `json:"bark_batch_size,omitempty"`
	SlackBatchSize    int `json:"slack_batch_size,omitempty"`
	// BatchSendIntervalMS separates consecutive batches to one channel.
	BatchSendIntervalMS int `json:"batch_send_interval,omitempty"`

	Webhooks   WebhookConfig    `json:"webhooks,omitempty"`
	PushWindow PushWindowConfig `json:"push_window,omitempty"`
}

func (c NotificationConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

type WebhookConfig struct {
	FeishuURL   string `json:"feishu_url,omitempty"`
	DingTalkURL string `json:"dingtalk_url,omitempty"`
	WeWorkURL   string `json:"wework_url,omitempty"`
	SlackURL    string `json:"slack_webhook_url,omitempty"`
	BarkURL     string `json:"bark_url,omitempty"`

	NtfyServerURL string `json:"ntfy_server_url,omitempty"`
	NtfyTopic     string `json:"ntfy_topic,omitempty"`
	NtfyToken     string `json:"ntfy_token,omitempty"`

	TelegramBotToken string `json:"telegram_bot_token,omitempty"`
	TelegramChatID   int64  `json:"telegram_chat_id,omitempty"`
}

type PushWindowConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	// Start/End are HH:MM in the application zone.
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
	OncePerDay bool   `json:"once_per_day,omitempty"`
}

type WeightConfig struct {
	Rank      float64 `json:"rank_weight,omitempty"`
	Frequency float64 `json:"frequency_weight,omitempty"`
	Hotness   float64 `json:"hotness_weight,omitempty"`
}

type StorageConfig struct {
	// Driver is "postgres" or "text".
	Driver      string `json:"driver,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	// Dir is the text driver's data directory.
	Dir string `json:"dir,omitempty"`
}

type ServeConfig struct {
	Address string `json:"address,omitempty"`
}

type Platform struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "trendradar"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Crawler.BaseURL == "" {
		c.Crawler.BaseURL = "https://newsnow.busiyi.world"
	}
	if c.Crawler.RequestIntervalMS <= 0 {
		c.Crawler.RequestIntervalMS = 1000
	}
	if c.Report.Mode == "" {
		c.Report.Mode = "daily"
	}
	if c.Report.RankThreshold <= 0 {
		c.Report.RankThreshold = 5
	}
	if c.Report.FrequencyFile == "" {
		c.Report.FrequencyFile = "config/frequency_words.txt"
	}
	if c.Notification.MessageBatchSize <= 0 {
		c.Notification.MessageBatchSize = 4000
	}
	if c.Notification.FeishuBatchSize <= 0 {
		c.Notification.FeishuBatchSize = 29000
	}
	if c.Notification.DingTalkBatchSize <= 0 {
		c.Notification.DingTalkBatchSize = 20000
	}
	if c.Notification.BarkBatchSize <= 0 {
		c.Notification.BarkBatchSize = 3600
	}
	if c.Notification.SlackBatchSize <= 0 {
		c.Notification.SlackBatchSize = 4000
	}
	if c.Notification.BatchSendIntervalMS <= 0 {
		c.Notification.BatchSendIntervalMS = 1000
	}
	if c.Notification.PushWindow.Start == "" {
		c.Notification.PushWindow.Start = "08:00"
	}
	if c.Notification.PushWindow.End == "" {
		c.Notification.PushWindow.End = "22:00"
	}
	if c.Weight.Rank == 0 && c.Weight.Frequency == 0 && c.Weight.Hotness == 0 {
		c.Weight = WeightConfig{Rank: 0.6, Frequency: 0.3, Hotness: 0.1}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "text"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "output"
	}
	if c.Serve.Address == "" {
		c.Serve.Address = "127.0.0.1:8765"
	}
}

// applyEnv lets deployment environments override file values. Secrets
// in particular are usually injected this way rather than committed.
func (c *Config) applyEnv() error {
	if v, ok := lookupEnv("REPORT_MODE"); ok {
		c.Report.Mode = v
	}
	if v, ok := lookupEnv("SORT_BY_POSITION_FIRST"); ok {
		c.Report.SortByPositionFirst = isTrue(v)
	}
	if v, ok := lookupEnv("MAX_NEWS_PER_KEYWORD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_NEWS_PER_KEYWORD: %w", err)
		}
		c.Report.MaxNewsPerKeyword = n
	}
	if v, ok := lookupEnv("FREQUENCY_WORDS_PATH"); ok {
		c.Report.FrequencyFile = v
	}
	if v, ok := lookupEnv("ENABLE_CRAWLER"); ok {
		b := isTrue(v)
		c.Crawler.Enabled = &b
	}
	if v, ok := lookupEnv("ENABLE_NOTIFICATION"); ok {
		b := isTrue(v)
		c.Notification.Enabled = &b
	}
	if v, ok := lookupEnv("DATABASE_URL"); ok {
		c.Storage.DatabaseURL = v
		if c.Storage.Driver == "" || c.Storage.Driver == "text" {
			c.Storage.Driver = "postgres"
		}
	}
	if v, ok := lookupEnv("FEISHU_WEBHOOK_URL"); ok {
		c.Notification.Webhooks.FeishuURL = v
	}
	if v, ok := lookupEnv("DINGTALK_WEBHOOK_URL"); ok {
		c.Notification.Webhooks.DingTalkURL = v
	}
	if v, ok := lookupEnv("WEWORK_WEBHOOK_URL"); ok {
		c.Notification.Webhooks.WeWorkURL = v
	}
	if v, ok := lookupEnv("SLACK_WEBHOOK_URL"); ok {
		c.Notification.Webhooks.SlackURL = v
	}
	if v, ok := lookupEnv("BARK_URL"); ok {
		c.Notification.Webhooks.BarkURL = v
	}
	if v, ok := lookupEnv("NTFY_SERVER_URL"); ok {
		c.Notification.Webhooks.NtfyServerURL = v
	}
	if v, ok := lookupEnv("NTFY_TOPIC"); ok {
		c.Notification.Webhooks.NtfyTopic = v
	}
	if v, ok := lookupEnv("NTFY_TOKEN"); ok {
		c.Notification.Webhooks.NtfyToken = v
	}
	if v, ok := lookupEnv("TELEGRAM_BOT_TOKEN"); ok {
		c.Notification.Webhooks.TelegramBotToken = v
	}
	if v, ok := lookupEnv("TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Notification.Webhooks.TelegramChatID = id
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if strings.TrimSpace(c.Storage.DatabaseURL) == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	case "text":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if len(c.Platforms) == 0 && c.Crawler.IsEnabled() {
		return fmt.Errorf("at least one platform is required when the crawler is enabled")
	}
	for i, p := range c.Platforms {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("platforms[%d]: id is required", i)
		}
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
