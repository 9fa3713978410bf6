package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "THREATHUB_CONFIG"

	defaultUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAIEndpoint   = "https://api.openai.com/v1/chat/completions"
	defaultAIModel      = "gpt-4o-mini"
	defaultSystemPrompt = "You are a cybersecurity analyst. Summarize the following security news in 3-5 sentences for a security operations team. Do not include any greeting or preamble."
)

// Config 服务整体配置：环境变量为主，可选 YAML 文件覆盖
type Config struct {
	AppPort  string `yaml:"appPort"`
	LogLevel string `yaml:"logLevel"`

	// 为空时不启用对应的存储
	PostgresDSN string `yaml:"postgresDsn"`
	RedisAddr   string `yaml:"redisAddr"`

	CronSpec string `yaml:"cronSpec"`

	Fetch FetchConfig `yaml:"fetch"`
	AI    AIConfig    `yaml:"ai"`
}

// FetchConfig 列表页与正文抓取相关配置
type FetchConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	Timeout           time.Duration `yaml:"timeout"`
	EnrichConcurrency int           `yaml:"enrichConcurrency"`
}

// AIConfig 摘要所用的 chat-completion 接口配置
type AIConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

func Load() *Config {
	cfg := &Config{
		AppPort:     getEnv("APP_PORT", "9000"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		CronSpec:    getEnv("CRON_SPEC", "*/30 * * * *"),
		Fetch: FetchConfig{
			UserAgent:         getEnv("USER_AGENT", defaultUserAgent),
			Timeout:           getDuration("FETCH_TIMEOUT", 15*time.Second),
			EnrichConcurrency: getInt("ENRICH_CONCURRENCY", 4),
		},
		AI: AIConfig{
			Endpoint:     getEnv("AI_ENDPOINT", defaultAIEndpoint),
			Model:        getEnv("AI_MODEL", defaultAIModel),
			APIKey:       getEnv("AI_API_KEY", ""),
			SystemPrompt: defaultSystemPrompt,
			Timeout:      getDuration("AI_TIMEOUT", 30*time.Second),
		},
	}

	// 配置文件只覆盖非空字段，环境变量仍然是默认来源
	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			log.Printf("config: ignore %s: %v", path, err)
		}
	}

	log.Printf("config loaded: port=%s cron=%s redis=%t postgres=%t ai=%t",
		cfg.AppPort, cfg.CronSpec, cfg.RedisAddr != "", cfg.PostgresDSN != "", cfg.AI.APIKey != "")
	return cfg
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file Config
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return err
	}
	merge(c, file)
	return nil
}

func merge(base *Config, override Config) {
	setString(&base.AppPort, override.AppPort)
	setString(&base.LogLevel, override.LogLevel)
	setString(&base.PostgresDSN, override.PostgresDSN)
	setString(&base.RedisAddr, override.RedisAddr)
	setString(&base.CronSpec, override.CronSpec)

	setString(&base.Fetch.UserAgent, override.Fetch.UserAgent)
	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.EnrichConcurrency > 0 {
		base.Fetch.EnrichConcurrency = override.Fetch.EnrichConcurrency
	}

	setString(&base.AI.Endpoint, override.AI.Endpoint)
	setString(&base.AI.Model, override.AI.Model)
	setString(&base.AI.APIKey, override.AI.APIKey)
	setString(&base.AI.SystemPrompt, override.AI.SystemPrompt)
	if override.AI.Timeout > 0 {
		base.AI.Timeout = override.AI.Timeout
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("config: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
