package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Market     MarketConfig     `mapstructure:"market"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Cron       CronConfig       `mapstructure:"cron"`
	AutoNotify AutoNotifyConfig `mapstructure:"auto_notify"`
	Report     ReportConfig     `mapstructure:"report"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MilvusConfig struct {
	Addr       string        `mapstructure:"addr"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig covers both chat providers. They share the OpenAI-compatible
// wire shape and differ only in base URL and API key.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	RouterKey   string        `mapstructure:"router_key"`
	RouterURL   string        `mapstructure:"router_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type EmbeddingConfig struct {
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSleep time.Duration `mapstructure:"batch_sleep"`
}

type MarketConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Token      string `mapstructure:"token"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AutoNotify  string `mapstructure:"auto_notify"`
	Evaluation  string `mapstructure:"evaluation"`
	Aggregation string `mapstructure:"aggregation"`
	Embedding   string `mapstructure:"embedding"`
}

type AutoNotifyConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Lookback        time.Duration `mapstructure:"lookback"`
	BatchLimit      int           `mapstructure:"batch_limit"`
	DedupHigh       float64       `mapstructure:"dedup_high"`
	DedupMedium     float64       `mapstructure:"dedup_medium"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	SearchTopK      int           `mapstructure:"search_top_k"`
	SearchThreshold float64       `mapstructure:"search_threshold"`
}

type ReportConfig struct {
	ABTestEnabled  bool `mapstructure:"ab_test_enabled"`
	MaxPredictions int  `mapstructure:"max_predictions"`
}

type EvaluationConfig struct {
	HorizonDays  int `mapstructure:"horizon_days"`
	LookbackDays int `mapstructure:"lookback_days"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "Asia/Seoul")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("milvus.addr", "localhost:19530")
	v.SetDefault("milvus.collection", "news_embeddings")
	v.SetDefault("milvus.timeout", "15s")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.router_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.batch_sleep", "100ms")
	v.SetDefault("market.timeout", "10s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.auto_notify", "@every 5m")
	v.SetDefault("cron.evaluation", "0 0 17 * * 1-5")
	v.SetDefault("cron.aggregation", "0 30 17 * * 1-5")
	v.SetDefault("cron.embedding", "@every 10m")
	v.SetDefault("auto_notify.enabled", true)
	v.SetDefault("auto_notify.lookback", "15m")
	v.SetDefault("auto_notify.batch_limit", 10)
	v.SetDefault("auto_notify.dedup_high", 0.95)
	v.SetDefault("auto_notify.dedup_medium", 0.90)
	v.SetDefault("auto_notify.dedup_window", "4h")
	v.SetDefault("auto_notify.search_top_k", 5)
	v.SetDefault("auto_notify.search_threshold", 0.5)
	v.SetDefault("report.ab_test_enabled", false)
	v.SetDefault("report.max_predictions", 20)
	v.SetDefault("evaluation.horizon_days", 5)
	v.SetDefault("evaluation.lookback_days", 7)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
