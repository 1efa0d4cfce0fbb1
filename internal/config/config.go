package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

const envPrefix = "INDIGO_POY"

// Cache backends.
const (
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Endpoint     string
	Token        string
	RateLimit    float64
	RateBurst    int
	HTTPTimeout  time.Duration
	CacheBackend string
	CacheDir     string
	PGDSN        string
	RedisURL     string
	RedisPrefix  string
	Offline      bool
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	FetchTimeout time.Duration
	PageLimit    int
	TxBatchSize  int
	ReportsDir   string
	Name         string
	EventsOut    string
	MetricsFile  string
	LogLevel     string

	Addresses    []string
	StakeAddress string
	From         string
	To           string
	Window       model.Window

	Protocol model.Protocol
}

// Scope builds the run scope from the address flags and window bounds.
func (c Config) Scope() model.Scope {
	return model.NewScope(c.Addresses, c.StakeAddress, c.Window)
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("endpoint", "https://api.koios.rest/api/v1")
	v.SetDefault("rate-limit", 5.0)
	v.SetDefault("rate-burst", 1)
	v.SetDefault("http-timeout", 60*time.Second)
	v.SetDefault("cache-backend", BackendBolt)
	v.SetDefault("cache-dir", "./data/cache")
	v.SetDefault("redis-prefix", "indigo-poy:")
	v.SetDefault("offline", false)
	v.SetDefault("workers", 4)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("fetch-timeout", 30*time.Second)
	v.SetDefault("page-limit", model.DefaultPageLimit)
	v.SetDefault("tx-batch", model.DefaultTxBatchSize)
	v.SetDefault("reports-dir", "./reports")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Endpoint:     v.GetString("endpoint"),
		Token:        v.GetString("token"),
		RateLimit:    v.GetFloat64("rate-limit"),
		RateBurst:    v.GetInt("rate-burst"),
		HTTPTimeout:  v.GetDuration("http-timeout"),
		CacheBackend: strings.ToLower(strings.TrimSpace(v.GetString("cache-backend"))),
		CacheDir:     v.GetString("cache-dir"),
		PGDSN:        v.GetString("pg-dsn"),
		RedisURL:     v.GetString("redis-url"),
		RedisPrefix:  v.GetString("redis-prefix"),
		Offline:      v.GetBool("offline"),
		Workers:      v.GetInt("workers"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		FetchTimeout: v.GetDuration("fetch-timeout"),
		PageLimit:    v.GetInt("page-limit"),
		TxBatchSize:  v.GetInt("tx-batch"),
		ReportsDir:   v.GetString("reports-dir"),
		Name:         strings.TrimSpace(v.GetString("name")),
		EventsOut:    v.GetString("events-out"),
		MetricsFile:  v.GetString("metrics-file"),
		LogLevel:     v.GetString("log-level"),
		Addresses:    getStringSlice(v, "address"),
		StakeAddress: strings.TrimSpace(v.GetString("stake-address")),
		From:         strings.TrimSpace(v.GetString("from")),
		To:           strings.TrimSpace(v.GetString("to")),
	}

	protocol, err := decodeProtocol(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Protocol = protocol

	window, err := ParseWindow(cfg.From, cfg.To)
	if err != nil {
		return Config{}, err
	}
	cfg.Window = window

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CacheBackend {
	case BackendBolt, BackendMemory:
	case BackendPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("cache backend postgres requires pg-dsn")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("cache backend redis requires redis-url")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if c.PageLimit < 1 || c.TxBatchSize < 1 {
		return fmt.Errorf("page-limit and tx-batch must be positive")
	}
	return nil
}

// ValidateScope checks that a command which reconstructs a scope was given one.
func (c Config) ValidateScope() error {
	if len(c.Addresses) == 0 && c.StakeAddress == "" {
		return fmt.Errorf("at least one --address or a --stake-address is required")
	}
	for _, addr := range c.Addresses {
		if err := ValidateAddress(addr); err != nil {
			return err
		}
	}
	if c.StakeAddress != "" {
		if err := ValidateStakeAddress(c.StakeAddress); err != nil {
			return err
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return splitEach(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitEach(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, splitAndClean(item)...)
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
