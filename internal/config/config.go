// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RPCList      []string `mapstructure:"rpc_list"`
	DebugLogging bool     `mapstructure:"debug_logging"`
	LogFile      string   `mapstructure:"log_file"`

	StorageDriver string `mapstructure:"storage_driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	PostgresURL   string `mapstructure:"postgres_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	JupiterQuoteURL string  `mapstructure:"jupiter_quote_url"`
	JupiterSwapURL  string  `mapstructure:"jupiter_swap_url"`
	JupiterPriceURL string  `mapstructure:"jupiter_price_url"`
	DexScreenerURL  string  `mapstructure:"dexscreener_url"`
	CoinGeckoURL    string  `mapstructure:"coingecko_url"`
	QuoteRateLimit  float64 `mapstructure:"quote_rate_limit"`
	Retries         int     `mapstructure:"retries"`

	// Задержки и таймауты в миллисекундах (как monitor_delay/rpc_delay раньше)
	MonitorDelay     int `mapstructure:"monitor_delay"`
	ProviderTimeout  int `mapstructure:"provider_timeout"`
	PriceMaxAge      int `mapstructure:"price_max_age"`
	SellTimeout      int `mapstructure:"sell_timeout"`
	HealthCheckDelay int `mapstructure:"health_check_delay"`
	ConfirmTimeout   int `mapstructure:"confirm_timeout"`
	SessionTTL       int `mapstructure:"session_ttl"`
	ShutdownTimeout  int `mapstructure:"shutdown_timeout"`

	ConfirmTransactions bool `mapstructure:"confirm_transactions"`

	FeeReserveLamports uint64  `mapstructure:"fee_reserve_lamports"`
	PriorityLevel      string  `mapstructure:"priority_level"`
	SOLFallbackPrice   float64 `mapstructure:"sol_fallback_price"`

	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
}

const (
	DefaultMonitorDelay     = 12_000
	DefaultProviderTimeout  = 5_000
	DefaultPriceMaxAge      = 120_000
	DefaultSellTimeout      = 60_000
	DefaultHealthCheckDelay = 30_000
	DefaultConfirmTimeout   = 45_000
	DefaultSessionTTL       = 30 * 60 * 1000
	DefaultShutdownTimeout  = 30_000
	DefaultRetries          = 3
	DefaultQuoteRateLimit   = 5
	DefaultFeeReserve       = 5_000_000 // 0.005 SOL
	DefaultSOLFallbackPrice = 150.0

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"rpc_list":             []string{"https://api.mainnet-beta.solana.com"},
		"debug_logging":        false,
		"log_file":             "logs/sentinel.log",
		"storage_driver":       DriverSQLite,
		"sqlite_path":          "data/sentinel.db",
		"postgres_url":         "",
		"redis_addr":           "",
		"redis_password":       "",
		"redis_db":             0,
		"jupiter_quote_url":    "https://quote-api.jup.ag/v6/quote",
		"jupiter_swap_url":     "https://quote-api.jup.ag/v6/swap",
		"jupiter_price_url":    "https://api.jup.ag/price/v2",
		"dexscreener_url":      "https://api.dexscreener.com/latest/dex",
		"coingecko_url":        "https://api.coingecko.com/api/v3",
		"quote_rate_limit":     DefaultQuoteRateLimit,
		"retries":              DefaultRetries,
		"monitor_delay":        DefaultMonitorDelay,
		"provider_timeout":     DefaultProviderTimeout,
		"price_max_age":        DefaultPriceMaxAge,
		"sell_timeout":         DefaultSellTimeout,
		"health_check_delay":   DefaultHealthCheckDelay,
		"confirm_timeout":      DefaultConfirmTimeout,
		"session_ttl":          DefaultSessionTTL,
		"shutdown_timeout":     DefaultShutdownTimeout,
		"confirm_transactions": true,
		"fee_reserve_lamports": DefaultFeeReserve,
		"priority_level":       "medium",
		"sol_fallback_price":   DefaultSOLFallbackPrice,
		"telegram_token":       "",
		"telegram_chat_id":     "",
		"metrics_addr":         "",
	}
}

// LoadConfig читает файл конфигурации (если задан) и применяет переменные
// окружения с префиксом SENTINEL_.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	loadRPCList(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

// loadRPCList разбирает SENTINEL_RPC_LIST как список через запятую.
func loadRPCList(v *viper.Viper, cfg *Config) {
	raw := v.GetString("RPC_LIST")
	if raw == "" || strings.HasPrefix(raw, "[") {
		cfg.RPCList = cleanList(cfg.RPCList)
		return
	}
	if list := cleanList(strings.Split(raw, ",")); len(list) > 0 {
		cfg.RPCList = list
	}
}

func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		if clean := strings.TrimSpace(item); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	for name, raw := range map[string]string{
		"jupiter_quote_url": cfg.JupiterQuoteURL,
		"jupiter_swap_url":  cfg.JupiterSwapURL,
		"jupiter_price_url": cfg.JupiterPriceURL,
		"dexscreener_url":   cfg.DexScreenerURL,
		"coingecko_url":     cfg.CoinGeckoURL,
	} {
		if err := validateURL(raw, "http"); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	switch cfg.StorageDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return errors.New("sqlite_path is required for sqlite storage")
		}
	case DriverPostgres:
		if cfg.PostgresURL == "" {
			return errors.New("postgres_url is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage_driver %q", cfg.StorageDriver)
	}

	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == "") {
		return errors.New("telegram_token and telegram_chat_id must be set together")
	}

	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	positive := map[string]int{
		"monitor_delay":      cfg.MonitorDelay,
		"provider_timeout":   cfg.ProviderTimeout,
		"price_max_age":      cfg.PriceMaxAge,
		"sell_timeout":       cfg.SellTimeout,
		"health_check_delay": cfg.HealthCheckDelay,
		"confirm_timeout":    cfg.ConfirmTimeout,
		"session_ttl":        cfg.SessionTTL,
		"shutdown_timeout":   cfg.ShutdownTimeout,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.QuoteRateLimit <= 0 {
		return errors.New("invalid quote_rate_limit")
	}
	if cfg.SOLFallbackPrice <= 0 {
		return errors.New("invalid sol_fallback_price")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c *Config) MonitorInterval() time.Duration { return ms(c.MonitorDelay) }
func (c *Config) ProviderTimeoutDuration() time.Duration { return ms(c.ProviderTimeout) }
func (c *Config) PriceMaxAgeDuration() time.Duration { return ms(c.PriceMaxAge) }
func (c *Config) SellTimeoutDuration() time.Duration { return ms(c.SellTimeout) }
func (c *Config) HealthCheckInterval() time.Duration { return ms(c.HealthCheckDelay) }
func (c *Config) ConfirmTimeoutDuration() time.Duration { return ms(c.ConfirmTimeout) }
func (c *Config) SessionTTLDuration() time.Duration { return ms(c.SessionTTL) }
func (c *Config) ShutdownTimeoutDuration() time.Duration { return ms(c.ShutdownTimeout) }
