package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"paygate/internal/payment"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr          string
		PublicURL     string
		AllowedOrigin string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret string
		DevMode   bool
		TokenTTL  time.Duration
	}
	Payment struct {
		StripeSecretKey string
		WebhookSecret   string
		// Prices maps an entitlement tier to a Stripe price id.
		Prices     map[string]string
		SuccessURL string
		CancelURL  string
		SessionTTL time.Duration
		Timeout    time.Duration
	}
	RateLimit struct {
		MaxAttempts int
		Window      time.Duration
	}
	Telegram struct {
		BotToken      string
		WebhookSecret string
		PurchaseURL   string
		Timeout       time.Duration
	}
	AI struct {
		APIKey  string
		BaseURL string
		Model   string
		Timeout time.Duration
	}
	Workers struct {
		Count      int
		QueueSize  int
		JobTimeout time.Duration
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("PAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.publicurl", "http://localhost:8080")
	v.SetDefault("server.allowedorigin", "*")
	v.SetDefault("database.path", "data/paygate.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.devmode", false)
	v.SetDefault("auth.tokenttl", 24*time.Hour)
	v.SetDefault("payment.stripesecretkey", "")
	v.SetDefault("payment.webhooksecret", "")
	v.SetDefault("payment.prices.basic", "")
	v.SetDefault("payment.prices.lifetime", "")
	v.SetDefault("payment.prices.premium", "")
	v.SetDefault("payment.successurl", "")
	v.SetDefault("payment.cancelurl", "")
	v.SetDefault("payment.sessionttl", 45*time.Minute)
	v.SetDefault("payment.timeout", 15*time.Second)
	v.SetDefault("ratelimit.maxattempts", 5)
	v.SetDefault("ratelimit.window", time.Hour)
	v.SetDefault("telegram.bottoken", "")
	v.SetDefault("telegram.webhooksecret", "")
	v.SetDefault("telegram.purchaseurl", "")
	v.SetDefault("telegram.timeout", 10*time.Second)
	v.SetDefault("ai.apikey", "")
	v.SetDefault("ai.baseurl", "")
	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("ai.timeout", 15*time.Second)
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queuesize", 128)
	v.SetDefault("workers.jobtimeout", 45*time.Second)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "paygate")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	base := strings.TrimRight(cfg.Server.PublicURL, "/")
	if cfg.Payment.SuccessURL == "" {
		cfg.Payment.SuccessURL = base + "/success"
	}
	if cfg.Payment.CancelURL == "" {
		cfg.Payment.CancelURL = base + "/cancel"
	}
	if cfg.Telegram.PurchaseURL == "" {
		cfg.Telegram.PurchaseURL = base
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && !c.Auth.DevMode {
		errs = append(errs, errors.New("auth jwt secret is required outside dev mode"))
	}
	if strings.TrimSpace(c.Payment.StripeSecretKey) == "" {
		errs = append(errs, errors.New("payment stripe secret key is required"))
	}
	if strings.TrimSpace(c.Payment.WebhookSecret) == "" {
		errs = append(errs, errors.New("payment webhook secret is required"))
	}
	priced := 0
	for _, price := range c.Payment.Prices {
		if strings.TrimSpace(price) != "" {
			priced++
		}
	}
	if priced == 0 {
		errs = append(errs, errors.New("at least one payment price is required"))
	}
	if c.Payment.SessionTTL < payment.MinSessionTTL || c.Payment.SessionTTL > payment.MaxSessionTTL {
		errs = append(errs, fmt.Errorf("payment session ttl must be between %s and %s", payment.MinSessionTTL, payment.MaxSessionTTL))
	}
	if c.Telegram.BotToken != "" && c.Telegram.WebhookSecret == "" {
		errs = append(errs, errors.New("telegram webhook secret is required when a bot token is set"))
	}
	return errors.Join(errs...)
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
