package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // development/production

	DatabaseURL string // DSN（DATABASE_URL or POSTGRES_*から組み立て）

	JWTSecret      string        // JWT署名シークレット
	AccessTokenTTL time.Duration // アクセストークンの有効期限

	Mpesa MpesaConfig

	RedisURL     string        // 空ならメモリキャッシュ
	RoleCacheTTL time.Duration // ロールキャッシュのTTL

	KafkaBrokers      []string // 空ならイベント送信しない
	KafkaPaymentTopic string

	LoginRatePerMinute int
}

// M-Pesa(Daraja)の接続設定。
// 資格情報が空でも起動はする（リクエスト時に400で返す）。
type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// 資格情報がそろっているか
func (m MpesaConfig) Configured() bool {
	return m.ConsumerKey != "" && m.ConsumerSecret != "" &&
		m.ShortCode != "" && m.Passkey != "" && m.CallbackURL != ""
}

// Loadは環境変数
func Load() (Config, error) {
	accessTTL, err := durationOr("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	roleTTL, err := durationOr("ROLE_CACHE_TTL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	mpesaTimeout, err := durationOr("MPESA_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, err
	}
	loginRate, err := atoiOr("LOGIN_RATE_PER_MINUTE", 30)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:  getenv("PORT", "8080"),
		GoEnv: getenv("GO_ENV", "development"),

		DatabaseURL: databaseURL(),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		AccessTokenTTL: accessTTL,

		Mpesa: MpesaConfig{
			BaseURL:        getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_SHORTCODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
			Timeout:        mpesaTimeout,
		},

		RedisURL:     os.Getenv("REDIS_URL"),
		RoleCacheTTL: roleTTL,

		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaPaymentTopic: getenv("KAFKA_PAYMENT_TOPIC", "payment-events"),

		LoginRatePerMinute: loginRate,
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or POSTGRES_* is required")
	}
	if cfg.LoginRatePerMinute <= 0 {
		return Config{}, fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive")
	}

	return cfg, nil
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// DATABASE_URL があれば最優先
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host,
		getenv("POSTGRES_PORT", "5432"),
		getenv("POSTGRES_USER", "postgres"),
		getenv("POSTGRES_PASSWORD", "postgres"),
		getenv("POSTGRES_DB", "smarthub"),
		getenv("POSTGRES_SSLMODE", "disable"),
	)
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
