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
	Port string // サーバーポート（8080）

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string
	DBMaxOpenConns   int
	DBMaxIdleConns   int

	JWTSecret string        // JWT署名シークレット
	JWTTTL    time.Duration // アクセストークンの有効期限

	GoEnv string // development/production
	FEURL string // フロントURL（CORS）

	// 空ならRedisを使わない
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration

	// 空ならイベントを送らない
	AMQPURL string

	// 空ならメールはログに出すだけ
	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	StoreEmail string

	UploadDir      string
	UploadMaxBytes int64

	PaymentApprovalRate float64

	LogFile  string
	LogLevel string
}

// Loadは環境変数から読む（.envはmainでgodotenvが読み込み済み）
func Load() (Config, error) {
	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		GoEnv: getenv("GO_ENV", "development"),
		FEURL: getenv("FE_URL", "http://localhost:3000"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		AMQPURL: os.Getenv("AMQP_URL"),

		SMTPHost:   os.Getenv("SMTP_HOST"),
		SMTPUser:   os.Getenv("SMTP_USER"),
		SMTPPass:   os.Getenv("SMTP_PASS"),
		StoreEmail: getenv("STORE_EMAIL", "contato@emyby.com.br"),

		UploadDir: getenv("UPLOAD_DIR", "public/uploads"),

		LogFile:  getenv("LOG_FILE", "logs/app.log"),
		LogLevel: getenv("LOG_LEVEL", "info"),
	}

	var err error

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		if cfg.PostgresPort, err = mustAtoi("POSTGRES_PORT"); err != nil {
			return Config{}, err
		}
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresPassword == "" {
			return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
		if cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("POSTGRES_HOST is required")
		}
	}

	//任意（デフォルトあり）
	if cfg.DBMaxOpenConns, err = atoiOr("DB_MAX_OPEN", 20); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxIdleConns, err = atoiOr("DB_MAX_IDLE", 5); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = atoiOr("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.SMTPPort, err = atoiOr("SMTP_PORT", 587); err != nil {
		return Config{}, err
	}
	if cfg.JWTTTL, err = durationOr("JWT_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationOr("IDEMPOTENCY_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	maxMB, err := atoiOr("UPLOAD_MAX_MB", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadMaxBytes = int64(maxMB) << 20

	cfg.PaymentApprovalRate = 0.9
	if v := os.Getenv("PAYMENT_APPROVAL_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("PAYMENT_APPROVAL_RATE must be between 0 and 1")
		}
		cfg.PaymentApprovalRate = f
	}

	return cfg, nil
}

// DSN はDATABASE_URLを優先し、なければPOSTGRES_*から組み立てる
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.GoEnv, "production")
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func atoiOr(key string, def int) (int, error) {
	if os.Getenv(key) == "" {
		return def, nil
	}
	return mustAtoi(key)
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

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
