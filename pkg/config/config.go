package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var REQUIRED_ENV = []string{
	"ADDR",
	"BASE_URL",
	"TOKEN_SECRET",
	"REDIS_HOST",
	"REDIS_PORT",
	"POSTGRES_HOST",
	"POSTGRES_PORT",
	"POSTGRES_USER",
	"POSTGRES_PASSWORD",
	"POSTGRES_DB",
	"SMTP_HOST",
	"SMTP_PORT",
	"MAIL_FROM",
}

type Config struct {
	Addr    string
	BaseURL string

	// TokenSecret keys every referral token and member cookie. Changing it
	// breaks links in emails already sent.
	TokenSecret string

	RedisHost string
	RedisPort string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	TokenBackfillInterval time.Duration
	SignRateLimit         int
}

// Load reads ./.env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	missing := checkenv(REQUIRED_ENV)
	if len(missing) != 0 {
		return nil, fmt.Errorf("missing %v in env", strings.Join(missing, ", "))
	}

	smtpPort, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		return nil, fmt.Errorf("SMTP_PORT: %w", err)
	}

	conf := &Config{
		Addr:             os.Getenv("ADDR"),
		BaseURL:          os.Getenv("BASE_URL"),
		TokenSecret:      os.Getenv("TOKEN_SECRET"),
		RedisHost:        os.Getenv("REDIS_HOST"),
		RedisPort:        os.Getenv("REDIS_PORT"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     os.Getenv("POSTGRES_PORT"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         smtpPort,
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		MailFrom:         os.Getenv("MAIL_FROM"),

		TokenBackfillInterval: 5 * time.Minute,
		SignRateLimit:         10,
	}

	if v, ok := os.LookupEnv("TOKEN_BACKFILL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("TOKEN_BACKFILL_INTERVAL must be a positive duration, got %q", v)
		}
		conf.TokenBackfillInterval = d
	}

	if v, ok := os.LookupEnv("SIGN_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("SIGN_RATE_LIMIT must be a non-negative integer, got %q", v)
		}
		conf.SignRateLimit = n
	}

	if _, err := url.ParseRequestURI(conf.BaseURL); err != nil {
		log.Printf("BASE_URL %q does not look like an absolute URL\n", conf.BaseURL)
	}

	return conf, nil
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func (c *Config) PostgresURL() string {
	u := url.URL{
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Scheme: "postgres",
		Host:   c.PostgresHost + ":" + c.PostgresPort,
		Path:   c.PostgresDB,
		RawQuery: url.Values{
			"sslmode":  {"disable"},
			"TimeZone": {"America/New_York"},
		}.Encode(),
	}

	return u.String()
}

func checkenv(keys []string) []string {
	var missing []string
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); len(val) == 0 || !ok {
			missing = append(missing, key)
		}
	}

	return missing
}
