package config // loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. Every field is populated once at
// startup; nothing reads the environment after Load returns.
type Config struct {
	Env  string
	Port string

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret    string
	AccessTTLMin int
	MaxSessions  int           // per-user device session cap; 0 disables the cap
	RenewExpire  time.Duration // grace window for renewing an expired access token
	BcryptCost   int

	ResetTokenTTL time.Duration
	WebsiteURL    string // base URL embedded in reset links

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	SweepCron string
}

// Load reads the environment (after an optional .env file) and validates
// everything eagerly. All missing or malformed variables are reported in
// one aggregated error so a broken deployment fails fast with the complete
// list instead of one variable per restart.
func Load() (Config, error) {
	_ = godotenv.Load()

	var problems []string
	str := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			problems = append(problems, "missing required env var: "+key)
		}
		return v
	}
	optional := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}
	num := func(key string) int {
		s := str(key)
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid int for %s: %q", key, s))
		}
		return n
	}
	numDefault := func(key string, def int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid int for %s: %q", key, s))
			return def
		}
		return n
	}

	cfg := Config{
		Env:  str("APP_ENV"),
		Port: str("APP_PORT"),

		DBUser: str("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: str("DB_HOST"),
		DBPort: str("DB_PORT"),
		DBName: str("DB_NAME"),

		JWTSecret:    str("JWT_SECRET"),
		AccessTTLMin: num("ACCESS_TOKEN_TTL_MIN"),
		MaxSessions:  num("MAX_SESSIONS"),
		RenewExpire:  time.Duration(num("ACCESS_TOKEN_RENEW_EXPIRE_MS")) * time.Millisecond,
		BcryptCost:   numDefault("BCRYPT_COST", 10),

		ResetTokenTTL: time.Duration(numDefault("RESET_TOKEN_TTL_MIN", 1440)) * time.Minute,
		WebsiteURL:    strings.TrimRight(str("WEBSITE_URL"), "/"),

		SMTPHost: str("SMTP_HOST"),
		SMTPPort: str("SMTP_PORT"),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: str("MAIL_FROM"),

		SweepCron: optional("SWEEP_CRON", "*/30 * * * *"),
	}

	if cfg.MaxSessions < 0 {
		problems = append(problems, "MAX_SESSIONS must not be negative")
	}
	if cfg.AccessTTLMin < 0 {
		problems = append(problems, "ACCESS_TOKEN_TTL_MIN must not be negative")
	}
	if cfg.RenewExpire < 0 {
		problems = append(problems, "ACCESS_TOKEN_RENEW_EXPIRE_MS must not be negative")
	}

	if len(problems) > 0 {
		return Config{}, errors.New("config: " + strings.Join(problems, "; "))
	}
	return cfg, nil
}
