package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"Gin_postgres_redis_library/lending"
)

// Config 从环境变量读取
type Config struct {
	DatabaseURL    string
	RedisAddr      string
	RedisPwd       string
	RedisDB        int
	WebOrigin      string
	RPID           string
	RPOrigins      []string
	SessionTTL     time.Duration // WebAuthn 流程
	AppSessionTTL  time.Duration // 登录会话
	AdminEmails    []string
	BootstrapEmail string
	BorrowLimit    int
	LoanDays       int // 未指定应还日期时的默认借期
	LogLevel       string
	Port           string
}

func LoadConfig() Config {
	get := func(k, def string) string {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			return def
		}
		return v
	}
	getInt := func(k string, def int) int {
		if n, err := strconv.Atoi(get(k, "")); err == nil {
			return n
		}
		return def
	}
	csv := func(s string, lower bool) []string {
		var out []string
		for _, p := range strings.Split(s, ",") {
			if t := strings.TrimSpace(p); t != "" {
				if lower {
					t = strings.ToLower(t)
				}
				out = append(out, t)
			}
		}
		return out
	}

	webOrigin := get("WEB_ORIGIN", "http://localhost:5173")
	return Config{
		DatabaseURL:    get("DATABASE_URL", dsnFromParts(get)),
		RedisAddr:      get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0),
		WebOrigin:      webOrigin,
		RPID:           get("RP_ID", "localhost"),
		RPOrigins:      csv(get("RP_ORIGINS", webOrigin), false),
		SessionTTL:     time.Duration(getInt("SESSION_TTL_SECONDS", 600)) * time.Second,
		AppSessionTTL:  time.Duration(getInt("APP_SESSION_TTL_HOURS", 24)) * time.Hour,
		AdminEmails:    csv(os.Getenv("ADMIN_EMAILS"), true), // 例如: "admin@ex.com,ops@ex.com"
		BootstrapEmail: strings.ToLower(get("BOOTSTRAP_EMAIL", "")),
		BorrowLimit:    getInt("BORROW_LIMIT", lending.DefaultBorrowLimit),
		LoanDays:       getInt("LOAN_DAYS", 14),
		LogLevel:       get("LOG_LEVEL", "info"),
		Port:           get("PORT", "3001"),
	}
}

func dsnFromParts(get func(k, def string) string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		get("DB_HOST", "127.0.0.1"),
		get("DB_USER", "postgres"),
		get("DB_PASSWORD", "postgres"),
		get("DB_NAME", "library"),
		get("DB_PORT", "5432"),
		get("DB_SSLMODE", "disable"),
	)
}

// IsAdminEmail 环境变量 ADMIN_EMAILS 里的邮箱始终视为管理员
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if email == admin {
			return true
		}
	}
	return false
}

func (c Config) SecureCookies() bool { return strings.HasPrefix(c.WebOrigin, "https://") }
