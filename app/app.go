package app

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/logging"
	"Gin_postgres_redis_library/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB
	RDB     *redis.Client
	WA      *webauthn.WebAuthn
	Config  Config
	Log     *slog.Logger
	Repo    *db.Repo
	Lending *lending.Manager

	appSess    *session.AppSessionStore
	ceremonies *session.Store
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }
func (a *App) Ceremonies() *session.Store            { return a.ceremonies }

func MustNew() *App {
	cfg := LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// --- DB: Postgres ---
	dbConn := db.ConnectDB(cfg.DatabaseURL)
	repo := db.NewRepo(dbConn)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// --- WebAuthn RP ---
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Library Staff Passkeys",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		log.Fatalf("webauthn: %v", err)
	}

	// --- Gin ---
	r := gin.Default()
	useCORS(r, cfg.WebOrigin)
	r.Use(logging.Requests(logger))

	return &App{
		Router: r, DB: dbConn, RDB: rdb, WA: wa, Config: cfg, Log: logger, Repo: repo,
		Lending: lending.NewManager(repo,
			lending.WithBorrowLimit(cfg.BorrowLimit),
			lending.WithLogger(logger.With(slog.String("component", "lending"))),
		),
		appSess:    session.NewAppSessionStore(rdb, cfg.AppSessionTTL),
		ceremonies: session.NewStore(rdb, cfg.SessionTTL),
	}
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// 帮助函数：WebAuthn userHandle（UUID 字符串 → 16 字节）
func HandleBytes(handle string) []byte {
	id, err := uuid.Parse(handle)
	if err != nil {
		return []byte(handle)
	}
	return id[:]
}
