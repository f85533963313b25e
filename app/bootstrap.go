// app/bootstrap.go
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"Gin_postgres_redis_library/models"
)

type InviteIssuer interface {
	CountAdmins(ctx context.Context) (int64, error)
	CreateInvite(ctx context.Context, inv *models.Invite) error
}

// NewToken 生成一次性邀请 token
func NewToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func InviteLink(webOrigin, token string) string {
	return strings.TrimRight(webOrigin, "/") + "/login?inviteToken=" + token
}

// BootstrapFirstAdmin 库里还没有管理员时，给 BOOTSTRAP_EMAIL 发一个管理员邀请
func BootstrapFirstAdmin(ctx context.Context, cfg Config, repo InviteIssuer) (string, error) {
	if cfg.BootstrapEmail == "" {
		return "", nil
	}
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return "", fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return "", nil // 已经有管理员，跳过
	}

	token := NewToken()
	if err := repo.CreateInvite(ctx, &models.Invite{
		Email:     cfg.BootstrapEmail,
		Position:  "Administrator",
		IsAdmin:   true,
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		CreatedBy: "bootstrap",
	}); err != nil {
		return "", fmt.Errorf("bootstrap invite: %w", err)
	}

	// 打印邀请链接（直接点开注册）
	link := InviteLink(cfg.WebOrigin, token)
	log.Printf("[BOOTSTRAP] No admin found, created an admin invite for %s", cfg.BootstrapEmail)
	log.Printf("[BOOTSTRAP] Open this URL to register the first admin: %s", link)
	return link, nil
}
