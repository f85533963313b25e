package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
)

func hashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	return string(b), err
}

// POST /api/auth/login
func (s *Srv) PasswordLogin(c *gin.Context) {
	var in struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	e, err := s.Repo.FindEmployeeByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		writeError(c, err)
		return
	}
	// 账号不存在和密码错误返回同样的信息
	if e == nil || e.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(in.Password)) != nil {
		invalidCredentials(c)
		return
	}

	if err := s.issueSession(ctx, c.Writer, e.ID, "password", c.ClientIP(), c.Request.UserAgent()); err != nil {
		sessionFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "employee": e})
}

// POST /api/auth/accept-invite：不用 passkey，直接设密码完成注册
func (s *Srv) AcceptInviteWithPassword(c *gin.Context) {
	var in struct {
		InviteToken string `json:"inviteToken" binding:"required"`
		Password    string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(in.Password) < minPasswordLength {
		badRequest(c, "password too short")
		return
	}
	ctx := c.Request.Context()

	hash, err := hashPassword(in.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	e, err := s.Repo.AcceptInvite(ctx, in.InviteToken, time.Now(), func(tx *db.Repo, e *models.Employee) error {
		return tx.SetEmployeePassword(ctx, e.ID, hash)
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.issueSession(ctx, c.Writer, e.ID, "password", c.ClientIP(), c.Request.UserAgent()); err != nil {
		sessionFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "employee": e})
}

// PUT /api/auth/password
func (s *Srv) ChangePassword(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	var in struct {
		Current string `json:"currentPassword"`
		New     string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(in.New) < minPasswordLength {
		badRequest(c, "password too short")
		return
	}
	ctx := c.Request.Context()

	e, err := s.Repo.FindEmployeeByID(ctx, eid)
	if err != nil {
		writeError(c, err)
		return
	}
	// 只用 passkey 注册的员工第一次设密码时不校验旧密码
	if e.PasswordHash != "" &&
		bcrypt.CompareHashAndPassword([]byte(e.PasswordHash), []byte(in.Current)) != nil {
		app.AbortError(c, http.StatusForbidden, "WRONG_PASSWORD", "current password is wrong")
		return
	}
	hash, err := hashPassword(in.New)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.Repo.SetEmployeePassword(ctx, eid, hash); err != nil {
		writeError(c, err)
		return
	}

	// 其他设备上的会话全部失效，当前会话重新签发
	_ = s.AppSess.RevokeAllForEmployee(ctx, eid)
	if err := s.issueSession(ctx, c.Writer, eid, "password", c.ClientIP(), c.Request.UserAgent()); err != nil {
		sessionFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/auth/whoami
func (s *Srv) WhoAmI(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	ctx := c.Request.Context()
	e, err := s.Repo.FindEmployeeByID(ctx, eid)
	if err != nil {
		unauthorized(c)
		return
	}
	credCount, _ := s.Repo.CountCredentials(ctx, eid)

	c.JSON(http.StatusOK, app.H{
		"employee":    e,
		"isAdmin":     c.GetBool(app.CtxIsAdmin),
		"credentials": credCount,
		"hasPassword": strings.TrimSpace(e.PasswordHash) != "",
	})
}

// POST /api/auth/logout：删 Redis 会话，Cookie 置空
func (s *Srv) Logout(c *gin.Context) {
	if sid := c.GetString(app.CtxSessionID); sid != "" {
		_ = s.AppSess.Delete(c.Request.Context(), sid)
	}
	s.setAppCookie(c.Writer, "", -1)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
