package app

import (
	"context"
	"net/http"

	"Gin_postgres_redis_library/models"
	"Gin_postgres_redis_library/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "lib_session"

// gin.Context 里的键
const (
	CtxEmployeeID   = "employeeID"
	CtxEmployeeName = "employeeName"
	CtxIsAdmin      = "isAdmin"
	CtxSessionID    = "sessionID"
)

type SessionGetter interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
}

type EmployeeFinder interface {
	FindEmployeeByID(ctx context.Context, id string) (*models.Employee, error)
}

func AuthRequired(sessions SessionGetter, employees EmployeeFinder, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "login required")
			return
		}
		as, err := sessions.Get(c.Request.Context(), ck.Value)
		if err != nil {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "session expired or invalid")
			return
		}

		// 确认员工仍存在，并把 isAdmin 放进 Context（只查一次）
		e, err := employees.FindEmployeeByID(c.Request.Context(), as.EmployeeID)
		if err != nil {
			_ = sessions.Delete(c.Request.Context(), ck.Value)
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "employee no longer exists")
			return
		}
		c.Set(CtxSessionID, ck.Value)
		c.Set(CtxEmployeeID, e.ID)
		c.Set(CtxEmployeeName, e.FullName)
		c.Set(CtxIsAdmin, e.IsAdmin || cfg.IsAdminEmail(e.Email))

		c.Next()
	}
}

// AdminOnly 必须挂在 AuthRequired 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxEmployeeID); !ok {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "login required")
			return
		}
		if !c.GetBool(CtxIsAdmin) {
			AbortError(c, http.StatusForbidden, CodeForbidden, "admin only")
			return
		}
		c.Next()
	}
}

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

// AbortError 统一错误响应：{"error": code, "message": text}
func AbortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, H{"error": code, "message": msg})
}

// EmployeeID 取当前登录员工编号
func EmployeeID(c *gin.Context) (string, bool) {
	id := c.GetString(CtxEmployeeID)
	return id, id != ""
}
