package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/lending"

	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// 顺序有意义：借阅领域错误优先，其次是可重试错误，最后是仓储层错误
var errorMappings = []errorMapping{
	{lending.ErrReaderNotFound, http.StatusNotFound, "READER_NOT_FOUND"},
	{lending.ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{lending.ErrLoanNotFound, http.StatusNotFound, "LOAN_NOT_FOUND"},
	{lending.ErrBookUnavailable, http.StatusConflict, "BOOK_UNAVAILABLE"},
	{lending.ErrDuplicateActiveLoan, http.StatusConflict, "DUPLICATE_ACTIVE_LOAN"},
	{lending.ErrBorrowLimitExceeded, http.StatusConflict, "BORROW_LIMIT_EXCEEDED"},
	{lending.ErrAlreadyReturned, http.StatusConflict, "ALREADY_RETURNED"},
	{lending.ErrInvalidDueDate, http.StatusBadRequest, "INVALID_DUE_DATE"},
	{lending.ErrTransient, http.StatusServiceUnavailable, "TRANSIENT_FAILURE"},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "TIMEOUT"},
	{db.ErrInviteUnusable, http.StatusForbidden, "INVITE_INVALID"},
	{db.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{db.ErrDuplicate, http.StatusConflict, "DUPLICATE"},
	{db.ErrInUse, http.StatusConflict, "IN_USE"},
	{db.ErrHasOpenLoans, http.StatusConflict, "HAS_OPEN_LOANS"},
	{db.ErrInvalidStock, http.StatusBadRequest, "INVALID_STOCK"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeError 统一错误响应：{"error": code, "message": text}
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	app.AbortError(c, status, code, msg)
}

func badRequest(c *gin.Context, msg string) {
	app.AbortError(c, http.StatusBadRequest, "BAD_REQUEST", msg)
}

func unauthorized(c *gin.Context) {
	app.AbortError(c, http.StatusUnauthorized, app.CodeUnauthorized, "login required")
}

// 认证流程里不对应仓储错误的响应
func invalidCredentials(c *gin.Context) {
	app.AbortError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
}

func inviteInvalid(c *gin.Context) {
	app.AbortError(c, http.StatusForbidden, "INVITE_INVALID", "invalid or expired invite")
}

func employeeNotFound(c *gin.Context) {
	app.AbortError(c, http.StatusNotFound, "EMPLOYEE_NOT_FOUND", "employee not found")
}

func sessionFailed(c *gin.Context, err error) {
	_ = c.Error(err)
	app.AbortError(c, http.StatusInternalServerError, "SESSION_FAILED", "create app session failed")
}

// pageFrom 读取 ?page=&size=
func pageFrom(c *gin.Context) db.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return db.Page{Page: page, Size: size}
}
