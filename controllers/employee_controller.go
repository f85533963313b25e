package controllers

import (
	"net/http"
	"strings"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/session"

	"github.com/gin-gonic/gin"
)

type EmployeeController struct {
	repo    *db.Repo
	appSess *session.AppSessionStore
	cfg     app.Config
}

func GetEmployeeController(repo *db.Repo, appSess *session.AppSessionStore, cfg app.Config) *EmployeeController {
	return &EmployeeController{repo: repo, appSess: appSess, cfg: cfg}
}

// GET /api/employees?q=alice&page=1&size=20
func (ec *EmployeeController) List(c *gin.Context) {
	res, err := ec.repo.ListEmployees(c.Request.Context(), c.Query("q"), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/employees/:id
func (ec *EmployeeController) Get(c *gin.Context) {
	e, err := ec.repo.FindEmployeeByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	creds, _ := ec.repo.CountCredentials(c.Request.Context(), e.ID)
	c.JSON(http.StatusOK, app.H{"employee": e, "credentials": creds})
}

// PUT /api/employees/:id：资料修改，登录邮箱不可改
func (ec *EmployeeController) Update(c *gin.Context) {
	var in struct {
		FullName *string `json:"fullName"`
		Position *string `json:"position"`
		Address  *string `json:"address"`
		Phone    *string `json:"phone"`
		IsAdmin  *bool   `json:"isAdmin"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	fields := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = strings.TrimSpace(*v)
		}
	}
	set("full_name", in.FullName)
	set("position", in.Position)
	set("address", in.Address)
	set("phone", in.Phone)
	if in.IsAdmin != nil {
		// 不允许取消自己的管理员，避免锁死
		if self, _ := app.EmployeeID(c); self == id && !*in.IsAdmin {
			badRequest(c, "cannot revoke your own admin role")
			return
		}
		fields["is_admin"] = *in.IsAdmin
	}
	if len(fields) == 0 {
		badRequest(c, "nothing to update")
		return
	}
	e, err := ec.repo.UpdateEmployee(c.Request.Context(), id, fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DELETE /api/employees/:id
func (ec *EmployeeController) Delete(c *gin.Context) {
	id := c.Param("id")

	// 不允许删除自己，避免锁死
	if self, _ := app.EmployeeID(c); self == id {
		badRequest(c, "cannot delete yourself")
		return
	}

	target, err := ec.repo.FindEmployeeByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if ec.cfg.IsAdminEmail(target.Email) {
		app.AbortError(c, http.StatusForbidden, "ADMIN_PROTECTED", "cannot delete an admin")
		return
	}

	// 会连带删 credentials
	if err := ec.repo.DeleteEmployeeByID(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	// 撤销该员工的所有登录会话
	_ = ec.appSess.RevokeAllForEmployee(c.Request.Context(), id)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
