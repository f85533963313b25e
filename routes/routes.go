package routes

import (
	"net/http"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	inviteCtl := controllers.GetInviteController(s)
	employeeCtl := controllers.GetEmployeeController(s.Repo, s.AppSess, a.Config)
	bookCtl := controllers.NewBookController(s.Repo)
	readerCtl := controllers.NewReaderController(s.Repo)
	publisherCtl := controllers.NewPublisherController(s.Repo)
	loanCtl := controllers.NewLoanController(a.Lending, s.Repo, a.Config.LoanDays)
	dashCtl := controllers.NewDashboardController(s.Repo)

	// 复用的中间件
	authMW := app.AuthRequired(s.AppSess, s.Repo, a.Config)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	// ------------------------------
	// 密码登录 / 会话
	// ------------------------------
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", s.PasswordLogin)
		auth.POST("/accept-invite", s.AcceptInviteWithPassword)
	}
	authed := auth.Group("", authMW, seenMW)
	{
		authed.GET("/whoami", s.WhoAmI)
		authed.POST("/logout", s.Logout)
		authed.PUT("/password", s.ChangePassword)
	}

	// ------------------------------
	// WebAuthn（公开+受保护）
	// ------------------------------
	wa := r.Group("/webauthn")
	{
		wa.POST("/register/begin", s.BeginRegistration)
		wa.POST("/register/finish", s.FinishRegistration)

		wa.POST("/login/begin", s.BeginLogin)
		wa.POST("/login/finish", s.FinishLogin)
	}
	waAuth := wa.Group("", authMW, seenMW)
	{
		waAuth.GET("/whoami", s.WhoAmI)
		waAuth.POST("/logout", s.Logout)
		// 已登录员工添加新凭据（绑定手机等）
		waAuth.POST("/credentials/begin", s.BeginAddCredential)
		waAuth.POST("/credentials/finish", s.FinishAddCredential)
	}

	// ------------------------------
	// 邀请（仅管理员）
	// ------------------------------
	admin := r.Group("/admin", authMW, adminMW)
	{
		admin.POST("/invites", inviteCtl.CreateInvite)
	}

	// ------------------------------
	// 员工管理（仅管理员）
	// ------------------------------
	employees := r.Group("/api/employees", authMW, adminMW)
	{
		employees.GET("", employeeCtl.List) // ?q=&page=&size=
		employees.GET("/:id", employeeCtl.Get)
		employees.PUT("/:id", employeeCtl.Update)
		employees.DELETE("/:id", employeeCtl.Delete)
	}

	// ------------------------------
	// 图书 / 出版社 / 读者
	// ------------------------------
	books := r.Group("/api/books", authMW, seenMW)
	{
		books.GET("", bookCtl.List) // ?q=&publisherId=&available=true
		books.GET("/:id", bookCtl.Get)
		books.GET("/:id/loans", loanCtl.ByBook)
		books.POST("", bookCtl.Create)
		books.PUT("/:id", bookCtl.Update)
		books.DELETE("/:id", adminMW, bookCtl.Delete)
		books.POST("/:id/recount", adminMW, bookCtl.Recount)
	}

	publishers := r.Group("/api/publishers", authMW, seenMW)
	{
		publishers.GET("", publisherCtl.List)
		publishers.GET("/:id", publisherCtl.Get)
		publishers.POST("", publisherCtl.Create)
		publishers.PUT("/:id", publisherCtl.Update)
		publishers.DELETE("/:id", adminMW, publisherCtl.Delete)
	}

	readers := r.Group("/api/readers", authMW, seenMW)
	{
		readers.GET("", readerCtl.List)
		readers.GET("/:id", readerCtl.Get)
		readers.GET("/:id/loans", loanCtl.ByReader)
		readers.POST("", readerCtl.Create)
		readers.PUT("/:id", readerCtl.Update)
		readers.DELETE("/:id", adminMW, readerCtl.Delete)
	}

	// ------------------------------
	// 借还
	// ------------------------------
	loans := r.Group("/api/loans", authMW, seenMW)
	{
		loans.GET("", loanCtl.List) // ?q=&status=open|overdue|returned|active&readerId=&bookId=
		loans.GET("/overdue", loanCtl.Overdue)
		loans.GET("/:id", loanCtl.Get)
		loans.GET("/:id/events", loanCtl.Events)
		loans.POST("", loanCtl.Borrow)
		loans.POST("/:id/return", loanCtl.Return)
		loans.POST("/:id/extend", loanCtl.Extend)
	}

	dash := r.Group("/api/dashboard", authMW, seenMW)
	{
		dash.GET("/stats", dashCtl.Stats)
		dash.GET("/charts", dashCtl.Charts) // ?period=7days|30days|12months
		dash.GET("/recent", dashCtl.Recent) // ?limit=10，最多 20
	}
}
