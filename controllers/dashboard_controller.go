package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"

	"github.com/gin-gonic/gin"
)

// DashboardSource 看板查询，由 *db.Repo 实现
type DashboardSource interface {
	Stats(ctx context.Context, now time.Time) (*db.Stats, error)
	PopularBooks(ctx context.Context, since time.Time, limit int) ([]db.PopularBook, error)
	BorrowTrends(ctx context.Context, since time.Time, monthly bool) ([]db.TrendPoint, error)
	RecentActivity(ctx context.Context, limit int, now time.Time) (*db.RecentActivity, error)
}

var _ DashboardSource = (*db.Repo)(nil)

type DashboardController struct {
	src DashboardSource
	now func() time.Time
}

func NewDashboardController(src DashboardSource) *DashboardController {
	return &DashboardController{src: src, now: time.Now}
}

// GET /api/dashboard/stats
func (dc *DashboardController) Stats(c *gin.Context) {
	st, err := dc.src.Stats(c.Request.Context(), dc.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// periodStart 7days（默认）| 30days | 12months；12months 按月分组
func periodStart(period string, now time.Time) (time.Time, bool) {
	switch period {
	case "30days":
		return now.AddDate(0, 0, -30), false
	case "12months":
		return now.AddDate(-1, 0, 0), true
	}
	return now.AddDate(0, 0, -7), false
}

// GET /api/dashboard/charts?period=7days&limit=10
func (dc *DashboardController) Charts(c *gin.Context) {
	ctx := c.Request.Context()
	since, monthly := periodStart(c.Query("period"), dc.now())
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	trends, err := dc.src.BorrowTrends(ctx, since, monthly)
	if err != nil {
		writeError(c, err)
		return
	}
	popular, err := dc.src.PopularBooks(ctx, since, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"borrowTrends": trends, "popularBooks": popular})
}

// recentLimit 缺省或非法为 10，其余钳制到 [1, 20]
func recentLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		n = 10
	}
	return min(max(n, 1), db.MaxRecentActivity)
}

// GET /api/dashboard/recent?limit=10
func (dc *DashboardController) Recent(c *gin.Context) {
	act, err := dc.src.RecentActivity(c.Request.Context(), recentLimit(c.Query("limit")), dc.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, act)
}
