// app/seenmw.go
package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type SeenToucher interface {
	TouchEmployeeSeen(ctx context.Context, employeeID string) error
}

// TouchLastSeen 每个员工在 throttle 时间内最多写一次 last_seen_at
func TouchLastSeen(repo SeenToucher, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		eid, ok := EmployeeID(c)
		if !ok {
			c.Next()
			return
		}

		key := "lib:employee:lastseen:" + eid
		if ok, _ := rdb.SetNX(c.Request.Context(), key, "1", throttle).Result(); ok {
			_ = repo.TouchEmployeeSeen(c.Request.Context(), eid) // 忽略错误，不阻塞请求
		}
		c.Next()
	}
}
