package middleware

import (
	"distill-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware 管理员权限中间件，用于启动、停止运行等写操作
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			utils.ErrorResponse(c, 403, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}
