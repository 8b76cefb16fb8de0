package middleware

import (
	"net/http"
	"strings"

	"distill-go/internal/config"

	"github.com/gin-gonic/gin"
)

// CORS 跨域中间件
func CORS(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.CORS.AllowMethods, ", ")
	headers := strings.Join(cfg.CORS.AllowHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && originAllowed(cfg.CORS.Origins, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			if cfg.CORS.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			if methods != "" {
				c.Header("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				c.Header("Access-Control-Allow-Headers", headers)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(origins []string, origin string) bool {
	for _, o := range origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
