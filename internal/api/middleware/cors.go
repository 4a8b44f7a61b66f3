package middleware

import (
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dropwire/dropwire/internal/logging"

	"github.com/gin-gonic/gin"
)

// setCORSHeaders sets the common CORS headers shared by every response.
func setCORSHeaders(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
	c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")
	c.Writer.Header().Set("Access-Control-Max-Age", "86400")
}

// isAllowedOrigin checks the origin against ALLOWED_ORIGINS, used only
// for the admin UI in production; the public download and link-generation
// paths are not browser-originated.
func isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if _, err := url.Parse(origin); err != nil {
		return false
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		return false
	}
	if allowedOrigins == "*" {
		return true
	}
	for _, allowed := range strings.Split(allowedOrigins, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

// CORS lets requests without an Origin header through untouched.
// Outside production any origin is allowed; in production only origins
// listed in ALLOWED_ORIGINS pass and all others get 403.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := logging.GetGlobalLogger()
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		setCORSHeaders(c)

		if os.Getenv("ENV") != "production" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		if isAllowedOrigin(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		logger.Warn("Blocked CORS request from unauthorized origin: %s", origin)
		c.AbortWithStatus(http.StatusForbidden)
	}
}
